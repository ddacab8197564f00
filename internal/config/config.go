// Package config decodes process-wide configuration from the environment.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime configuration for the filegate service. Fields
// are decoded from the environment by envconfig using the `envconfig`
// struct tag.
type Config struct {
	Port string `envconfig:"PORT" default:"4000"`

	FileProxyToken   string   `envconfig:"FILE_PROXY_TOKEN" required:"true"`
	AllowedBasePaths []string `envconfig:"ALLOWED_BASE_PATHS" required:"true"`

	MaxUploadMB                 int `envconfig:"MAX_UPLOAD_MB" default:"500"`
	MaxDownloadMB               int `envconfig:"MAX_DOWNLOAD_MB" default:"5000"`
	MaxChunkSizeMB              int `envconfig:"MAX_CHUNK_SIZE_MB" default:"50"`
	SearchMaxResults            int `envconfig:"SEARCH_MAX_RESULTS" default:"100"`
	SearchMaxRecursiveWildcards int `envconfig:"SEARCH_MAX_RECURSIVE_WILDCARDS" default:"10"`

	UploadExpiryHours        int    `envconfig:"UPLOAD_EXPIRY_HOURS" default:"24"`
	UploadTempDir            string `envconfig:"UPLOAD_TEMP_DIR" default:"/tmp/filegate-uploads"`
	DiskCleanupIntervalHours int    `envconfig:"DISK_CLEANUP_INTERVAL_HOURS" default:"6"`

	EnableIndex                bool   `envconfig:"ENABLE_INDEX" default:"true"`
	IndexDatabaseURL           string `envconfig:"INDEX_DATABASE_URL" default:""`
	IndexRescanIntervalMinutes int    `envconfig:"INDEX_RESCAN_INTERVAL_MINUTES" default:"30"`
	IndexScanConcurrency       int    `envconfig:"INDEX_SCAN_CONCURRENCY" default:"4"`

	DevUIDOverride *int `envconfig:"DEV_UID_OVERRIDE"`
	DevGIDOverride *int `envconfig:"DEV_GID_OVERRIDE"`
}

// MaxUploadBytes returns the upload size cap in bytes.
func (c *Config) MaxUploadBytes() int64 { return int64(c.MaxUploadMB) << 20 }

// MaxDownloadBytes returns the download size cap in bytes.
func (c *Config) MaxDownloadBytes() int64 { return int64(c.MaxDownloadMB) << 20 }

// MaxChunkBytes returns the per-chunk size cap in bytes.
func (c *Config) MaxChunkBytes() int64 { return int64(c.MaxChunkSizeMB) << 20 }

// Load decodes Config from the environment and validates base paths.
// It fails fast: a missing FILE_PROXY_TOKEN or ALLOWED_BASE_PATHS, or any
// base path that is not absolute, is an unrecoverable startup error.
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	for i, p := range c.AllowedBasePaths {
		c.AllowedBasePaths[i] = strings.TrimSpace(p)
		if c.AllowedBasePaths[i] == "" {
			return nil, fmt.Errorf("load config: ALLOWED_BASE_PATHS contains an empty entry")
		}
		if !filepath.IsAbs(c.AllowedBasePaths[i]) {
			return nil, fmt.Errorf("load config: base path %q is not absolute", c.AllowedBasePaths[i])
		}
	}
	if len(c.AllowedBasePaths) == 0 {
		return nil, fmt.Errorf("load config: ALLOWED_BASE_PATHS must list at least one path")
	}

	if c.MaxUploadMB <= 0 || c.MaxDownloadMB <= 0 || c.MaxChunkSizeMB <= 0 {
		return nil, fmt.Errorf("load config: size limits must be positive")
	}

	return &c, nil
}
