package upload

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zynqcloud/filegate/internal/ownership"
)

// Meta is the persisted upload session descriptor, written to
// <tempDir>/<uploadId>/meta.json.
type Meta struct {
	UploadID    string              `json:"uploadId"`
	Path        string              `json:"path"`
	Filename    string              `json:"filename"`
	Size        int64               `json:"size"`
	Checksum    string              `json:"checksum"` // "sha256:"+64 hex
	ChunkSize   int64               `json:"chunkSize"`
	TotalChunks int                 `json:"totalChunks"`
	Ownership   *ownershipMetaField `json:"ownership,omitempty"`
	CreatedAt   int64               `json:"createdAt"` // unix ms
}

// ownershipMetaField is the JSON-serializable mirror of ownership.Ownership.
type ownershipMetaField struct {
	UID      int    `json:"uid"`
	GID      int    `json:"gid"`
	FileMode string `json:"fileMode"`
	DirMode  string `json:"dirMode"`
}

func toMetaOwnership(o *ownership.Ownership) *ownershipMetaField {
	if o == nil {
		return nil
	}
	return &ownershipMetaField{
		UID:      o.UID,
		GID:      o.GID,
		FileMode: fmt.Sprintf("%04o", o.FileMode),
		DirMode:  fmt.Sprintf("%04o", o.DirMode),
	}
}

func (f *ownershipMetaField) toOwnership() (*ownership.Ownership, error) {
	if f == nil {
		return nil, nil
	}
	fileMode, err := ownership.ParseMode(f.FileMode)
	if err != nil {
		return nil, err
	}
	dirMode, err := ownership.ParseMode(f.DirMode)
	if err != nil {
		return nil, err
	}
	o := ownership.New(f.UID, f.GID, fileMode, &dirMode)
	return &o, nil
}

// DeriveUploadID computes the deterministic session identifier: the first
// 16 hex characters of SHA-256(path+":"+filename+":"+checksum). Identical
// retry requests always hit the same session directory.
func DeriveUploadID(path, filename, checksum string) string {
	sum := sha256.Sum256([]byte(path + ":" + filename + ":" + checksum))
	return hex.EncodeToString(sum[:])[:16]
}

func (e *Engine) sessionDir(uploadID string) string {
	return filepath.Join(e.tempDir, uploadID)
}

func (e *Engine) metaPath(uploadID string) string {
	return filepath.Join(e.sessionDir(uploadID), "meta.json")
}

func (e *Engine) loadMeta(uploadID string) (*Meta, error) {
	data, err := os.ReadFile(e.metaPath(uploadID))
	if err != nil {
		return nil, err
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("upload: corrupt meta for %s: %w", uploadID, err)
	}
	return &m, nil
}

func (e *Engine) saveMeta(m *Meta) error {
	if err := os.MkdirAll(e.sessionDir(m.UploadID), 0o750); err != nil {
		return err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	tmp := e.metaPath(m.UploadID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return err
	}
	return os.Rename(tmp, e.metaPath(m.UploadID))
}
