// Package upload implements the resumable chunked-upload engine: a
// content-addressed session with a deterministic identifier, on-disk chunk
// staging, per-chunk and whole-file SHA-256 verification, concurrent-safe
// final assembly, and ownership application as the last step.
package upload

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/zynqcloud/filegate/internal/index"
	"github.com/zynqcloud/filegate/internal/model"
	"github.com/zynqcloud/filegate/internal/ownership"
	"github.com/zynqcloud/filegate/internal/pathgate"
)

// Error is an upload-engine failure carrying the HTTP status it maps to.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string { return e.Message }

// StatusCode lets the HTTP layer map any component error uniformly.
func (e *Error) StatusCode() int { return e.Status }

func errf(status int, format string, args ...any) *Error {
	return &Error{Status: status, Message: fmt.Sprintf(format, args...)}
}

// Engine owns the upload temp directory and the assembly keyed-mutex.
type Engine struct {
	tempDir        string
	maxUploadBytes int64
	maxChunkBytes  int64
	gate           *pathgate.Gate
	devOverride    *ownership.DevOverride
	indexStore     index.Store // nil disables indexing of assembled files
	assembly       keyedMutex
	logger         *slog.Logger
}

// New creates an Engine. indexStore may be nil to disable indexing.
func New(tempDir string, maxUploadBytes, maxChunkBytes int64, gate *pathgate.Gate, devOverride *ownership.DevOverride, indexStore index.Store, logger *slog.Logger) (*Engine, error) {
	if err := os.MkdirAll(tempDir, 0o750); err != nil {
		return nil, fmt.Errorf("upload: create temp dir %q: %w", tempDir, err)
	}
	return &Engine{
		tempDir:        tempDir,
		maxUploadBytes: maxUploadBytes,
		maxChunkBytes:  maxChunkBytes,
		gate:           gate,
		devOverride:    devOverride,
		indexStore:     indexStore,
		logger:         logger,
	}, nil
}

// StartRequest is the body of POST /files/upload/start.
type StartRequest struct {
	Path      string
	Filename  string
	Size      int64
	Checksum  string // "sha256:"+64 hex
	ChunkSize int64
	Ownership *ownership.Ownership
}

// StartResponse is returned by Start.
type StartResponse struct {
	UploadID       string `json:"uploadId"`
	TotalChunks    int    `json:"totalChunks"`
	ChunkSize      int64  `json:"chunkSize"`
	UploadedChunks []int  `json:"uploadedChunks"`
	Completed      bool   `json:"completed"`
}

// Start begins an upload session, or resumes it if meta for the derived
// upload id already exists on disk.
func (e *Engine) Start(req StartRequest) (*StartResponse, error) {
	if req.Size > e.maxUploadBytes {
		return nil, errf(http.StatusRequestEntityTooLarge, "upload exceeds maximum size")
	}
	if req.ChunkSize <= 0 || req.ChunkSize > e.maxChunkBytes {
		return nil, errf(http.StatusBadRequest, "chunkSize exceeds maximum chunk size")
	}
	if !validChecksum(req.Checksum) {
		return nil, errf(http.StatusBadRequest, "checksum must be sha256:<64 hex>")
	}

	uploadID := DeriveUploadID(req.Path, req.Filename, req.Checksum)

	target := filepath.Join(req.Path, req.Filename)
	if _, err := e.gate.Validate(target, pathgate.Options{CreateParents: true, Ownership: req.Ownership}); err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()

	if existing, err := e.loadMeta(uploadID); err == nil {
		existing.CreatedAt = now
		if err := e.saveMeta(existing); err != nil {
			return nil, errf(http.StatusInternalServerError, "refresh session: %v", err)
		}
		uploaded, err := e.uploadedChunkIndices(uploadID)
		if err != nil {
			return nil, errf(http.StatusInternalServerError, "list chunks: %v", err)
		}
		return &StartResponse{
			UploadID:       uploadID,
			TotalChunks:    existing.TotalChunks,
			ChunkSize:      existing.ChunkSize,
			UploadedChunks: uploaded,
			Completed:      false,
		}, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, errf(http.StatusInternalServerError, "load session: %v", err)
	}

	totalChunks := int(math.Ceil(float64(req.Size) / float64(req.ChunkSize)))
	if totalChunks == 0 {
		totalChunks = 1
	}
	meta := &Meta{
		UploadID:    uploadID,
		Path:        req.Path,
		Filename:    req.Filename,
		Size:        req.Size,
		Checksum:    req.Checksum,
		ChunkSize:   req.ChunkSize,
		TotalChunks: totalChunks,
		Ownership:   toMetaOwnership(req.Ownership),
		CreatedAt:   now,
	}
	if err := e.saveMeta(meta); err != nil {
		return nil, errf(http.StatusInternalServerError, "create session: %v", err)
	}

	return &StartResponse{
		UploadID:       uploadID,
		TotalChunks:    totalChunks,
		ChunkSize:      req.ChunkSize,
		UploadedChunks: []int{},
		Completed:      false,
	}, nil
}

// ChunkResponse is returned by UploadChunk: either progress or a final
// completion carrying the assembled file.
type ChunkResponse struct {
	ChunkIndex     int             `json:"chunkIndex"`
	UploadedChunks []int           `json:"uploadedChunks"`
	Completed      bool            `json:"completed"`
	File           *model.FileInfo `json:"file,omitempty"`
	Checksum       string          `json:"checksum,omitempty"`
}

// UploadChunk streams one chunk to a .tmp staging file, verifies its
// checksum if one was supplied, and commits it with an atomic rename. The
// caller that commits the last missing chunk triggers assembly.
func (e *Engine) UploadChunk(uploadID string, chunkIndex int, chunkChecksum string, body io.Reader) (*ChunkResponse, error) {
	// The id is joined into the temp-dir path, so anything but the expected
	// 16 hex characters must be rejected before it touches the filesystem.
	if !validUploadID(uploadID) {
		return nil, errf(http.StatusBadRequest, "invalid uploadId")
	}

	meta, err := e.loadMeta(uploadID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errf(http.StatusNotFound, "unknown uploadId")
		}
		return nil, errf(http.StatusInternalServerError, "load session: %v", err)
	}

	if chunkIndex < 0 || chunkIndex >= meta.TotalChunks {
		return nil, errf(http.StatusBadRequest, "chunkIndex out of range")
	}

	dir := e.sessionDir(uploadID)
	finalPath := filepath.Join(dir, strconv.Itoa(chunkIndex))
	tmpPath := finalPath + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return nil, errf(http.StatusInternalServerError, "open chunk: %v", err)
	}

	hasher := sha256.New()
	limited := &limitedReader{r: body, limit: e.maxChunkBytes}
	n, werr := io.Copy(f, io.TeeReader(limited, hasher))
	cerr := f.Close()

	if limited.exceeded {
		os.Remove(tmpPath) //nolint:errcheck
		return nil, errf(http.StatusRequestEntityTooLarge, "chunk exceeds maximum chunk size")
	}
	if werr != nil || cerr != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return nil, errf(http.StatusInternalServerError, "write chunk: %v", werr)
	}
	_ = n

	if chunkChecksum != "" {
		got := "sha256:" + hex.EncodeToString(hasher.Sum(nil))
		if !strings.EqualFold(got, chunkChecksum) {
			os.Remove(tmpPath) //nolint:errcheck
			return nil, errf(http.StatusBadRequest, "chunk checksum mismatch: expected %s, got %s", chunkChecksum, got)
		}
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return nil, errf(http.StatusInternalServerError, "commit chunk: %v", err)
	}

	uploaded, err := e.uploadedChunkIndices(uploadID)
	if err != nil {
		return nil, errf(http.StatusInternalServerError, "list chunks: %v", err)
	}

	if len(uploaded) != meta.TotalChunks {
		return &ChunkResponse{ChunkIndex: chunkIndex, UploadedChunks: uploaded, Completed: false}, nil
	}

	fi, checksum, err := e.assemble(meta)
	if err != nil {
		return nil, err
	}
	return &ChunkResponse{
		ChunkIndex:     chunkIndex,
		UploadedChunks: uploaded,
		Completed:      true,
		File:           fi,
		Checksum:       checksum,
	}, nil
}

// limitedReader aborts a stream (setting exceeded) once more than limit
// bytes have been read.
type limitedReader struct {
	r        io.Reader
	limit    int64
	read     int64
	exceeded bool
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.exceeded {
		return 0, io.EOF
	}
	n, err := l.r.Read(p)
	l.read += int64(n)
	if l.read > l.limit {
		l.exceeded = true
		return n, io.EOF
	}
	return n, err
}

// uploadedChunkIndices lists the committed (non-.tmp) chunk files for a
// session and returns their indices sorted ascending.
func (e *Engine) uploadedChunkIndices(uploadID string) ([]int, error) {
	entries, err := os.ReadDir(e.sessionDir(uploadID))
	if err != nil {
		return nil, err
	}
	var out []int
	for _, ent := range entries {
		name := ent.Name()
		if name == "meta.json" || strings.HasSuffix(name, ".tmp") {
			continue
		}
		idx, err := strconv.Atoi(name)
		if err != nil {
			continue
		}
		out = append(out, idx)
	}
	sort.Ints(out)
	if out == nil {
		out = []int{}
	}
	return out, nil
}

func validUploadID(s string) bool {
	if len(s) != 16 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func validChecksum(s string) bool {
	const prefix = "sha256:"
	if !strings.HasPrefix(s, prefix) {
		return false
	}
	hexPart := s[len(prefix):]
	if len(hexPart) != 64 {
		return false
	}
	_, err := hex.DecodeString(hexPart)
	return err == nil
}
