package upload

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/zynqcloud/filegate/internal/index"
	"github.com/zynqcloud/filegate/internal/mimeutil"
	"github.com/zynqcloud/filegate/internal/model"
	"github.com/zynqcloud/filegate/internal/ownership"
	"github.com/zynqcloud/filegate/internal/pathgate"
)

// assemble concatenates all chunks of meta's session into the final
// destination, verifies the whole-file checksum, applies ownership, and
// removes the session directory. Guarded by a mutex keyed on uploadId so
// only one assembler per session runs at once.
func (e *Engine) assemble(meta *Meta) (*model.FileInfo, string, error) {
	unlock := e.assembly.lock(meta.UploadID)
	defer unlock()

	dir := e.sessionDir(meta.UploadID)

	uploaded, err := e.uploadedChunkIndices(meta.UploadID)
	if err != nil {
		if os.IsNotExist(err) {
			// Another caller already finished and cleaned up.
			return nil, "", errf(http.StatusInternalServerError, "session already completed")
		}
		return nil, "", errf(http.StatusInternalServerError, "list chunks: %v", err)
	}
	if len(uploaded) == 0 {
		return nil, "", errf(http.StatusInternalServerError, "session already completed")
	}

	present := make(map[int]bool, len(uploaded))
	for _, i := range uploaded {
		present[i] = true
	}
	var missing []int
	for i := 0; i < meta.TotalChunks; i++ {
		if !present[i] {
			missing = append(missing, i)
		}
	}
	if len(missing) > 0 {
		return nil, "", errf(http.StatusBadRequest, "missing chunks: %v", missing)
	}

	targetRel := filepath.Join(meta.Path, meta.Filename)
	res, err := e.gate.Validate(targetRel, pathgate.Options{})
	if err != nil {
		return nil, "", err
	}
	destPath := res.RealPath

	if err := os.MkdirAll(filepath.Dir(destPath), 0o750); err != nil {
		return nil, "", errf(http.StatusInternalServerError, "mkdir destination parent: %v", err)
	}

	dest, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return nil, "", errf(http.StatusInternalServerError, "open destination: %v", err)
	}

	hasher := sha256.New()
	var written int64
	for i := 0; i < meta.TotalChunks; i++ {
		chunkPath := filepath.Join(dir, strconv.Itoa(i))
		cf, err := os.Open(chunkPath)
		if err != nil {
			dest.Close()
			os.Remove(destPath) //nolint:errcheck
			return nil, "", errf(http.StatusInternalServerError, "chunk %d missing during assembly: %v", i, err)
		}
		n, cerr := copyHashed(dest, cf, hasher)
		cf.Close()
		if cerr != nil {
			dest.Close()
			os.Remove(destPath) //nolint:errcheck
			return nil, "", errf(http.StatusInternalServerError, "assemble chunk %d: %v", i, cerr)
		}
		written += n
	}
	if err := dest.Close(); err != nil {
		os.Remove(destPath) //nolint:errcheck
		return nil, "", errf(http.StatusInternalServerError, "flush destination: %v", err)
	}

	gotChecksum := "sha256:" + hex.EncodeToString(hasher.Sum(nil))
	if gotChecksum != meta.Checksum {
		os.Remove(destPath) //nolint:errcheck
		return nil, "", errf(http.StatusInternalServerError, "checksum mismatch: expected %s, got %s", meta.Checksum, gotChecksum)
	}

	ownPtr, err := meta.Ownership.toOwnership()
	if err != nil {
		os.Remove(destPath) //nolint:errcheck
		return nil, "", errf(http.StatusInternalServerError, "parse ownership metadata: %v", err)
	}
	if ownPtr != nil {
		if err := ownership.ApplyWithOverride(destPath, *ownPtr, e.devOverride); err != nil {
			os.Remove(destPath) //nolint:errcheck
			return nil, "", errf(http.StatusInternalServerError, "apply ownership: %v", err)
		}
	}

	os.RemoveAll(dir) // best-effort cleanup; failure is non-fatal

	info, err := os.Stat(destPath)
	if err != nil {
		return nil, "", errf(http.StatusInternalServerError, "stat assembled file: %v", err)
	}
	basePath := res.BasePath

	fi := &model.FileInfo{
		Name:     meta.Filename,
		Path:     targetRel,
		Type:     model.TypeFile,
		Size:     info.Size(),
		Mtime:    info.ModTime().Format(time.RFC3339),
		IsHidden: len(meta.Filename) > 0 && meta.Filename[0] == '.',
		MimeType: mimeutil.Guess(destPath),
	}

	if e.indexStore != nil {
		if id, ok := e.indexAssembled(basePath, destPath); ok {
			fi.FileID = id
		}
	}

	if e.logger != nil {
		e.logger.Info("upload assembled",
			"path", fi.Path, "bytes", humanize.Bytes(uint64(written)), "checksum", gotChecksum)
	}

	return fi, gotChecksum, nil
}

func (e *Engine) indexAssembled(basePath, destPath string) (string, bool) {
	rel, err := filepath.Rel(basePath, destPath)
	if err != nil {
		return "", false
	}
	info, err := os.Stat(destPath)
	if err != nil {
		return "", false
	}
	dev, ino := statDevIno(info)
	result, err := e.indexStore.IndexFile(basePath, rel, index.Stat{
		Dev: dev, Ino: ino, Size: info.Size(), MtimeMs: info.ModTime().UnixMilli(), IsDir: false,
	}, time.Now().UnixMilli())
	if err != nil {
		if e.logger != nil {
			e.logger.Warn("upload: index assembled file failed", "path", destPath, "err", err)
		}
		return "", false
	}
	return result.ID, true
}

func copyHashed(dst *os.File, src *os.File, hasher interface{ Write([]byte) (int, error) }) (int64, error) {
	buf := make([]byte, 512*1024)
	var total int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return total, werr
			}
			if _, herr := hasher.Write(buf[:n]); herr != nil {
				return total, herr
			}
			total += int64(n)
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return total, nil
			}
			return total, fmt.Errorf("read: %w", rerr)
		}
	}
}
