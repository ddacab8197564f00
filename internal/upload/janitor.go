package upload

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Sweep removes upload sessions whose meta.json is missing/unreadable or
// whose createdAt predates the configured expiry. Expiry is keyed on the
// session's recorded createdAt rather than directory mtime: a chunk write
// refreshes mtime without refreshing the session's age.
func (e *Engine) Sweep(expiry time.Duration) {
	entries, err := os.ReadDir(e.tempDir)
	if err != nil {
		if !os.IsNotExist(err) && e.logger != nil {
			e.logger.Warn("upload: sweep readdir failed", "dir", e.tempDir, "err", err)
		}
		return
	}

	cutoff := time.Now().Add(-expiry).UnixMilli()
	var removed int
	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}
		uploadID := ent.Name()
		stale := false

		data, err := os.ReadFile(e.metaPath(uploadID))
		if err != nil {
			stale = true
		} else {
			var m Meta
			if err := json.Unmarshal(data, &m); err != nil || m.CreatedAt < cutoff {
				stale = true
			}
		}

		if !stale {
			continue
		}

		dir := filepath.Join(e.tempDir, uploadID)
		if err := os.RemoveAll(dir); err != nil {
			if e.logger != nil {
				e.logger.Warn("upload: sweep remove failed", "uploadId", uploadID, "err", err)
			}
			continue
		}
		removed++
	}
	if removed > 0 && e.logger != nil {
		e.logger.Info("upload: sweep complete", "removed", removed)
	}
}

// postStartupDelay schedules one extra sweep shortly after startup: with a
// default 6-hour DISK_CLEANUP_INTERVAL_HOURS, a bare ticker would leave
// sessions abandoned by a previous crash sitting on disk for hours before
// the first sweep.
const postStartupDelay = 10 * time.Second

// RunJanitor runs one extra Sweep postStartupDelay after startup, then on
// every interval until ctx is cancelled.
func (e *Engine) RunJanitor(ctx context.Context, expiry, interval time.Duration) {
	go func() {
		select {
		case <-time.After(postStartupDelay):
			e.Sweep(expiry)
		case <-ctx.Done():
			return
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.Sweep(expiry)
			case <-ctx.Done():
				return
			}
		}
	}()
}
