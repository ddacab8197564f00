// Package scanner performs a concurrent incremental directory walk that
// populates the index.Store and garbage-collects entries for files that
// have vanished from disk.
package scanner

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/zynqcloud/filegate/internal/index"
)

// Result tallies the outcome of a scan.
type Result struct {
	Scanned    int64
	Skipped    int64
	Added      int64
	Moved      int64
	Removed    int64
	DurationMs int64
}

func (r *Result) add(o Result) {
	r.Scanned += o.Scanned
	r.Skipped += o.Skipped
	r.Added += o.Added
	r.Moved += o.Moved
	r.Removed += o.Removed
}

// Scanner walks configured base paths, indexing entries via a bounded
// worker pool over a shared FIFO of pending directories.
type Scanner struct {
	store       index.Store
	concurrency int
	logger      *slog.Logger
}

// New creates a Scanner. concurrency is clamped to at least 1.
func New(store index.Store, concurrency int, logger *slog.Logger) *Scanner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scanner{store: store, concurrency: concurrency, logger: logger}
}

// workQueue is a growable FIFO of pending directory paths tracked with a
// WaitGroup so the queue can be closed exactly once all in-flight and
// pending work has drained, including sub-directories discovered while
// processing an item.
type workQueue struct {
	mu    sync.Mutex
	items []string
	cond  *sync.Cond
	wg    sync.WaitGroup
	done  bool
}

func newWorkQueue() *workQueue {
	q := &workQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *workQueue) push(path string) {
	q.wg.Add(1)
	q.mu.Lock()
	q.items = append(q.items, path)
	q.mu.Unlock()
	q.cond.Signal()
}

// pop blocks until an item is available or the queue is permanently done.
func (q *workQueue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.done {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return "", false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

func (q *workQueue) finishItem() { q.wg.Done() }

// waitAndClose blocks until all pushed items have been finished, then wakes
// every waiting worker so pop returns false.
func (q *workQueue) waitAndClose() {
	q.wg.Wait()
	q.mu.Lock()
	q.done = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// ScanBasePath performs one full scan of base, returning action tallies.
// A stat failure on base itself returns empty counts; a stat failure on
// any other entry skips it silently.
func (s *Scanner) ScanBasePath(base string) (Result, error) {
	start := time.Now()
	scanGeneration := start.UnixMilli()

	if _, err := os.Stat(base); err != nil {
		return Result{}, nil
	}

	var mu sync.Mutex
	result := Result{}

	q := newWorkQueue()
	q.push(base)
	go q.waitAndClose()

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)

	for i := 0; i < s.concurrency; i++ {
		g.Go(func() error {
			for {
				dir, ok := q.pop()
				if !ok {
					return nil
				}
				r := s.scanDirectory(base, dir, scanGeneration, q)
				mu.Lock()
				result.add(r)
				mu.Unlock()
				q.finishItem()
			}
		})
	}
	_ = g.Wait()

	removed, err := s.store.RemoveStaleEntries(base, scanGeneration)
	if err != nil && s.logger != nil {
		s.logger.Warn("scanner: stale sweep failed", "base", base, "err", err)
	}
	result.Removed = removed
	result.DurationMs = time.Since(start).Milliseconds()

	if s.logger != nil {
		s.logger.Info("scan complete",
			"base", base,
			"scanned", result.Scanned,
			"skipped", result.Skipped,
			"added", result.Added,
			"moved", result.Moved,
			"removed", result.Removed,
			"duration_ms", result.DurationMs,
		)
	}
	return result, nil
}

// ScanAll iterates all configured bases sequentially and aggregates counts.
func (s *Scanner) ScanAll(bases []string) (Result, error) {
	var total Result
	for _, b := range bases {
		r, err := s.ScanBasePath(b)
		if err != nil {
			return total, err
		}
		total.add(r)
	}
	return total, nil
}

// scanDirectory processes one directory: if scan_state shows it unchanged,
// it bulk-bumps indexed_at for descendants and counts as skipped; otherwise
// it enumerates entries, indexes each, and enqueues sub-directories.
func (s *Scanner) scanDirectory(base, dir string, scanGeneration int64, q *workQueue) Result {
	var r Result

	info, err := os.Stat(dir)
	if err != nil {
		return r // stat failure on a non-root directory: skip silently
	}

	rel, err := filepath.Rel(base, dir)
	if err != nil {
		return r
	}
	if rel == "." {
		rel = ""
	}

	mtimeMs := info.ModTime().UnixMilli()

	prior, err := s.store.GetScanState(base, rel)
	if err == nil && prior != nil && prior.MtimeMs == mtimeMs {
		if err := s.store.TouchIndexedAtUnderDir(base, rel, scanGeneration); err != nil && s.logger != nil {
			s.logger.Warn("scanner: touch failed", "dir", dir, "err", err)
		}
		r.Skipped = 1
		_ = s.store.PutScanState(index.ScanStateRow{BasePath: base, DirPath: rel, MtimeMs: mtimeMs, ScannedAt: scanGeneration})
		return r
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return r
	}

	for _, e := range entries {
		entryPath := filepath.Join(dir, e.Name())
		entryInfo, err := e.Info()
		if err != nil {
			continue // stat failure on an entry: skip silently
		}

		entryRel, err := filepath.Rel(base, entryPath)
		if err != nil {
			continue
		}

		dev, ino := devIno(entryInfo)
		stat := index.Stat{
			Dev:     dev,
			Ino:     ino,
			Size:    entryInfo.Size(),
			MtimeMs: entryInfo.ModTime().UnixMilli(),
			IsDir:   entryInfo.IsDir(),
		}

		res, err := s.store.IndexFile(base, entryRel, stat, scanGeneration)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("scanner: index failed", "path", entryPath, "err", err)
			}
			continue
		}

		r.Scanned++
		switch res.Action {
		case index.ActionAdded:
			r.Added++
		case index.ActionMoved:
			r.Moved++
		}

		if entryInfo.IsDir() {
			q.push(entryPath)
		}
	}

	_ = s.store.PutScanState(index.ScanStateRow{BasePath: base, DirPath: rel, MtimeMs: mtimeMs, ScannedAt: scanGeneration})
	if s.logger != nil && len(entries) > 0 {
		var totalBytes int64
		for _, e := range entries {
			if info, err := e.Info(); err == nil && !info.IsDir() {
				totalBytes += info.Size()
			}
		}
		s.logger.Debug("scanner: directory processed", "dir", dir, "entries", len(entries), "bytes", humanize.Bytes(uint64(totalBytes)))
	}
	return r
}
