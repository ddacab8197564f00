package index

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store, used when INDEX_DATABASE_URL is unset.
// It satisfies the same concurrency contract as SQLStore: all methods lock
// a single mutex, so it is safe for the scanner's worker pool to call
// concurrently.
type MemoryStore struct {
	mu        sync.Mutex
	byID      map[string]*Entry
	byPath    map[pathKey]*Entry
	byDevIno  map[devInoKey]*Entry
	scanState map[scanKey]*ScanStateRow
}

type pathKey struct{ base, rel string }
type devInoKey struct {
	base string
	dev  uint64
	ino  uint64
}
type scanKey struct{ base, dir string }

// NewMemoryStore creates an empty in-memory index.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:      make(map[string]*Entry),
		byPath:    make(map[pathKey]*Entry),
		byDevIno:  make(map[devInoKey]*Entry),
		scanState: make(map[scanKey]*ScanStateRow),
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) IndexFile(basePath, relPath string, stat Stat, indexedAt int64) (IndexResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pk := pathKey{basePath, relPath}
	if e, ok := m.byPath[pk]; ok {
		oldDevIno := devInoKey{basePath, e.Dev, e.Ino}
		e.Dev, e.Ino, e.Size, e.MtimeMs, e.IsDir, e.IndexedAt = stat.Dev, stat.Ino, stat.Size, stat.MtimeMs, stat.IsDir, indexedAt
		delete(m.byDevIno, oldDevIno)
		m.byDevIno[devInoKey{basePath, stat.Dev, stat.Ino}] = e
		return IndexResult{ID: e.ID, Action: ActionExisting}, nil
	}

	// (0, 0) means no inode identity is available; such entries match by
	// path only.
	dik := devInoKey{basePath, stat.Dev, stat.Ino}
	if e, ok := m.byDevIno[dik]; ok && (stat.Dev != 0 || stat.Ino != 0) {
		delete(m.byPath, pathKey{e.BasePath, e.RelPath})
		e.BasePath, e.RelPath = basePath, relPath
		e.Size, e.MtimeMs, e.IsDir, e.IndexedAt = stat.Size, stat.MtimeMs, stat.IsDir, indexedAt
		m.byPath[pk] = e
		return IndexResult{ID: e.ID, Action: ActionMoved}, nil
	}

	id := uuid.Must(uuid.NewV7()).String()
	e := &Entry{
		ID: id, BasePath: basePath, RelPath: relPath,
		Dev: stat.Dev, Ino: stat.Ino, Size: stat.Size, MtimeMs: stat.MtimeMs,
		IsDir: stat.IsDir, IndexedAt: indexedAt,
	}
	m.byID[id] = e
	m.byPath[pk] = e
	m.byDevIno[dik] = e
	return IndexResult{ID: id, Action: ActionAdded}, nil
}

func copyEntry(e *Entry) *Entry {
	if e == nil {
		return nil
	}
	cp := *e
	return &cp
}

func (m *MemoryStore) ResolveID(id string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyEntry(m.byID[id]), nil
}

func (m *MemoryStore) IdentifyPath(basePath, relPath string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyEntry(m.byPath[pathKey{basePath, relPath}]), nil
}

func (m *MemoryStore) RemoveFromIndex(basePath, relPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk := pathKey{basePath, relPath}
	e, ok := m.byPath[pk]
	if !ok {
		return nil
	}
	delete(m.byPath, pk)
	delete(m.byDevIno, devInoKey{basePath, e.Dev, e.Ino})
	delete(m.byID, e.ID)
	return nil
}

func (m *MemoryStore) RemoveFromIndexRecursive(basePath, relPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := relPath + "/"
	for pk, e := range m.byPath {
		if pk.base != basePath {
			continue
		}
		if pk.rel == relPath || strings.HasPrefix(pk.rel, prefix) {
			delete(m.byPath, pk)
			delete(m.byDevIno, devInoKey{basePath, e.Dev, e.Ino})
			delete(m.byID, e.ID)
		}
	}
	return nil
}

func (m *MemoryStore) BulkResolve(ids []string) (map[string]*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*Entry, len(ids))
	for _, id := range ids {
		out[id] = copyEntry(m.byID[id])
	}
	return out, nil
}

func (m *MemoryStore) TouchIndexedAtUnderDir(basePath, dir string, ts int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := dir + "/"
	for pk, e := range m.byPath {
		if pk.base != basePath {
			continue
		}
		if dir == "" || pk.rel == dir || strings.HasPrefix(pk.rel, prefix) {
			e.IndexedAt = ts
		}
	}
	return nil
}

func (m *MemoryStore) RemoveStaleEntries(basePath string, before int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for pk, e := range m.byPath {
		if pk.base != basePath {
			continue
		}
		if e.IndexedAt < before {
			delete(m.byPath, pk)
			delete(m.byDevIno, devInoKey{basePath, e.Dev, e.Ino})
			delete(m.byID, e.ID)
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) GetScanState(basePath, dirPath string) (*ScanStateRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.scanState[scanKey{basePath, dirPath}]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) PutScanState(row ScanStateRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := row
	m.scanState[scanKey{row.BasePath, row.DirPath}] = &cp
	return nil
}

func (m *MemoryStore) GetIndexStats() (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s Stats
	for _, e := range m.byID {
		s.TotalEntries++
		if e.IsDir {
			s.TotalDirs++
		} else {
			s.TotalFiles++
		}
	}
	return s, nil
}
