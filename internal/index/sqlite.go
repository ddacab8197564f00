package index

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStore persists the index in a SQLite database opened in WAL mode with
// synchronous=NORMAL.
type SQLStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS file_index (
	id          TEXT PRIMARY KEY,
	base_path   TEXT NOT NULL,
	rel_path    TEXT NOT NULL,
	dev         INTEGER NOT NULL,
	ino         INTEGER NOT NULL,
	size        INTEGER NOT NULL,
	mtime_ms    INTEGER NOT NULL,
	is_dir      INTEGER NOT NULL,
	indexed_at  INTEGER NOT NULL,
	UNIQUE(base_path, rel_path)
);
CREATE INDEX IF NOT EXISTS idx_file_index_devino ON file_index(dev, ino);
CREATE INDEX IF NOT EXISTS idx_file_index_base ON file_index(base_path);

CREATE TABLE IF NOT EXISTS scan_state (
	base_path  TEXT NOT NULL,
	dir_path   TEXT NOT NULL,
	mtime_ms   INTEGER NOT NULL,
	scanned_at INTEGER NOT NULL,
	PRIMARY KEY(base_path, dir_path)
);
`

// OpenSQLite opens (creating if needed) a SQLite-backed Store at dsn path.
func OpenSQLite(path string) (*SQLStore, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("index: open sqlite: %w", err)
	}
	// file_index/scan_state writers must serialize through SQLite's single
	// writer; the scanner's worker pool calls Store concurrently, so cap the
	// pool at 1 to avoid SQLITE_BUSY under WAL with concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: migrate schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) IndexFile(basePath, relPath string, stat Stat, indexedAt int64) (IndexResult, error) {
	// Step 1: match on (basePath, relPath).
	var existingID string
	err := s.db.QueryRow(
		`SELECT id FROM file_index WHERE base_path = ? AND rel_path = ?`,
		basePath, relPath,
	).Scan(&existingID)
	if err == nil {
		_, err = s.db.Exec(
			`UPDATE file_index SET dev=?, ino=?, size=?, mtime_ms=?, is_dir=?, indexed_at=? WHERE id=?`,
			stat.Dev, stat.Ino, stat.Size, stat.MtimeMs, boolToInt(stat.IsDir), indexedAt, existingID,
		)
		if err != nil {
			return IndexResult{}, fmt.Errorf("index: update existing: %w", err)
		}
		return IndexResult{ID: existingID, Action: ActionExisting}, nil
	}
	if err != sql.ErrNoRows {
		return IndexResult{}, fmt.Errorf("index: lookup by path: %w", err)
	}

	// Step 2: match on (dev, ino) within this base, a move. (0, 0) means no
	// inode identity is available; such entries match by path only.
	err = s.db.QueryRow(
		`SELECT id FROM file_index WHERE base_path = ? AND dev = ? AND ino = ? AND (dev != 0 OR ino != 0)`,
		basePath, stat.Dev, stat.Ino,
	).Scan(&existingID)
	if err == nil {
		_, err = s.db.Exec(
			`UPDATE file_index SET rel_path=?, size=?, mtime_ms=?, is_dir=?, indexed_at=? WHERE id=?`,
			relPath, stat.Size, stat.MtimeMs, boolToInt(stat.IsDir), indexedAt, existingID,
		)
		if err != nil {
			return IndexResult{}, fmt.Errorf("index: update moved: %w", err)
		}
		return IndexResult{ID: existingID, Action: ActionMoved}, nil
	}
	if err != sql.ErrNoRows {
		return IndexResult{}, fmt.Errorf("index: lookup by devino: %w", err)
	}

	// Step 3: new entry.
	id := uuid.Must(uuid.NewV7()).String()
	_, err = s.db.Exec(
		`INSERT INTO file_index (id, base_path, rel_path, dev, ino, size, mtime_ms, is_dir, indexed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, basePath, relPath, stat.Dev, stat.Ino, stat.Size, stat.MtimeMs, boolToInt(stat.IsDir), indexedAt,
	)
	if err != nil {
		return IndexResult{}, fmt.Errorf("index: insert: %w", err)
	}
	return IndexResult{ID: id, Action: ActionAdded}, nil
}

func (s *SQLStore) ResolveID(id string) (*Entry, error) {
	return s.scanOneRow(`SELECT id, base_path, rel_path, dev, ino, size, mtime_ms, is_dir, indexed_at
		FROM file_index WHERE id = ?`, id)
}

func (s *SQLStore) IdentifyPath(basePath, relPath string) (*Entry, error) {
	return s.scanOneRow(`SELECT id, base_path, rel_path, dev, ino, size, mtime_ms, is_dir, indexed_at
		FROM file_index WHERE base_path = ? AND rel_path = ?`, basePath, relPath)
}

func (s *SQLStore) scanOneRow(query string, args ...any) (*Entry, error) {
	row := s.db.QueryRow(query, args...)
	var e Entry
	var isDir int
	err := row.Scan(&e.ID, &e.BasePath, &e.RelPath, &e.Dev, &e.Ino, &e.Size, &e.MtimeMs, &isDir, &e.IndexedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.IsDir = isDir != 0
	return &e, nil
}

func (s *SQLStore) RemoveFromIndex(basePath, relPath string) error {
	_, err := s.db.Exec(`DELETE FROM file_index WHERE base_path = ? AND rel_path = ?`, basePath, relPath)
	return err
}

// RemoveFromIndexRecursive matches rel_path or rel_path + "/%", escaping
// backslash, percent, and underscore in the prefix. Without the escape, a
// directory name containing LIKE metacharacters would match siblings.
func (s *SQLStore) RemoveFromIndexRecursive(basePath, relPath string) error {
	escaped := escapeLike(relPath)
	_, err := s.db.Exec(
		`DELETE FROM file_index WHERE base_path = ? AND (rel_path = ? OR rel_path LIKE ? ESCAPE '\')`,
		basePath, relPath, escaped+`/%`,
	)
	return err
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (s *SQLStore) BulkResolve(ids []string) (map[string]*Entry, error) {
	out := make(map[string]*Entry, len(ids))
	for _, id := range ids {
		out[id] = nil
	}
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(
		`SELECT id, base_path, rel_path, dev, ino, size, mtime_ms, is_dir, indexed_at
		 FROM file_index WHERE id IN (%s)`, strings.Join(placeholders, ","))

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var e Entry
		var isDir int
		if err := rows.Scan(&e.ID, &e.BasePath, &e.RelPath, &e.Dev, &e.Ino, &e.Size, &e.MtimeMs, &isDir, &e.IndexedAt); err != nil {
			return nil, err
		}
		e.IsDir = isDir != 0
		out[e.ID] = &e
	}
	return out, rows.Err()
}

func (s *SQLStore) TouchIndexedAtUnderDir(basePath, dir string, ts int64) error {
	if dir == "" {
		_, err := s.db.Exec(`UPDATE file_index SET indexed_at = ? WHERE base_path = ?`, ts, basePath)
		return err
	}
	escaped := escapeLike(dir)
	_, err := s.db.Exec(
		`UPDATE file_index SET indexed_at = ? WHERE base_path = ? AND (rel_path = ? OR rel_path LIKE ? ESCAPE '\')`,
		ts, basePath, dir, escaped+`/%`,
	)
	return err
}

func (s *SQLStore) RemoveStaleEntries(basePath string, before int64) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM file_index WHERE base_path = ? AND indexed_at < ?`, basePath, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLStore) GetScanState(basePath, dirPath string) (*ScanStateRow, error) {
	row := s.db.QueryRow(
		`SELECT base_path, dir_path, mtime_ms, scanned_at FROM scan_state WHERE base_path = ? AND dir_path = ?`,
		basePath, dirPath,
	)
	var r ScanStateRow
	err := row.Scan(&r.BasePath, &r.DirPath, &r.MtimeMs, &r.ScannedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLStore) PutScanState(row ScanStateRow) error {
	_, err := s.db.Exec(
		`INSERT INTO scan_state (base_path, dir_path, mtime_ms, scanned_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(base_path, dir_path) DO UPDATE SET mtime_ms = excluded.mtime_ms, scanned_at = excluded.scanned_at`,
		row.BasePath, row.DirPath, row.MtimeMs, row.ScannedAt,
	)
	return err
}

func (s *SQLStore) GetIndexStats() (Stats, error) {
	var stats Stats
	row := s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(is_dir), 0) FROM file_index`)
	var dirs int64
	if err := row.Scan(&stats.TotalEntries, &dirs); err != nil {
		return Stats{}, err
	}
	stats.TotalDirs = dirs
	stats.TotalFiles = stats.TotalEntries - dirs
	return stats, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
