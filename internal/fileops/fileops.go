// Package fileops implements the file operations behind the HTTP surface:
// info/listing, streaming read/write, mkdir, delete, and move/copy.
// Every call here runs its target through pathgate first.
package fileops

import (
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zynqcloud/filegate/internal/index"
	"github.com/zynqcloud/filegate/internal/mimeutil"
	"github.com/zynqcloud/filegate/internal/model"
	"github.com/zynqcloud/filegate/internal/ownership"
	"github.com/zynqcloud/filegate/internal/pathgate"
)

// Error is a file-operation failure carrying the HTTP status it maps to.
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

// Ops owns the Path Gate and (optional) Index Store shared by every
// file-operation call.
type Ops struct {
	gate        *pathgate.Gate
	indexStore  index.Store // nil disables indexing
	devOverride *ownership.DevOverride
}

// New creates an Ops. indexStore may be nil to disable indexing.
func New(gate *pathgate.Gate, indexStore index.Store, devOverride *ownership.DevOverride) *Ops {
	return &Ops{gate: gate, indexStore: indexStore, devOverride: devOverride}
}

// InfoOptions controls Info's behavior.
type InfoOptions struct {
	ShowHidden   bool
	ComputeSizes bool
}

// Info stats path; for a file it returns a FileInfo, for a directory a
// DirInfo with its listing.
func (o *Ops) Info(path string, opts InfoOptions) (*model.FileInfo, *model.DirInfo, error) {
	res, err := o.gate.Validate(path, pathgate.Options{AllowBasePath: true})
	if err != nil {
		return nil, nil, err
	}

	st, err := os.Stat(res.RealPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errf(http.StatusNotFound, "path not found")
		}
		return nil, nil, errf(http.StatusInternalServerError, "stat: %v", err)
	}

	if !st.IsDir() {
		fi := o.toFileInfo(res.BasePath, res.RealPath, st)
		return &fi, nil, nil
	}

	dirInfo, err := o.listDir(res.BasePath, res.RealPath, st, opts)
	if err != nil {
		return nil, nil, err
	}
	return nil, dirInfo, nil
}

func (o *Ops) listDir(basePath, realPath string, st os.FileInfo, opts InfoOptions) (*model.DirInfo, error) {
	entries, err := os.ReadDir(realPath)
	if err != nil {
		return nil, errf(http.StatusInternalServerError, "readdir: %v", err)
	}

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		items = make([]model.FileInfo, 0, len(entries))
	)

	for _, e := range entries {
		name := e.Name()
		if !opts.ShowHidden && strings.HasPrefix(name, ".") {
			continue
		}
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			entryPath := filepath.Join(realPath, name)
			// Stat failures during listing drop the entry silently.
			einfo, err := os.Lstat(entryPath)
			if err != nil {
				return
			}
			fi := o.toFileInfo(basePath, entryPath, einfo)
			if einfo.IsDir() && opts.ComputeSizes {
				fi.Size, _ = dirSize(entryPath)
			}
			mu.Lock()
			items = append(items, fi)
			mu.Unlock()
		}(name)
	}
	wg.Wait()

	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })

	var total int64
	if opts.ComputeSizes {
		for _, it := range items {
			total += it.Size
		}
	}

	dir := model.DirInfo{
		FileInfo: o.toFileInfo(basePath, realPath, st),
		Items:    items,
		Total:    len(items),
	}
	if opts.ComputeSizes {
		dir.Size = total
	}
	return &dir, nil
}

func (o *Ops) toFileInfo(basePath, realPath string, st os.FileInfo) model.FileInfo {
	name := st.Name()
	typ := model.TypeFile
	if st.IsDir() {
		typ = model.TypeDirectory
	}
	fi := model.FileInfo{
		Name:     name,
		Path:     realPath,
		Type:     typ,
		Size:     st.Size(),
		Mtime:    st.ModTime().Format(time.RFC3339),
		IsHidden: strings.HasPrefix(name, "."),
	}
	if typ == model.TypeDirectory {
		fi.Size = 0
	} else {
		fi.MimeType = mimeutil.Guess(realPath)
	}
	if o.indexStore != nil {
		if rel, err := filepath.Rel(basePath, realPath); err == nil {
			if rel == "." {
				rel = ""
			}
			if entry, err := o.indexStore.IdentifyPath(basePath, rel); err == nil && entry != nil {
				fi.FileID = entry.ID
			}
		}
	}
	return fi
}

// dirSize sums st_size recursively. A direct walk avoids shelling out to du
// and its per-platform flag differences, at the cost of not counting
// filesystem overhead for sparse files.
func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // stat failure on an entry: skip silently
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	return total, err
}

// Mkdir creates a directory recursively and applies ownership if given. If
// applying ownership fails and the target did not exist before, the target
// directory is removed; parent directories created along the way are left
// in place, and other errors after creation remove nothing.
func (o *Ops) Mkdir(path string, own *ownership.Ownership) (*model.FileInfo, error) {
	// CreateParents so a nested target validates even when intermediate
	// directories do not exist yet; the gate applies directory ownership to
	// each level it creates.
	res, err := o.gate.Validate(path, pathgate.Options{CreateParents: true, Ownership: own})
	if err != nil {
		return nil, err
	}

	created := !exists(res.RealPath)
	if err := os.MkdirAll(res.RealPath, 0o750); err != nil {
		return nil, errf(http.StatusInternalServerError, "mkdir: %v", err)
	}

	if own != nil {
		if err := ownership.ApplyDirWithOverride(res.RealPath, *own, o.devOverride); err != nil {
			if created {
				os.RemoveAll(res.RealPath) //nolint:errcheck
			}
			return nil, errf(http.StatusInternalServerError, "apply ownership: %v", err)
		}
	}

	st, err := os.Stat(res.RealPath)
	if err != nil {
		return nil, errf(http.StatusInternalServerError, "stat: %v", err)
	}
	fi := o.toFileInfoNoIndex(res.BasePath, res.RealPath, st)
	o.indexPath(res.BasePath, res.RealPath, st, &fi)
	return &fi, nil
}

func (o *Ops) toFileInfoNoIndex(basePath, realPath string, st os.FileInfo) model.FileInfo {
	typ := model.TypeFile
	if st.IsDir() {
		typ = model.TypeDirectory
	}
	fi := model.FileInfo{
		Name:     st.Name(),
		Path:     realPath,
		Type:     typ,
		Size:     st.Size(),
		Mtime:    st.ModTime().Format(time.RFC3339),
		IsHidden: strings.HasPrefix(st.Name(), "."),
	}
	if typ == model.TypeFile {
		fi.MimeType = mimeutil.Guess(realPath)
	} else {
		fi.Size = 0
	}
	return fi
}

// Delete removes path recursively and best-effort removes it from the
// index. Index removal failure never fails the request.
func (o *Ops) Delete(path string) error {
	res, err := o.gate.Validate(path, pathgate.Options{})
	if err != nil {
		return err
	}

	st, err := os.Stat(res.RealPath)
	if err != nil {
		if os.IsNotExist(err) {
			return errf(http.StatusNotFound, "path not found")
		}
		return errf(http.StatusInternalServerError, "stat: %v", err)
	}

	if err := os.RemoveAll(res.RealPath); err != nil {
		return errf(http.StatusInternalServerError, "delete: %v", err)
	}

	if o.indexStore != nil {
		if rel, err := filepath.Rel(res.BasePath, res.RealPath); err == nil {
			if st.IsDir() {
				_ = o.indexStore.RemoveFromIndexRecursive(res.BasePath, rel)
			} else {
				_ = o.indexStore.RemoveFromIndex(res.BasePath, rel)
			}
		}
	}
	return nil
}

// indexPath indexes a freshly created or written path, filling fi.FileID on
// success. Index-store failures never fail the surrounding operation.
func (o *Ops) indexPath(basePath, realPath string, st os.FileInfo, fi *model.FileInfo) {
	if o.indexStore == nil {
		return
	}
	rel, err := filepath.Rel(basePath, realPath)
	if err != nil {
		return
	}
	dev, ino := statDevIno(st)
	result, err := o.indexStore.IndexFile(basePath, rel, index.Stat{
		Dev: dev, Ino: ino, Size: st.Size(), MtimeMs: st.ModTime().UnixMilli(), IsDir: st.IsDir(),
	}, time.Now().UnixMilli())
	if err != nil {
		return
	}
	fi.FileID = result.ID
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// SanitizeFilename rejects names containing path separators, control
// characters, or reserved device names. A name that differs after
// sanitization is rejected outright rather than silently rewritten, so a
// forged X-File-Name header like "../evil" can never reach the filesystem.
func SanitizeFilename(name string) (string, error) {
	if name == "" || name == "." || name == ".." {
		return "", errf(http.StatusBadRequest, "invalid filename")
	}
	if strings.ContainsAny(name, "/\\") {
		return "", errf(http.StatusBadRequest, "filename must not contain path separators")
	}
	var b strings.Builder
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	clean := b.String()
	if clean != name {
		return "", errf(http.StatusBadRequest, "filename contains invalid characters")
	}
	if reservedDeviceNames[strings.ToUpper(clean)] {
		return "", errf(http.StatusBadRequest, "filename is a reserved device name")
	}
	return clean, nil
}

var reservedDeviceNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true,
}

// UploadFile streams body to disk at path/filename, enforcing maxBytes,
// applying ownership, and indexing the result. Aborts with 413 and unlinks
// the partial file if the stream exceeds maxBytes.
func (o *Ops) UploadFile(dirPath, filename string, body io.Reader, maxBytes int64, own *ownership.Ownership) (*model.FileInfo, error) {
	clean, err := SanitizeFilename(filename)
	if err != nil {
		return nil, err
	}

	target := filepath.Join(dirPath, clean)
	res, err := o.gate.Validate(target, pathgate.Options{CreateParents: true, Ownership: own})
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(res.RealPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return nil, errf(http.StatusInternalServerError, "open: %v", err)
	}

	limited := &limitedReader{r: body, limit: maxBytes}
	_, werr := io.Copy(f, limited)
	cerr := f.Close()

	if limited.exceeded {
		os.Remove(res.RealPath) //nolint:errcheck
		return nil, errf(http.StatusRequestEntityTooLarge, "upload exceeds maximum size")
	}
	if werr != nil || cerr != nil {
		os.Remove(res.RealPath) //nolint:errcheck
		return nil, errf(http.StatusInternalServerError, "write: %v", werr)
	}

	if own != nil {
		if err := ownership.ApplyWithOverride(res.RealPath, *own, o.devOverride); err != nil {
			os.Remove(res.RealPath) //nolint:errcheck
			return nil, errf(http.StatusInternalServerError, "apply ownership: %v", err)
		}
	}

	st, err := os.Stat(res.RealPath)
	if err != nil {
		return nil, errf(http.StatusInternalServerError, "stat: %v", err)
	}
	fi := o.toFileInfoNoIndex(res.BasePath, res.RealPath, st)
	o.indexPath(res.BasePath, res.RealPath, st, &fi)
	return &fi, nil
}

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

// EnsureUniqueName rewrites target to avoid a collision: "-01".."-99"
// suffixes, falling back to a Unix-ms timestamp if all are taken.
func EnsureUniqueName(target string) string {
	if !exists(target) {
		return target
	}
	dir := filepath.Dir(target)
	base := filepath.Base(target)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	for i := 1; i <= 99; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s-%02d%s", stem, i, ext))
		if !exists(candidate) {
			return candidate
		}
	}
	return filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, time.Now().UnixMilli(), ext))
}

// ParseHeaderOwnership builds an Ownership from request header strings,
// returning (nil, nil) when none were supplied.
func ParseHeaderOwnership(uid, gid, fileMode, dirMode string) (*ownership.Ownership, error) {
	if uid == "" && gid == "" && fileMode == "" {
		return nil, nil
	}
	if uid == "" || gid == "" || fileMode == "" {
		return nil, errf(http.StatusBadRequest, "ownership requires uid, gid, and fileMode together")
	}
	u, err := ownership.ParseID(uid)
	if err != nil {
		return nil, errf(http.StatusBadRequest, "%v", err)
	}
	g, err := ownership.ParseID(gid)
	if err != nil {
		return nil, errf(http.StatusBadRequest, "%v", err)
	}
	fm, err := ownership.ParseMode(fileMode)
	if err != nil {
		return nil, errf(http.StatusBadRequest, "%v", err)
	}
	var dm *fs.FileMode
	if dirMode != "" {
		parsed, err := ownership.ParseMode(dirMode)
		if err != nil {
			return nil, errf(http.StatusBadRequest, "%v", err)
		}
		dm = &parsed
	}
	own := ownership.New(u, g, fm, dm)
	return &own, nil
}
