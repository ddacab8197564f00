package fileops

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/zynqcloud/filegate/internal/index"
	"github.com/zynqcloud/filegate/internal/model"
	"github.com/zynqcloud/filegate/internal/ownership"
	"github.com/zynqcloud/filegate/internal/pathgate"
)

// TransferMode selects move vs copy semantics for Transfer.
type TransferMode string

const (
	ModeMove TransferMode = "move"
	ModeCopy TransferMode = "copy"
)

// TransferRequest is the body of POST /files/transfer.
type TransferRequest struct {
	From            string
	To              string
	Mode            TransferMode
	EnsureUniqueName bool
	Ownership       *ownership.Ownership
}

// Transfer moves or copies From to To.
func (o *Ops) Transfer(req TransferRequest) (*model.FileInfo, error) {
	if req.Mode == ModeMove {
		return o.move(req)
	}
	return o.copy(req)
}

func (o *Ops) move(req TransferRequest) (*model.FileInfo, error) {
	realFrom, realTo, basePath, err := o.gate.ValidateSameBase(req.From, req.To)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(realFrom); err != nil {
		if os.IsNotExist(err) {
			return nil, errf(http.StatusNotFound, "source not found")
		}
		return nil, errf(http.StatusInternalServerError, "stat source: %v", err)
	}

	dest := realTo
	if req.EnsureUniqueName {
		dest = EnsureUniqueName(dest)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return nil, errf(http.StatusInternalServerError, "mkdir destination parent: %v", err)
	}

	if err := os.Rename(realFrom, dest); err != nil {
		return nil, errf(http.StatusInternalServerError, "rename: %v", err)
	}

	if req.Ownership != nil {
		if err := ownership.ApplyRecursive(dest, *req.Ownership, o.devOverride); err != nil {
			return nil, errf(http.StatusInternalServerError, "apply ownership: %v", err)
		}
	}

	o.reindexMove(basePath, realFrom, dest)

	st, err := os.Stat(dest)
	if err != nil {
		return nil, errf(http.StatusInternalServerError, "stat destination: %v", err)
	}
	fi := o.toFileInfoNoIndex(basePath, dest, st)
	if o.indexStore != nil {
		if rel, err := filepath.Rel(basePath, dest); err == nil {
			if entry, err := o.indexStore.IdentifyPath(basePath, rel); err == nil && entry != nil {
				fi.FileID = entry.ID
			}
		}
	}
	return &fi, nil
}

// reindexMove updates the index so the source's id (if any) follows it to
// the new location. A subsequent scan's (dev,ino) match would do this
// anyway; this makes it immediate instead of waiting for the next scan.
func (o *Ops) reindexMove(basePath, oldReal, newReal string) {
	if o.indexStore == nil {
		return
	}
	st, err := os.Stat(newReal)
	if err != nil {
		return
	}
	rel, err := filepath.Rel(basePath, newReal)
	if err != nil {
		return
	}
	dev, ino := statDevIno(st)
	_, _ = o.indexStore.IndexFile(basePath, rel, index.Stat{
		Dev: dev, Ino: ino, Size: st.Size(), MtimeMs: st.ModTime().UnixMilli(), IsDir: st.IsDir(),
	}, time.Now().UnixMilli())
	if oldRel, err := filepath.Rel(basePath, oldReal); err == nil && oldRel != rel {
		if st.IsDir() {
			_ = o.indexStore.RemoveFromIndexRecursive(basePath, oldRel)
		} else {
			_ = o.indexStore.RemoveFromIndex(basePath, oldRel)
		}
	}
}

func (o *Ops) copy(req TransferRequest) (*model.FileInfo, error) {
	realFrom, realTo, basePath, sameBaseErr := o.gate.ValidateSameBase(req.From, req.To)

	var destBase string
	if sameBaseErr == nil {
		destBase = basePath
	} else {
		if req.Ownership == nil {
			return nil, errf(http.StatusBadRequest, "cross-base copy requires ownership (ownerUid, ownerGid, fileMode)")
		}
		fromRes, err := o.gate.Validate(req.From, pathgate.Options{})
		if err != nil {
			return nil, err
		}
		toRes, err := o.gate.Validate(req.To, pathgate.Options{CreateParents: true, Ownership: req.Ownership})
		if err != nil {
			return nil, err
		}
		realFrom, realTo, destBase = fromRes.RealPath, toRes.RealPath, toRes.BasePath
	}

	srcInfo, err := os.Stat(realFrom)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errf(http.StatusNotFound, "source not found")
		}
		return nil, errf(http.StatusInternalServerError, "stat source: %v", err)
	}

	dest := realTo
	if req.EnsureUniqueName {
		dest = EnsureUniqueName(dest)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return nil, errf(http.StatusInternalServerError, "mkdir destination parent: %v", err)
	}

	if err := copyTree(realFrom, dest, srcInfo); err != nil {
		os.RemoveAll(dest) //nolint:errcheck
		return nil, errf(http.StatusInternalServerError, "copy: %v", err)
	}

	if req.Ownership != nil {
		if err := ownership.ApplyRecursive(dest, *req.Ownership, o.devOverride); err != nil {
			os.RemoveAll(dest) //nolint:errcheck
			return nil, errf(http.StatusInternalServerError, "apply ownership: %v", err)
		}
	}

	st, err := os.Stat(dest)
	if err != nil {
		return nil, errf(http.StatusInternalServerError, "stat destination: %v", err)
	}
	fi := o.toFileInfoNoIndex(destBase, dest, st)
	o.indexPath(destBase, dest, st, &fi)
	return &fi, nil
}

// copyTree copies a file or recursively copies a directory tree, preserving
// each entry's permission bits (ownership, if requested, is applied
// afterward by the caller).
func copyTree(src, dst string, info os.FileInfo) error {
	if info.IsDir() {
		if err := os.MkdirAll(dst, info.Mode().Perm()); err != nil {
			return err
		}
		entries, err := os.ReadDir(src)
		if err != nil {
			return err
		}
		for _, e := range entries {
			childInfo, err := e.Info()
			if err != nil {
				return err
			}
			if err := copyTree(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name()), childInfo); err != nil {
				return err
			}
		}
		return nil
	}
	return copyFile(src, dst, info.Mode().Perm())
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
