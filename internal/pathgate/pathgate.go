// Package pathgate is the mandatory pre-flight every mutating or reading
// filesystem operation passes through: it resolves a user-supplied path
// through symlinks, pins it inside a configured base path, and optionally
// prepares parent directories (with ownership) before resolution.
//
// This is the service's security boundary: every other component trusts
// that a path which has passed Validate cannot reach outside the configured
// bases, even via a symlink planted after the fact.
package pathgate

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/zynqcloud/filegate/internal/ownership"
)

// Error is a gate failure carrying the HTTP status it should map to.
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

// Result is the outcome of a successful Validate call.
type Result struct {
	RealPath string
	BasePath string
}

// Options controls optional Validate behavior.
type Options struct {
	// AllowBasePath permits the target to equal the base path itself.
	AllowBasePath bool
	// CreateParents creates parent(normalized) recursively before symlink
	// resolution, applying Ownership to each created directory level.
	CreateParents bool
	// Ownership, when set and CreateParents is true, is applied to every
	// directory created along the way (but never above the base itself).
	Ownership *ownership.Ownership
}

// Gate validates paths against a fixed set of configured base directories.
// Each base's real (symlink-resolved) form is memoized once at startup;
// bases never change for the life of the process.
type Gate struct {
	bases    []string
	realBase map[string]string
}

// New creates a Gate over the given absolute base directories. Each base is
// resolved to its real path immediately so Validate never pays that cost
// more than once per base.
func New(bases []string) (*Gate, error) {
	g := &Gate{
		bases:    make([]string, 0, len(bases)),
		realBase: make(map[string]string, len(bases)),
	}
	for _, b := range bases {
		clean := filepath.Clean(b)
		if !filepath.IsAbs(clean) {
			return nil, fmt.Errorf("pathgate: base %q is not absolute", b)
		}
		real, err := filepath.EvalSymlinks(clean)
		if err != nil {
			return nil, fmt.Errorf("pathgate: resolve base %q: %w", clean, err)
		}
		g.bases = append(g.bases, clean)
		g.realBase[clean] = filepath.Clean(real)
	}
	return g, nil
}

// Bases returns the configured base paths (normalized, pre-symlink-resolution).
func (g *Gate) Bases() []string { return append([]string(nil), g.bases...) }

// findBase returns the normalized base that contains normalized, or "" if none.
func (g *Gate) findBase(normalized string) string {
	for _, b := range g.bases {
		if normalized == b || strings.HasPrefix(normalized, b+string(filepath.Separator)) {
			return b
		}
	}
	return ""
}

// Validate normalizes path, checks base containment, optionally prepares
// parent directories, resolves symlinks, and re-checks containment against
// the resolved base.
func (g *Gate) Validate(path string, opts Options) (*Result, error) {
	normalized := filepath.Clean(path)
	if !filepath.IsAbs(normalized) {
		return nil, errf(http.StatusBadRequest, "path must be absolute")
	}

	base := g.findBase(normalized)
	if base == "" {
		return nil, errf(http.StatusForbidden, "path not allowed")
	}
	if normalized == base && !opts.AllowBasePath {
		return nil, errf(http.StatusForbidden, "cannot operate on base path")
	}

	if opts.CreateParents {
		parent := filepath.Dir(normalized)
		if err := os.MkdirAll(parent, 0o750); err != nil {
			return nil, errf(http.StatusInternalServerError, "create parent dirs: %v", err)
		}
		if opts.Ownership != nil {
			if err := applyParentOwnership(parent, g.realBase[base], *opts.Ownership); err != nil {
				return nil, errf(http.StatusInternalServerError, "apply parent ownership: %v", err)
			}
		}
	}

	realPath, err := resolveReal(normalized)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errf(http.StatusNotFound, "path not found")
		}
		return nil, errf(http.StatusBadRequest, "resolve path: %v", err)
	}

	realBase := g.realBase[base]
	if realPath != realBase && !strings.HasPrefix(realPath, realBase+string(filepath.Separator)) {
		return nil, errf(http.StatusForbidden, "symlink escape not allowed")
	}

	return &Result{RealPath: realPath, BasePath: base}, nil
}

// ValidateSameBase validates both from and to and requires them to resolve
// to the same configured base. Move and intra-base copy depend on this.
func (g *Gate) ValidateSameBase(from, to string) (realFrom, realTo, basePath string, err error) {
	rf, err := g.Validate(from, Options{})
	if err != nil {
		return "", "", "", err
	}
	rt, err := g.Validate(to, Options{CreateParents: false, AllowBasePath: false})
	if err != nil {
		return "", "", "", err
	}
	if rf.BasePath != rt.BasePath {
		return "", "", "", errf(http.StatusForbidden, "source and destination must share a base path")
	}
	return rf.RealPath, rt.RealPath, rf.BasePath, nil
}

// resolveReal resolves symlinks on normalized. If the target does not yet
// exist, it resolves the parent instead and synthesizes
// realpath(parent)/basename.
func resolveReal(normalized string) (string, error) {
	real, err := filepath.EvalSymlinks(normalized)
	if err == nil {
		return filepath.Clean(real), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	parent := filepath.Dir(normalized)
	realParent, perr := filepath.EvalSymlinks(parent)
	if perr != nil {
		return "", os.ErrNotExist
	}
	return filepath.Join(filepath.Clean(realParent), filepath.Base(normalized)), nil
}

// applyParentOwnership walks from the created-most-leaf parent upward,
// stopping strictly before realBase, applying directory ownership at each
// level.
func applyParentOwnership(parent, realBase string, own ownership.Ownership) error {
	realParent, err := filepath.EvalSymlinks(parent)
	if err != nil {
		return err
	}
	realParent = filepath.Clean(realParent)

	dir := realParent
	for dir != realBase && dir != string(filepath.Separator) && dir != "." {
		if err := ownership.ApplyDir(dir, own); err != nil {
			return err
		}
		next := filepath.Dir(dir)
		if next == dir {
			break
		}
		dir = next
	}
	return nil
}
