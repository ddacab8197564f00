// Package ownership parses uid/gid/mode triples and applies them to files
// and directories, deriving a directory mode from a file mode when one is
// not explicitly supplied.
package ownership

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"syscall"
)

// Ownership is the {uid, gid, fileMode, dirMode} tuple applied to created
// or copied entries.
type Ownership struct {
	UID      int
	GID      int
	FileMode fs.FileMode
	DirMode  fs.FileMode
}

var modePattern = regexp.MustCompile(`^[0-7]{3,4}$`)

// ParseMode accepts a 3- or 4-digit octal string ("644", "0755") and
// rejects anything else.
func ParseMode(s string) (fs.FileMode, error) {
	if !modePattern.MatchString(s) {
		return 0, fmt.Errorf("invalid mode %q: must be 3-4 octal digits", s)
	}
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid mode %q: %w", s, err)
	}
	return fs.FileMode(v) & fs.ModePerm, nil
}

// ParseID accepts a non-negative integer uid/gid.
func ParseID(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid uid/gid %q: must be a non-negative integer", s)
	}
	return v, nil
}

// DeriveDirMode derives a directory mode from a file mode: for each of
// owner/group/other, if the read bit is set, also set the execute bit.
// E.g. 0o644 -> 0o755, 0o600 -> 0o700, 0o640 -> 0o750.
func DeriveDirMode(fileMode fs.FileMode) fs.FileMode {
	const (
		ownerRead = 0o400
		ownerExec = 0o100
		groupRead = 0o040
		groupExec = 0o010
		otherRead = 0o004
		otherExec = 0o001
	)
	dir := fileMode
	if fileMode&ownerRead != 0 {
		dir |= ownerExec
	}
	if fileMode&groupRead != 0 {
		dir |= groupExec
	}
	if fileMode&otherRead != 0 {
		dir |= otherExec
	}
	return dir
}

// New builds an Ownership from parsed uid, gid, and file mode, deriving the
// directory mode per DeriveDirMode unless dirMode is explicitly given.
func New(uid, gid int, fileMode fs.FileMode, dirMode *fs.FileMode) Ownership {
	o := Ownership{UID: uid, GID: gid, FileMode: fileMode}
	if dirMode != nil {
		o.DirMode = *dirMode
	} else {
		o.DirMode = DeriveDirMode(fileMode)
	}
	return o
}

// DevOverride, when non-nil for both fields, forces uid/gid to fixed
// development values regardless of what the caller requested, and logs the
// substitution. Wired from Config.DevUIDOverride/DevGIDOverride.
type DevOverride struct {
	UID int
	GID int
}

// applyOverride replaces uid/gid on own if override is set, keeping mode bits.
func applyOverride(own Ownership, override *DevOverride) Ownership {
	if override == nil {
		return own
	}
	own.UID = override.UID
	own.GID = override.GID
	return own
}

// Apply performs chown then chmod on a single path, treating EPERM as
// "permission denied (not root?)" and EINVAL as "invalid uid/gid".
func Apply(path string, own Ownership) error {
	return applyWithOverride(path, own, nil, own.FileMode)
}

// ApplyDir is like Apply but uses own.DirMode as the mode to chmod.
func ApplyDir(path string, own Ownership) error {
	return applyWithOverride(path, own, nil, own.DirMode)
}

// ApplyWithOverride is Apply, consulting a dev override if non-nil.
func ApplyWithOverride(path string, own Ownership, override *DevOverride) error {
	return applyWithOverride(path, own, override, own.FileMode)
}

// ApplyDirWithOverride is ApplyDir, consulting a dev override if non-nil.
func ApplyDirWithOverride(path string, own Ownership, override *DevOverride) error {
	return applyWithOverride(path, own, override, own.DirMode)
}

func applyWithOverride(path string, own Ownership, override *DevOverride, mode fs.FileMode) error {
	effective := applyOverride(own, override)
	if override != nil {
		slog.Info("dev ownership override applied", "path", path, "uid", effective.UID, "gid", effective.GID)
	}

	if err := os.Chown(path, effective.UID, effective.GID); err != nil {
		return translateErr(err)
	}
	if err := os.Chmod(path, mode); err != nil {
		return translateErr(err)
	}
	return nil
}

func translateErr(err error) error {
	if errors.Is(err, syscall.EPERM) {
		return fmt.Errorf("permission denied (not root?): %w", err)
	}
	if errors.Is(err, syscall.EINVAL) {
		return fmt.Errorf("invalid uid/gid: %w", err)
	}
	return err
}

// ApplyRecursive applies ownership depth-first: for a directory, the
// directory mode is applied before recursing into entries; for a file, the
// file mode is applied. On first error it aborts and returns; the caller
// decides whether to roll back a partially-applied tree.
func ApplyRecursive(root string, own Ownership, override *DevOverride) error {
	info, err := os.Lstat(root)
	if err != nil {
		return err
	}
	return applyRecursive(root, info, own, override)
}

func applyRecursive(path string, info os.FileInfo, own Ownership, override *DevOverride) error {
	if info.IsDir() {
		if err := ApplyDirWithOverride(path, own, override); err != nil {
			return err
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return err
		}
		for _, e := range entries {
			childPath := filepath.Join(path, e.Name())
			childInfo, err := e.Info()
			if err != nil {
				return err
			}
			if err := applyRecursive(childPath, childInfo, own, override); err != nil {
				return err
			}
		}
		return nil
	}
	return ApplyWithOverride(path, own, override)
}
