// Package archive packages a directory subtree into a TAR stream for
// directory downloads.
package archive

import (
	"archive/tar"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// WriteTar walks root and writes every entry into w as a TAR stream, with
// entry names rooted at filepath.Base(root), so extracting the archive
// produces a top-level directory matching the original name.
func WriteTar(w io.Writer, root string) error {
	tw := tar.NewWriter(w)
	defer tw.Close()

	base := filepath.Base(root)

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // stat failure on an entry: skip silently, same as listing
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		name := base
		if rel != "." {
			name = filepath.ToSlash(filepath.Join(base, rel))
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return nil
		}
		hdr.Name = name
		if d.IsDir() {
			hdr.Name += "/"
		}

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		if d.IsDir() || !info.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()

		_, err = io.Copy(tw, f)
		return err
	})
}
