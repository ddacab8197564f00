package archive_test

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/zynqcloud/filegate/internal/archive"
)

func TestWriteTarRootsEntriesUnderBaseName(t *testing.T) {
	root := t.TempDir()
	dirName := filepath.Base(root)

	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0o750); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("world"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var buf bytes.Buffer
	if err := archive.WriteTar(&buf, root); err != nil {
		t.Fatalf("WriteTar: %v", err)
	}

	tr := tar.NewReader(&buf)
	seen := map[string]string{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("tar.Next: %v", err)
		}
		if hdr.Typeflag == tar.TypeReg {
			data, err := io.ReadAll(tr)
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
			seen[hdr.Name] = string(data)
		} else {
			seen[hdr.Name] = ""
		}
	}

	if got, ok := seen[dirName+"/a.txt"]; !ok || got != "hello" {
		t.Errorf("expected %s/a.txt = %q, got %q (present=%v)", dirName, "hello", got, ok)
	}
	if got, ok := seen[dirName+"/sub/b.txt"]; !ok || got != "world" {
		t.Errorf("expected %s/sub/b.txt = %q, got %q (present=%v)", dirName, "world", got, ok)
	}
	if _, ok := seen[dirName+"/"]; !ok {
		t.Errorf("expected a directory entry for %s/", dirName)
	}
}

func TestWriteTarSingleFile(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "only.txt")
	if err := os.WriteFile(filePath, []byte("content"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var buf bytes.Buffer
	if err := archive.WriteTar(&buf, filePath); err != nil {
		t.Fatalf("WriteTar: %v", err)
	}

	tr := tar.NewReader(&buf)
	hdr, err := tr.Next()
	if err != nil {
		t.Fatalf("tar.Next: %v", err)
	}
	if hdr.Name != "only.txt" {
		t.Errorf("Name = %q, want %q", hdr.Name, "only.txt")
	}
	data, err := io.ReadAll(tr)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "content" {
		t.Errorf("content = %q, want %q", data, "content")
	}
}
