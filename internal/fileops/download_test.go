package fileops_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/zynqcloud/filegate/internal/fileops"
)

func TestPrepareDownloadRejectsOversizedFile(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "big.bin")
	if err := os.WriteFile(target, bytes.Repeat([]byte("x"), 1000), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	ops := newTestOps(t, base)
	if _, err := ops.PrepareDownload(target, 10); err == nil {
		t.Fatal("expected oversized file download to be rejected")
	}
}

func TestPrepareDownloadDirectorySumsRecursiveSize(t *testing.T) {
	base := t.TempDir()
	if err := os.MkdirAll(filepath.Join(base, "dir", "sub"), 0o750); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(base, "dir", "a.txt"), bytes.Repeat([]byte("x"), 10), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(base, "dir", "sub", "b.txt"), bytes.Repeat([]byte("y"), 20), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	ops := newTestOps(t, base)
	info, err := ops.PrepareDownload(filepath.Join(base, "dir"), 1000)
	if err != nil {
		t.Fatalf("PrepareDownload: %v", err)
	}
	if !info.IsDir {
		t.Fatal("expected IsDir = true")
	}
	if info.Size != 30 {
		t.Errorf("Size = %d, want 30", info.Size)
	}
}

func TestOpenFileReadsBack(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "content.txt")
	if err := os.WriteFile(target, []byte("readable"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	f, err := fileops.OpenFile(target)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(f); err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if buf.String() != "readable" {
		t.Errorf("content = %q, want %q", buf.String(), "readable")
	}
}
