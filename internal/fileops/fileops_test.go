package fileops_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zynqcloud/filegate/internal/fileops"
	"github.com/zynqcloud/filegate/internal/model"
	"github.com/zynqcloud/filegate/internal/pathgate"
)

func newTestOps(t *testing.T, base string) *fileops.Ops {
	t.Helper()
	gate, err := pathgate.New([]string{base})
	if err != nil {
		t.Fatalf("pathgate.New: %v", err)
	}
	return fileops.New(gate, nil, nil)
}

func TestInfoOnFileReturnsFileInfo(t *testing.T) {
	base := t.TempDir()
	if err := os.WriteFile(filepath.Join(base, "note.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	ops := newTestOps(t, base)
	fi, dir, err := ops.Info(filepath.Join(base, "note.txt"), fileops.InfoOptions{})
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if dir != nil {
		t.Fatal("expected nil DirInfo for a file target")
	}
	if fi.Type != model.TypeFile || fi.Size != 2 {
		t.Errorf("unexpected FileInfo: %+v", fi)
	}
}

func TestInfoOnDirectoryListsVisibleEntriesOnly(t *testing.T) {
	base := t.TempDir()
	if err := os.WriteFile(filepath.Join(base, "visible.txt"), []byte("a"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(base, ".hidden"), []byte("b"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	ops := newTestOps(t, base)
	fi, dir, err := ops.Info(base, fileops.InfoOptions{})
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if fi != nil {
		t.Fatal("expected nil FileInfo for a directory target")
	}
	if dir.Total != 1 || dir.Items[0].Name != "visible.txt" {
		t.Errorf("unexpected listing: %+v", dir.Items)
	}

	_, dir, err = ops.Info(base, fileops.InfoOptions{ShowHidden: true})
	if err != nil {
		t.Fatalf("Info(ShowHidden): %v", err)
	}
	if dir.Total != 2 {
		t.Errorf("expected 2 entries with ShowHidden, got %d", dir.Total)
	}
}

func TestMkdirCreatesDirectoryRecursively(t *testing.T) {
	base := t.TempDir()
	ops := newTestOps(t, base)

	fi, err := ops.Mkdir(filepath.Join(base, "a", "b"), nil)
	if err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if fi.Type != model.TypeDirectory {
		t.Errorf("expected directory type, got %v", fi.Type)
	}
	if _, err := os.Stat(filepath.Join(base, "a", "b")); err != nil {
		t.Fatalf("expected directory to exist: %v", err)
	}
}

func TestDeleteRemovesPathRecursively(t *testing.T) {
	base := t.TempDir()
	nested := filepath.Join(base, "dir", "child.txt")
	if err := os.MkdirAll(filepath.Dir(nested), 0o750); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(nested, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	ops := newTestOps(t, base)
	if err := ops.Delete(filepath.Join(base, "dir")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "dir")); !os.IsNotExist(err) {
		t.Fatal("expected directory to be removed")
	}
}

func TestDeleteMissingPathReturnsNotFound(t *testing.T) {
	base := t.TempDir()
	ops := newTestOps(t, base)

	if err := ops.Delete(filepath.Join(base, "absent.txt")); err == nil {
		t.Fatal("expected error deleting a missing path")
	}
}

func TestSanitizeFilenameRejectsSeparatorsAndReservedNames(t *testing.T) {
	cases := []struct {
		name    string
		wantErr bool
	}{
		{"report.txt", false},
		{"../escape.txt", true},
		{"a/b.txt", true},
		{"CON", true},
		{"con", true},
		{"", true},
	}
	for _, c := range cases {
		_, err := fileops.SanitizeFilename(c.name)
		if (err != nil) != c.wantErr {
			t.Errorf("SanitizeFilename(%q): err = %v, wantErr = %v", c.name, err, c.wantErr)
		}
	}
}

func TestEnsureUniqueNameAppendsNumberedSuffix(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "photo.jpg")
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got := fileops.EnsureUniqueName(target)
	want := filepath.Join(base, "photo-01.jpg")
	if got != want {
		t.Errorf("EnsureUniqueName = %q, want %q", got, want)
	}
}

func TestEnsureUniqueNameReturnsOriginalWhenFree(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "new.jpg")
	if got := fileops.EnsureUniqueName(target); got != target {
		t.Errorf("EnsureUniqueName = %q, want unchanged %q", got, target)
	}
}

func TestUploadFileEnforcesMaxBytes(t *testing.T) {
	base := t.TempDir()
	ops := newTestOps(t, base)

	content := strings.NewReader(strings.Repeat("x", 100))
	_, err := ops.UploadFile(base, "big.bin", content, 10, nil)
	if err == nil {
		t.Fatal("expected upload to be rejected for exceeding maxBytes")
	}
	if _, statErr := os.Stat(filepath.Join(base, "big.bin")); statErr == nil {
		t.Error("expected partial upload to be removed after size rejection")
	}
}

func TestUploadFileWritesContent(t *testing.T) {
	base := t.TempDir()
	ops := newTestOps(t, base)

	fi, err := ops.UploadFile(base, "small.txt", strings.NewReader("hello"), 100, nil)
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if fi.Size != 5 {
		t.Errorf("Size = %d, want 5", fi.Size)
	}
	got, err := os.ReadFile(filepath.Join(base, "small.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("content = %q, want %q", got, "hello")
	}
}
