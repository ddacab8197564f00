package fileops_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/zynqcloud/filegate/internal/fileops"
	"github.com/zynqcloud/filegate/internal/ownership"
	"github.com/zynqcloud/filegate/internal/pathgate"
)

func currentOwnership(t *testing.T) ownership.Ownership {
	t.Helper()
	return ownership.New(os.Getuid(), os.Getgid(), 0o644, nil)
}

func TestTransferMoveWithinSameBase(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src.txt")
	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	gate, err := pathgate.New([]string{base})
	if err != nil {
		t.Fatalf("pathgate.New: %v", err)
	}
	ops := fileops.New(gate, nil, nil)

	dst := filepath.Join(base, "dst.txt")
	if _, err := ops.Transfer(fileops.TransferRequest{From: src, To: dst, Mode: fileops.ModeMove}); err != nil {
		t.Fatalf("Transfer move: %v", err)
	}

	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("expected source to no longer exist after move")
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("ReadFile destination: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("destination content = %q, want %q", got, "payload")
	}
}

// Copying across two distinct configured base paths must be rejected
// unless ownership is supplied, and succeeds once it is.
func TestTransferCopyCrossBaseRequiresOwnership(t *testing.T) {
	baseA := t.TempDir()
	baseB := t.TempDir()
	src := filepath.Join(baseA, "file.txt")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	gate, err := pathgate.New([]string{baseA, baseB})
	if err != nil {
		t.Fatalf("pathgate.New: %v", err)
	}
	ops := fileops.New(gate, nil, nil)

	dst := filepath.Join(baseB, "file.txt")
	if _, err := ops.Transfer(fileops.TransferRequest{From: src, To: dst, Mode: fileops.ModeCopy}); err == nil {
		t.Fatal("expected cross-base copy without ownership to be rejected")
	}

	own := currentOwnership(t)
	if _, err := ops.Transfer(fileops.TransferRequest{From: src, To: dst, Mode: fileops.ModeCopy, Ownership: &own}); err != nil {
		t.Fatalf("expected cross-base copy with ownership to succeed: %v", err)
	}
	if _, err := os.Stat(src); err != nil {
		t.Error("expected source to still exist after copy")
	}
	if _, err := os.Stat(dst); err != nil {
		t.Errorf("expected destination to exist after copy: %v", err)
	}
}

func TestTransferCopySameBaseEnsuresUniqueName(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "a.txt")
	if err := os.WriteFile(src, []byte("a"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	dst := filepath.Join(base, "b.txt")
	if err := os.WriteFile(dst, []byte("existing"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	gate, err := pathgate.New([]string{base})
	if err != nil {
		t.Fatalf("pathgate.New: %v", err)
	}
	ops := fileops.New(gate, nil, nil)

	fi, err := ops.Transfer(fileops.TransferRequest{From: src, To: dst, Mode: fileops.ModeCopy, EnsureUniqueName: true})
	if err != nil {
		t.Fatalf("Transfer copy: %v", err)
	}
	if fi.Path == dst {
		t.Errorf("expected collision-avoiding path, got the original destination %q", dst)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Error("expected pre-existing destination to be left untouched")
	}
}
