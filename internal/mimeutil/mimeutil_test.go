package mimeutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/zynqcloud/filegate/internal/mimeutil"
)

func TestGuessByExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")
	if err := os.WriteFile(path, []byte(`{"a":1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := mimeutil.Guess(path); got != "application/json" {
		t.Errorf("Guess(.json) = %q, want application/json", got)
	}
}

func TestGuessStripsParameters(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.html")
	if err := os.WriteFile(path, []byte("<html></html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	got := mimeutil.Guess(path)
	for _, c := range got {
		if c == ';' {
			t.Fatalf("Guess(%q) = %q, expected no parameters", path, got)
		}
	}
}

func TestGuessFallsBackToSniffingUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.unknownext")
	pngHeader := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
	if err := os.WriteFile(path, pngHeader, 0o644); err != nil {
		t.Fatal(err)
	}
	if got := mimeutil.Guess(path); got != "image/png" {
		t.Errorf("Guess(sniffed png) = %q, want image/png", got)
	}
}

func TestGuessMissingFileFallsBackToOctetStream(t *testing.T) {
	if got := mimeutil.Guess("/does/not/exist"); got != "application/octet-stream" {
		t.Errorf("Guess(missing) = %q, want application/octet-stream", got)
	}
}
