package upload_test

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/zynqcloud/filegate/internal/pathgate"
	"github.com/zynqcloud/filegate/internal/upload"
)

func newTestEngine(t *testing.T, baseDir string) *upload.Engine {
	t.Helper()
	gate, err := pathgate.New([]string{baseDir})
	if err != nil {
		t.Fatalf("pathgate.New: %v", err)
	}
	e, err := upload.New(t.TempDir(), 10<<20, 5<<20, gate, nil, nil, nil)
	if err != nil {
		t.Fatalf("upload.New: %v", err)
	}
	return e
}

func checksumOf(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

func TestUploadChunkedHappyPath(t *testing.T) {
	base := t.TempDir()
	e := newTestEngine(t, base)

	content := bytes.Repeat([]byte("A"), 300)
	checksum := checksumOf(content)

	start, err := e.Start(upload.StartRequest{
		Path:      base,
		Filename:  "report.txt",
		Size:      int64(len(content)),
		Checksum:  checksum,
		ChunkSize: 100,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if start.TotalChunks != 3 {
		t.Fatalf("TotalChunks = %d, want 3", start.TotalChunks)
	}

	var last *upload.ChunkResponse
	for i := 0; i < start.TotalChunks; i++ {
		chunk := content[i*100 : (i+1)*100]
		resp, err := e.UploadChunk(start.UploadID, i, "", bytes.NewReader(chunk))
		if err != nil {
			t.Fatalf("UploadChunk(%d): %v", i, err)
		}
		last = resp
	}

	if !last.Completed {
		t.Fatal("expected final chunk response to report Completed=true")
	}
	if last.File == nil {
		t.Fatal("expected assembled File in final response")
	}
	if last.Checksum != checksum {
		t.Errorf("Checksum = %s, want %s", last.Checksum, checksum)
	}

	got, err := os.ReadFile(filepath.Join(base, "report.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("assembled file content mismatch")
	}
}

func TestUploadResumeReturnsPreviouslyUploadedChunks(t *testing.T) {
	base := t.TempDir()
	e := newTestEngine(t, base)

	content := bytes.Repeat([]byte("B"), 250)
	checksum := checksumOf(content)

	start, err := e.Start(upload.StartRequest{
		Path: base, Filename: "resume.bin", Size: int64(len(content)), Checksum: checksum, ChunkSize: 100,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := e.UploadChunk(start.UploadID, 0, "", bytes.NewReader(content[0:100])); err != nil {
		t.Fatalf("UploadChunk(0): %v", err)
	}

	resumed, err := e.Start(upload.StartRequest{
		Path: base, Filename: "resume.bin", Size: int64(len(content)), Checksum: checksum, ChunkSize: 100,
	})
	if err != nil {
		t.Fatalf("resumed Start: %v", err)
	}
	if resumed.UploadID != start.UploadID {
		t.Fatalf("resumed UploadID = %s, want %s (deterministic session id)", resumed.UploadID, start.UploadID)
	}
	if len(resumed.UploadedChunks) != 1 || resumed.UploadedChunks[0] != 0 {
		t.Fatalf("UploadedChunks = %v, want [0]", resumed.UploadedChunks)
	}

	for i := 1; i < start.TotalChunks; i++ {
		if _, err := e.UploadChunk(start.UploadID, i, "", bytes.NewReader(content[i*100:min((i+1)*100, len(content))])); err != nil {
			t.Fatalf("UploadChunk(%d): %v", i, err)
		}
	}

	if _, err := os.Stat(filepath.Join(base, "resume.bin")); err != nil {
		t.Fatalf("expected assembled file to exist: %v", err)
	}
}

func TestUploadChunkRejectsMalformedUploadID(t *testing.T) {
	base := t.TempDir()
	e := newTestEngine(t, base)

	for _, id := range []string{"", "short", "../../etc/passwd", "ABCDEF0123456789", "0123456789abcdef0"} {
		if _, err := e.UploadChunk(id, 0, "", bytes.NewReader([]byte("x"))); err == nil {
			t.Errorf("UploadChunk(%q): expected malformed id to be rejected", id)
		}
	}
}

func TestUploadChunkChecksumMismatchRejected(t *testing.T) {
	base := t.TempDir()
	e := newTestEngine(t, base)

	content := []byte("hello world")
	checksum := checksumOf(content)

	start, err := e.Start(upload.StartRequest{
		Path: base, Filename: "single.txt", Size: int64(len(content)), Checksum: checksum, ChunkSize: 100,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	_, err = e.UploadChunk(start.UploadID, 0, "sha256:"+hex.EncodeToString(make([]byte, 32)), bytes.NewReader(content))
	if err == nil {
		t.Fatal("expected chunk checksum mismatch error")
	}
}

func TestUploadWholeFileChecksumMismatchFailsAssembly(t *testing.T) {
	base := t.TempDir()
	e := newTestEngine(t, base)

	content := []byte("the real content")
	wrongChecksum := checksumOf([]byte("different content entirely"))

	start, err := e.Start(upload.StartRequest{
		Path: base, Filename: "bad.txt", Size: int64(len(content)), Checksum: wrongChecksum, ChunkSize: 100,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	_, err = e.UploadChunk(start.UploadID, 0, "", bytes.NewReader(content))
	if err == nil {
		t.Fatal("expected whole-file checksum mismatch to fail assembly")
	}

	if _, statErr := os.Stat(filepath.Join(base, "bad.txt")); statErr == nil {
		t.Error("destination file should not exist after checksum mismatch")
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
