// Package mimeutil guesses MIME types for FileInfo responses and download
// Content-Type headers.
package mimeutil

import (
	"mime"
	"net/http"
	"os"
	"path/filepath"
)

// Guess returns a best-effort MIME type for path: extension-based lookup
// first (cheap, no I/O), falling back to sniffing the first 512 bytes via
// net/http.DetectContentType (the same sniffer browsers use) when the
// extension is unknown or not registered.
func Guess(path string) string {
	if ext := filepath.Ext(path); ext != "" {
		if t := mime.TypeByExtension(ext); t != "" {
			return stripParams(t)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return "application/octet-stream"
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	return stripParams(http.DetectContentType(buf[:n]))
}

func stripParams(t string) string {
	for i, c := range t {
		if c == ';' {
			return t[:i]
		}
	}
	return t
}
