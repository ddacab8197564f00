package handler

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/zynqcloud/filegate/internal/archive"
	"github.com/zynqcloud/filegate/internal/fileops"
)

// DownloadContent handles GET /files/content: streaming file or directory
// download.
func (h *Handler) DownloadContent(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	info, err := h.ops.PrepareDownload(path, h.cfg.MaxDownloadBytes())
	if err != nil {
		writeComponentError(w, err)
		return
	}

	disposition := "attachment"
	if queryBool(r, "inline") {
		disposition = "inline"
	}

	if info.IsDir {
		filename := info.Name + ".tar"
		w.Header().Set("Content-Type", "application/x-tar")
		w.Header().Set("Content-Disposition", contentDisposition(disposition, filename))
		w.WriteHeader(http.StatusOK)
		_ = archive.WriteTar(w, info.RealPath)
		return
	}

	f, err := fileops.OpenFile(info.RealPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("open: %v", err))
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", info.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.Header().Set("Content-Disposition", contentDisposition(disposition, info.Name))
	w.WriteHeader(http.StatusOK)

	buf := make([]byte, 256*1024)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return // client disconnected mid-stream
			}
		}
		if rerr != nil {
			return
		}
	}
}

// contentDisposition emits both an ASCII filename and an RFC 5987
// filename* parameter.
func contentDisposition(kind, filename string) string {
	ascii := asciiFallback(filename)
	return fmt.Sprintf(`%s; filename="%s"; filename*=UTF-8''%s`, kind, ascii, url.PathEscape(filename))
}

func asciiFallback(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		if r > 0x7e || r < 0x20 || r == '"' {
			out = append(out, '_')
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

// UploadContent handles PUT /files/content: single-file streaming upload.
func (h *Handler) UploadContent(w http.ResponseWriter, r *http.Request) {
	path := r.Header.Get("X-File-Path")
	filename := r.Header.Get("X-File-Name")
	if path == "" || filename == "" {
		writeError(w, http.StatusBadRequest, "X-File-Path and X-File-Name headers are required")
		return
	}

	own, err := fileops.ParseHeaderOwnership(
		r.Header.Get("X-Owner-UID"), r.Header.Get("X-Owner-GID"),
		r.Header.Get("X-File-Mode"), r.Header.Get("X-Dir-Mode"),
	)
	if err != nil {
		writeComponentError(w, err)
		return
	}

	h.metrics.UploadsTotal.Add(1)
	fi, err := h.ops.UploadFile(path, filename, r.Body, h.cfg.MaxUploadBytes(), own)
	if err != nil {
		h.metrics.UploadsFailed.Add(1)
		writeComponentError(w, err)
		return
	}
	h.metrics.BytesWritten.Add(fi.Size)
	writeJSON(w, http.StatusCreated, fi)
}
