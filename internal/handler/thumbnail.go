package handler

import (
	"net/http"
	"time"

	"github.com/zynqcloud/filegate/internal/thumbnail"
)

// Thumbnail handles GET /files/thumbnail/image.
func (h *Handler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	q := r.URL.Query()
	params, err := thumbnail.ParseParams(q.Get("width"), q.Get("height"), q.Get("fit"), q.Get("position"), q.Get("format"), q.Get("quality"))
	if err != nil {
		writeComponentError(w, err)
		return
	}

	realPath, mtime, err := h.thumbnails.StatForETag(path)
	if err != nil {
		writeComponentError(w, err)
		return
	}

	etag := thumbnail.ETag(realPath, mtime.UnixMilli(), params)
	if match := r.Header.Get("If-None-Match"); match != "" && match == `"`+etag+`"` {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if ims := r.Header.Get("If-Modified-Since"); ims != "" {
		if t, err := time.Parse(http.TimeFormat, ims); err == nil && !mtime.After(t) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	result, err := h.thumbnails.Render(path, params)
	if err != nil {
		writeComponentError(w, err)
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("Last-Modified", result.ModTime.UTC().Format(http.TimeFormat))
	w.Header().Set("ETag", `"`+result.ETag+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(result.Data) //nolint:errcheck
}
