package handler

import "net/http"

// Info handles GET /files/info: stat a file or list a directory.
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	opts := infoOptionsFromQuery(r)
	file, dir, err := h.ops.Info(path, opts)
	if err != nil {
		writeComponentError(w, err)
		return
	}
	if dir != nil {
		writeJSON(w, http.StatusOK, dir)
		return
	}
	writeJSON(w, http.StatusOK, file)
}
