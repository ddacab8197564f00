package handler

import "net/http"

// Delete handles DELETE /files/delete.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	if err := h.ops.Delete(path); err != nil {
		writeComponentError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
