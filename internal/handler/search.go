package handler

import (
	"net/http"
	"strings"

	"github.com/zynqcloud/filegate/internal/search"
)

// Search handles GET /files/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pathsParam := q.Get("paths")
	if pathsParam == "" {
		writeError(w, http.StatusBadRequest, "paths is required")
		return
	}
	pattern := q.Get("pattern")
	if pattern == "" {
		writeError(w, http.StatusBadRequest, "pattern is required")
		return
	}

	limit := queryInt(r, "limit", h.cfg.SearchMaxResults)
	if limit > h.cfg.SearchMaxResults {
		limit = h.cfg.SearchMaxResults
	}

	req := search.Request{
		BasePaths:   splitNonEmpty(pathsParam),
		Pattern:     pattern,
		Limit:       limit,
		Files:       queryBoolDefault(r, "files", true),
		Directories: queryBoolDefault(r, "directories", false),
		ShowHidden:  queryBool(r, "showHidden"),
	}

	resp, err := h.searcher.Search(req)
	if err != nil {
		writeComponentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func splitNonEmpty(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
