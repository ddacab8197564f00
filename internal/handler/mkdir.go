package handler

import (
	"encoding/json"
	"net/http"

	"github.com/zynqcloud/filegate/internal/fileops"
)

type mkdirRequest struct {
	Path     string `json:"path" validate:"required"`
	OwnerUID string `json:"ownerUid"`
	OwnerGID string `json:"ownerGid"`
	FileMode string `json:"fileMode"`
	DirMode  string `json:"dirMode"`
}

// Mkdir handles POST /files/mkdir.
func (h *Handler) Mkdir(w http.ResponseWriter, r *http.Request) {
	var req mkdirRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	own, err := fileops.ParseHeaderOwnership(req.OwnerUID, req.OwnerGID, req.FileMode, req.DirMode)
	if err != nil {
		writeComponentError(w, err)
		return
	}

	fi, err := h.ops.Mkdir(req.Path, own)
	if err != nil {
		writeComponentError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, fi)
}
