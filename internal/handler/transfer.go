package handler

import (
	"encoding/json"
	"net/http"

	"github.com/zynqcloud/filegate/internal/fileops"
)

type transferRequest struct {
	From             string `json:"from" validate:"required"`
	To               string `json:"to" validate:"required"`
	Mode             string `json:"mode" validate:"required,oneof=move copy"`
	EnsureUniqueName bool   `json:"ensureUniqueName"`
	OwnerUID         string `json:"ownerUid"`
	OwnerGID         string `json:"ownerGid"`
	FileMode         string `json:"fileMode"`
	DirMode          string `json:"dirMode"`
}

// Transfer handles POST /files/transfer: move or copy.
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
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

	fi, err := h.ops.Transfer(fileops.TransferRequest{
		From:             req.From,
		To:               req.To,
		Mode:             fileops.TransferMode(req.Mode),
		EnsureUniqueName: req.EnsureUniqueName,
		Ownership:        own,
	})
	if err != nil {
		writeComponentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fi)
}
