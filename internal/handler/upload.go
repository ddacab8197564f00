package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/zynqcloud/filegate/internal/fileops"
	"github.com/zynqcloud/filegate/internal/upload"
)

type uploadStartRequest struct {
	Path      string `json:"path" validate:"required"`
	Filename  string `json:"filename" validate:"required"`
	Size      int64  `json:"size" validate:"required,gt=0"`
	Checksum  string `json:"checksum" validate:"required"`
	ChunkSize int64  `json:"chunkSize" validate:"required,gt=0"`
	OwnerUID  string `json:"ownerUid"`
	OwnerGID  string `json:"ownerGid"`
	FileMode  string `json:"fileMode"`
	DirMode   string `json:"dirMode"`
}

// UploadStart handles POST /files/upload/start.
func (h *Handler) UploadStart(w http.ResponseWriter, r *http.Request) {
	var req uploadStartRequest
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

	resp, err := h.uploads.Start(upload.StartRequest{
		Path:      req.Path,
		Filename:  req.Filename,
		Size:      req.Size,
		Checksum:  req.Checksum,
		ChunkSize: req.ChunkSize,
		Ownership: own,
	})
	if err != nil {
		writeComponentError(w, err)
		return
	}
	if len(resp.UploadedChunks) == 0 {
		h.metrics.SessionsCreated.Add(1)
	}
	writeJSON(w, http.StatusOK, resp)
}

// UploadChunk handles POST /files/upload/chunk.
func (h *Handler) UploadChunk(w http.ResponseWriter, r *http.Request) {
	uploadID := r.Header.Get("X-Upload-Id")
	if uploadID == "" {
		writeError(w, http.StatusBadRequest, "X-Upload-Id header is required")
		return
	}
	chunkIndexStr := r.Header.Get("X-Chunk-Index")
	chunkIndex, err := strconv.Atoi(chunkIndexStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "X-Chunk-Index header must be a decimal integer")
		return
	}
	checksum := r.Header.Get("X-Chunk-Checksum")

	resp, err := h.uploads.UploadChunk(uploadID, chunkIndex, checksum, r.Body)
	if err != nil {
		writeComponentError(w, err)
		return
	}
	if resp.Completed && resp.File != nil {
		h.metrics.SessionsComplete.Add(1)
		h.metrics.BytesWritten.Add(resp.File.Size)
	}
	writeJSON(w, http.StatusOK, resp)
}
