// Package handler wires the HTTP surface: routing, request validation,
// bearer auth (via internal/middleware), and error-to-status mapping over
// the path gate, file operations, upload engine, search, and thumbnail
// components.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/zynqcloud/filegate/internal/config"
	"github.com/zynqcloud/filegate/internal/fileops"
	internalmw "github.com/zynqcloud/filegate/internal/middleware"
	"github.com/zynqcloud/filegate/internal/metrics"
	"github.com/zynqcloud/filegate/internal/ownership"
	"github.com/zynqcloud/filegate/internal/pathgate"
	"github.com/zynqcloud/filegate/internal/search"
	"github.com/zynqcloud/filegate/internal/thumbnail"
	"github.com/zynqcloud/filegate/internal/upload"
)

var validate = validator.New()

// Handler holds shared dependencies for all HTTP handlers.
type Handler struct {
	cfg         *config.Config
	gate        *pathgate.Gate
	ops         *fileops.Ops
	uploads     *upload.Engine
	searcher    *search.Searcher
	thumbnails  *thumbnail.Renderer
	devOverride *ownership.DevOverride
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// New builds a Handler and returns the fully-routed http.Handler. m is
// shared with the caller so activity outside the HTTP layer (the background
// scanner loop in cmd/server) can also record counters.
func New(cfg *config.Config, gate *pathgate.Gate, ops *fileops.Ops, uploads *upload.Engine, searcher *search.Searcher, thumbnails *thumbnail.Renderer, devOverride *ownership.DevOverride, logger *slog.Logger, m *metrics.Metrics) http.Handler {
	h := &Handler{
		cfg:         cfg,
		gate:        gate,
		ops:         ops,
		uploads:     uploads,
		searcher:    searcher,
		thumbnails:  thumbnails,
		devOverride: devOverride,
		logger:      logger,
		metrics:     m,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(internalmw.RequestLog(logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK")) //nolint:errcheck
	})
	r.Get("/openapi.json", h.OpenAPI)
	r.Get("/docs", h.Digest)

	r.With(internalmw.BearerAuth(cfg.FileProxyToken)).Get("/metrics", h.metrics.Handler())

	r.Route("/files", func(fr chi.Router) {
		fr.Use(internalmw.BearerAuth(cfg.FileProxyToken))

		fr.Get("/info", h.Info)
		fr.Get("/content", h.DownloadContent)
		fr.Put("/content", h.UploadContent)
		fr.Post("/mkdir", h.Mkdir)
		fr.Delete("/delete", h.Delete)
		fr.Post("/transfer", h.Transfer)
		fr.Get("/search", h.Search)
		fr.Post("/upload/start", h.UploadStart)
		fr.Post("/upload/chunk", h.UploadChunk)
		fr.Get("/thumbnail/image", h.Thumbnail)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusErr is implemented by every component error type (pathgate.Error,
// fileops.Error, upload.Error, search.Error, thumbnail.Error) so the HTTP
// layer can map them to a response without a type switch per package.
type statusErr interface {
	error
	StatusCode() int
}

// writeComponentError maps any component error to its JSON {error} body,
// defaulting to 500 for errors that don't declare a status.
func writeComponentError(w http.ResponseWriter, err error) {
	if se, ok := err.(statusErr); ok {
		writeError(w, se.StatusCode(), se.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
