// Package api exposes the workspace, orchestrator and exporter over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Lllllllleong/docsummaryflow/internal/services"
)

// DefaultMaxUpload caps a multipart upload request.
const DefaultMaxUpload = 64 << 20

// Server holds the handlers' dependencies.
type Server struct {
	workspace    *services.Workspace
	orchestrator *services.Orchestrator
	exporter     *services.Exporter
	maxUpload    int64
}

func NewServer(workspace *services.Workspace, orchestrator *services.Orchestrator, exporter *services.Exporter) *Server {
	return &Server{
		workspace:    workspace,
		orchestrator: orchestrator,
		exporter:     exporter,
		maxUpload:    DefaultMaxUpload,
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/sections", s.listSections)
		r.Put("/applicant", s.setApplicant)
		r.Get("/export", s.export)

		r.Route("/sections/{sectionID}", func(r chi.Router) {
			r.Post("/files", s.addFiles)
			r.Delete("/files/{index}", s.removeFile)
			r.Put("/notes", s.setNotes)
			r.Post("/summarize", s.summarize)
		})

		r.Route("/files/{fileID}", func(r chi.Router) {
			r.Post("/convert", s.convert)
			r.Post("/rasterize", s.rasterize)
			r.Post("/extract", s.extract)
			r.Get("/images/{name}", s.extractedImage)
		})
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Info("HTTP request served.",
			"requestId", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}
