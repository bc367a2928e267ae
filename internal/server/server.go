// Package server exposes the image cache and photo collections over HTTP for
// local tooling and the demo binary.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"github.com/satmihir/photocache/internal/constants"
	"github.com/satmihir/photocache/internal/imagecache"
	"github.com/satmihir/photocache/internal/images"
	"github.com/satmihir/photocache/internal/photos"
)

type (
	// Images is the image side of the server. *images.Manager implements it.
	Images interface {
		Resolve(ctx context.Context, identity, locator string) ([]byte, error)
		HandleMemoryWarning()
		Stats() imagecache.Stats
	}

	// Collections hands out per-stamp photo collections.
	Collections interface {
		For(stampID string) *photos.Collection
	}

	AddPhotoResponse struct {
		Filenames []string `json:"filenames"`
	}

	RetryResponse struct {
		Committed int    `json:"committed"`
		Error     string `json:"error,omitempty"`
	}

	ErrorResponse struct {
		Error string `json:"error"`
	}
)

// Server serves the HTTP surface.
type Server struct {
	images      Images
	collections Collections
	origins     []string
	log         logrus.FieldLogger
}

func New(imgs Images, collections Collections, allowedOrigins []string, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		images:      imgs,
		collections: collections,
		origins:     allowedOrigins,
		log:         log.WithField("component", "server"),
	}
}

// Router builds the chi router.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "Content-Length"},
			MaxAge:         300,
		}))
	}

	r.Get("/images/*", s.handleResolve)

	r.Route("/stamps/{stampID}/photos", func(r chi.Router) {
		r.Get("/", s.handleListPhotos)
		r.Post("/", s.handleAddPhoto)
		r.Post("/retry", s.handleRetryUploads)
		r.Delete("/{filename}", s.handleDeletePhoto)
	})

	r.Post("/memory-warning", s.handleMemoryWarning)
	r.Get("/stats", s.handleStats)
	return r
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "*")
	if identity == "" {
		s.renderError(w, r, http.StatusBadRequest, "missing image identity")
		return
	}

	data, err := s.images.Resolve(r.Context(), identity, r.URL.Query().Get("locator"))
	switch {
	case err == nil:
	case errors.Is(err, images.ErrNotFound):
		s.renderError(w, r, http.StatusNotFound, "image not found")
		return
	default:
		s.renderError(w, r, http.StatusBadGateway, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(data)
}

func (s *Server) handleListPhotos(w http.ResponseWriter, r *http.Request) {
	c := s.collections.For(chi.URLParam(r, "stampID"))
	if err := c.Load(r.Context()); err != nil {
		s.log.WithError(err).Warn("Failed to load stored photos, serving local state")
	}
	render.JSON(w, r, photos.Snapshot{Slots: c.Photos()})
}

func (s *Server) handleAddPhoto(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, constants.MaxImageSizeBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.renderError(w, r, http.StatusRequestEntityTooLarge, "image too large")
			return
		}
		s.renderError(w, r, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(raw) == 0 {
		s.renderError(w, r, http.StatusBadRequest, "empty body")
		return
	}

	c := s.collections.For(chi.URLParam(r, "stampID"))
	events, err := c.AddPhotos(r.Context(), [][]byte{raw})
	if err != nil {
		s.renderError(w, r, http.StatusServiceUnavailable, err.Error())
		return
	}

	// Local save events are queued before AddPhotos returns; uploads
	// continue after the response.
	for ev := range events {
		switch ev.Stage {
		case photos.StageLocalSaveFailed:
			s.renderError(w, r, http.StatusUnprocessableEntity, ev.Err.Error())
			return
		case photos.StageLocalSaved:
			render.Status(r, http.StatusAccepted)
			render.JSON(w, r, AddPhotoResponse{Filenames: ev.Filenames})
			return
		}
	}
}

func (s *Server) handleDeletePhoto(w http.ResponseWriter, r *http.Request) {
	c := s.collections.For(chi.URLParam(r, "stampID"))
	err := c.Delete(r.Context(), chi.URLParam(r, "filename"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, photos.ErrUnknownPhoto):
		s.renderError(w, r, http.StatusNotFound, "photo not found")
	default:
		s.renderError(w, r, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleRetryUploads(w http.ResponseWriter, r *http.Request) {
	c := s.collections.For(chi.URLParam(r, "stampID"))
	committed, err := c.RetryUploads(r.Context())
	resp := RetryResponse{Committed: committed}
	if err != nil {
		resp.Error = err.Error()
	}
	render.JSON(w, r, resp)
}

func (s *Server) handleMemoryWarning(w http.ResponseWriter, r *http.Request) {
	s.images.HandleMemoryWarning()
	s.log.Info("Memory warning handled, full-image cache cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.images.Stats())
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: msg})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("Request served")
	})
}
