package httpasset

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/satmihir/photocache/internal/constants"
	"github.com/satmihir/photocache/internal/gateway"
)

const (
	// Path prefix for asset operations
	assetPathPrefix = "/assets/"

	// Header carrying the storage path assigned by an upload
	headerStoragePath = "x-pc-storage-path"
)

// Server exposes an AssetGateway over HTTP.
//
//	POST   /assets/{hint}  upload body, 201 with x-pc-storage-path
//	GET    /assets/{path}  200 with body, 404 when missing
//	DELETE /assets/{path}  204
type Server struct {
	httpSrv *http.Server
	mux     *http.ServeMux
	backend gateway.AssetGateway
	log     logrus.FieldLogger
}

// NewServer creates a Server storing blobs in backend.
func NewServer(addr string, backend gateway.AssetGateway, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{
		mux:     http.NewServeMux(),
		backend: backend,
		log:     log.WithField("component", "assetserver"),
	}
	s.mux.HandleFunc("/", s.handleRequest)
	s.httpSrv = &http.Server{Addr: addr, Handler: s.mux}
	return s
}

// Handler returns the HTTP handler, for embedding or httptest.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start listens on the server's address and serves until Shutdown.
func (s *Server) Start() error {
	return s.result(s.httpSrv.ListenAndServe())
}

// Serve serves on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	return s.result(s.httpSrv.Serve(l))
}

// Shutdown stops accepting requests and waits for running ones until ctx
// is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) result(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// handleRequest routes requests based on HTTP method
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	p, err := parsePath(r.URL.Path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGet(w, r, p)
	case http.MethodPost:
		s.handlePost(w, r, p)
	case http.MethodDelete:
		s.handleDelete(w, r, p)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// parsePath extracts the asset path from the URL path
// Expected format: /assets/{path}
func parsePath(urlPath string) (string, error) {
	if !strings.HasPrefix(urlPath, assetPathPrefix) {
		return "", errors.New("invalid path: must start with /assets/")
	}
	p := strings.TrimPrefix(urlPath, assetPathPrefix)
	if p == "" {
		return "", errors.New("invalid path: asset path cannot be empty")
	}
	return p, nil
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, storagePath string) {
	data, err := s.backend.Download(r.Context(), storagePath)
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrNotFound):
			w.WriteHeader(http.StatusNotFound)
		case errors.Is(err, gateway.ErrInvalidPath):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			s.log.WithError(err).WithField("path", storagePath).Error("Download failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handlePost uploads the request body under the hint in the URL.
// Response codes:
// - 201 Created: stored, x-pc-storage-path holds the assigned path
// - 411 Length Required: missing Content-Length
// - 413 Payload Too Large: exceeds the image size cap
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request, hint string) {
	if r.ContentLength < 0 {
		http.Error(w, "Content-Length required", http.StatusLengthRequired)
		return
	}
	if r.ContentLength > constants.MaxImageSizeBytes {
		http.Error(w, "Payload exceeds maximum allowed size", http.StatusRequestEntityTooLarge)
		return
	}

	// Enforce the cap even if the client lies about Content-Length
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxImageSizeBytes)
	data, err := io.ReadAll(r.Body)
	r.Body.Close()
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			http.Error(w, "Payload exceeds maximum allowed size", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	if int64(len(data)) != r.ContentLength {
		http.Error(w, "Incomplete request body", http.StatusBadRequest)
		return
	}

	storagePath, err := s.backend.Upload(r.Context(), data, hint)
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidPath) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.log.WithError(err).WithField("hint", hint).Error("Upload failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set(headerStoragePath, storagePath)
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, storagePath string) {
	if err := s.backend.Delete(r.Context(), storagePath); err != nil {
		if errors.Is(err, gateway.ErrInvalidPath) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.log.WithError(err).WithField("path", storagePath).Error("Delete failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
