// Package server implements the reference gallery backend: it serves the
// bootstrap payload and file listings, and applies action batches sent by
// the sync engine.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/hay-kot/vgloss/internal/core/action"
	"github.com/hay-kot/vgloss/internal/transport"
	"github.com/hay-kot/vgloss/pkg/randid"
)

const (
	csrfTokenLength  = 32
	defaultBatchKeep = 256
	shutdownTimeout  = 5 * time.Second
)

// Option configures a Server.
type Option func(*Server)

// WithCSRF overrides the CSRF cookie and header names.
func WithCSRF(cookie, header string) Option {
	return func(s *Server) {
		s.csrfCookie = cookie
		s.csrfHeader = header
	}
}

// WithBatchCache sets how many batch responses are kept for replays.
func WithBatchCache(n int) Option {
	return func(s *Server) { s.batches = newBatchCache(n) }
}

// Server exposes a Gallery over HTTP.
type Server struct {
	gallery    *Gallery
	logger     zerolog.Logger
	csrfCookie string
	csrfHeader string
	batches    *batchCache
	router     chi.Router

	applyMu sync.Mutex
}

// New builds the HTTP routes for g.
func New(g *Gallery, logger zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		gallery:    g,
		logger:     logger,
		csrfCookie: transport.DefaultCSRFCookie,
		csrfHeader: transport.DefaultCSRFHeader,
		batches:    newBatchCache(defaultBatchKeep),
	}
	for _, o := range opts {
		o(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/gallery", s.handleGallery)
		r.With(s.requireCSRF, middleware.AllowContentType("application/json")).Post("/action", s.handleAction)
		r.Get("/file/", s.handleFiles)
		r.Get("/file/{hash}", s.handleFile)
	})

	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("gallery backend listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleGallery(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(s.csrfCookie); err != nil || c.Value == "" {
		http.SetCookie(w, &http.Cookie{
			Name:     s.csrfCookie,
			Value:    randid.Generate(csrfTokenLength),
			Path:     "/",
			SameSite: http.SameSiteLaxMode,
		})
	}
	s.writeJSON(w, http.StatusOK, s.gallery.Bootstrap())
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	var folder *string
	if q := r.URL.Query(); q.Has("path") {
		p := q.Get("path")
		folder = &p
	}
	s.writeJSON(w, http.StatusOK, s.gallery.Files(folder))
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	f, ok := s.gallery.File(chi.URLParam(r, "hash"))
	if !ok {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	log := zerolog.Ctx(r.Context())
	batchID := r.Header.Get(transport.HeaderBatchID)

	// one batch at a time so a replay racing its original is still deduped
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	if resp, ok := s.batches.get(batchID); ok {
		log.Info().Str("batch_id", batchID).Msg("replayed batch, returning cached response")
		s.writeRaw(w, resp)
		return
	}

	var envs []action.Envelope
	if err := json.NewDecoder(r.Body).Decode(&envs); err != nil {
		http.Error(w, "invalid action list: "+err.Error(), http.StatusBadRequest)
		return
	}

	batch, err := action.DeserializeAll(envs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	followUps, err := s.gallery.Apply(batch)
	if err != nil {
		log.Warn().Err(err).Str("batch_id", batchID).Msg("batch rejected")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	out, err := action.SerializeAll(followUps)
	if err != nil {
		log.Error().Err(err).Msg("serialize follow-ups")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	resp, err := json.Marshal(out)
	if err != nil {
		log.Error().Err(err).Msg("encode follow-ups")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.batches.put(batchID, resp)
	log.Debug().Str("batch_id", batchID).Int("actions", len(batch)).Int("follow_ups", len(followUps)).Msg("batch applied")
	s.writeRaw(w, resp)
}

// requireCSRF rejects requests whose CSRF header does not match the cookie.
func (s *Server) requireCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(s.csrfCookie)
		if err != nil || c.Value == "" || r.Header.Get(s.csrfHeader) != c.Value {
			http.Error(w, "CSRF verification failed", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error().Err(err).Msg("encode response")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (s *Server) writeRaw(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}
