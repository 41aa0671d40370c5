// Package server exposes a style registry store over HTTP.
//
// This is the concrete transport behind the registry's push
// notifications: manager UIs install and remove styles through the
// JSON API, and connected page sessions follow /api/events to receive
// the resulting update/remove stream.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/KiKaraage/eastyles-sub002/pkg/match"
	"github.com/KiKaraage/eastyles-sub002/pkg/registry"
	"github.com/KiKaraage/eastyles-sub002/pkg/style"
)

// Server serves a registry store over HTTP.
type Server struct {
	store   registry.Store
	matcher *match.Matcher
	logger  *log.Logger
	router  chi.Router
}

// New creates a Server over store. A nil logger falls back to the
// default logger.
func New(store registry.Store, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		store:   store,
		matcher: match.New(),
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(s.requestLog)
	r.Route("/api", func(r chi.Router) {
		r.Get("/styles", s.handleList)
		r.Get("/styles/{id}", s.handleGet)
		r.Put("/styles/{id}", s.handlePut)
		r.Delete("/styles/{id}", s.handleDelete)
		r.Get("/events", s.handleEvents)
	})
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path,
			"elapsed", time.Since(start))
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encoding failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, format string, args ...any) {
	s.writeJSON(w, status, errorResponse{Error: fmt.Sprintf(format, args...)})
}

// handleList returns every style document. With ?url= the list is
// filtered to styles whose domain rules match that URL.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "list styles: %v", err)
		return
	}
	if url := r.URL.Query().Get("url"); url != "" {
		filtered := docs[:0]
		for _, d := range docs {
			if s.matcher.Matches(url, d.Rules) {
				filtered = append(filtered, d)
			}
		}
		docs = filtered
	}
	if docs == nil {
		docs = []style.Document{}
	}
	s.writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.store.Get(r.Context(), id)
	if errors.Is(err, registry.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "style %s not found", id)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "get style: %v", err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

// handlePut installs or replaces a style. The path ID wins over any ID
// in the body; a zero installation time is stamped on first install.
func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var doc style.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		s.writeError(w, http.StatusBadRequest, "decode style: %v", err)
		return
	}
	doc.ID = id
	if doc.InstalledAt.IsZero() {
		if prev, err := s.store.Get(r.Context(), id); err == nil {
			doc.InstalledAt = prev.InstalledAt
		} else {
			doc.InstalledAt = time.Now()
		}
	}
	if err := doc.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if err := s.store.Put(r.Context(), doc); err != nil {
		s.writeError(w, http.StatusInternalServerError, "store style: %v", err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.Delete(r.Context(), id); err != nil {
		s.writeError(w, http.StatusInternalServerError, "delete style: %v", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleEvents streams registry update/remove notifications as
// server-sent events until the client disconnects. Only available when
// the store supports watching.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	watcher, ok := s.store.(registry.Watcher)
	if !ok {
		s.writeError(w, http.StatusNotImplemented, "store does not support events")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, err := watcher.Watch(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "watch: %v", err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Warn("event encoding failed", "err", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
