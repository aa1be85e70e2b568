// Package httpapi exposes the knowledge base as a JSON HTTP API. Every
// response is wrapped in {"success":true,"data":...} or
// {"success":false,"error":"..."}; error kinds from the entry service map
// onto status codes (not found 404, version conflict and ambiguous match
// 409, bad input 400).
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/lthms/nota/internal/entry"
	"github.com/lthms/nota/internal/markdown"
	"github.com/lthms/nota/internal/store"
)

// Server wires the entry service and store into an http.Handler.
type Server struct {
	service *entry.Service
	store   *store.Store
}

// New creates a Server.
func New(service *entry.Service, st *store.Store) *Server {
	return &Server{service: service, store: st}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/entries", s.handleListEntries)
	mux.HandleFunc("POST /api/entries", s.handleCreateEntry)
	mux.HandleFunc("GET /api/entries/{id}", s.handleGetEntry)
	mux.HandleFunc("PUT /api/entries/{id}", s.handleUpdateEntry)
	mux.HandleFunc("DELETE /api/entries/{id}", s.handleDeleteEntry)
	mux.HandleFunc("POST /api/entries/{id}/append", s.handleAppendEntry)
	mux.HandleFunc("GET /api/entries/{id}/sections/{index}", s.handleGetSection)
	mux.HandleFunc("PUT /api/entries/{id}/sections/{index}", s.handleUpdateSection)
	mux.HandleFunc("POST /api/entries/{id}/replace", s.handleReplaceText)
	mux.HandleFunc("GET /api/entries/{id}/versions", s.handleListVersions)
	mux.HandleFunc("GET /api/entries/{id}/versions/{version}", s.handleGetVersionContent)
	mux.HandleFunc("GET /api/entries/{id}/relations", s.handleListRelations)
	mux.HandleFunc("POST /api/entries/{id}/relations", s.handleCreateRelation)
	mux.HandleFunc("DELETE /api/entries/{id}/relations/{relationId}", s.handleDeleteRelation)

	mux.HandleFunc("GET /api/notebooks", s.handleListNotebooks)
	mux.HandleFunc("POST /api/notebooks", s.handleCreateNotebook)
	mux.HandleFunc("PUT /api/notebooks/{id}", s.handleUpdateNotebook)
	mux.HandleFunc("DELETE /api/notebooks/{id}", s.handleDeleteNotebook)

	mux.HandleFunc("GET /api/tags", s.handleListTags)
	mux.HandleFunc("GET /api/logs", s.handleListLogs)
	mux.HandleFunc("GET /api/stats", s.handleStats)

	return mux
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: false, Error: err.Error()})
}

func statusFor(err error) int {
	var conflict *entry.ConflictError
	var ambiguous *markdown.AmbiguousMatchError
	var sectionNotFound *entry.SectionNotFoundError

	switch {
	case errors.Is(err, entry.ErrNotFound),
		errors.Is(err, markdown.ErrTextNotFound),
		errors.As(err, &sectionNotFound):
		return http.StatusNotFound
	case errors.As(err, &conflict),
		errors.As(err, &ambiguous),
		errors.Is(err, store.ErrRelationExists),
		errors.Is(err, store.ErrDefaultNotebook):
		return http.StatusConflict
	case errors.Is(err, entry.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", entry.ErrInvalidArgument, err)
	}
	return nil
}
