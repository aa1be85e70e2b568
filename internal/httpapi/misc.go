package httpapi

import (
	"fmt"
	"net/http"

	"github.com/lthms/nota/internal/entry"
	"github.com/lthms/nota/internal/store"
)

func (s *Server) handleListNotebooks(w http.ResponseWriter, r *http.Request) {
	notebooks, err := s.store.ListNotebooks(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, notebooks)
}

type notebookBody struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Icon        *string `json:"icon"`
}

func (s *Server) handleCreateNotebook(w http.ResponseWriter, r *http.Request) {
	var body notebookBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Name == nil || *body.Name == "" {
		writeError(w, fmt.Errorf("%w: name is required", entry.ErrInvalidArgument))
		return
	}

	description, icon := "", ""
	if body.Description != nil {
		description = *body.Description
	}
	if body.Icon != nil {
		icon = *body.Icon
	}
	nb, err := s.store.CreateNotebook(r.Context(), *body.Name, description, icon)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, nb)
}

func (s *Server) handleUpdateNotebook(w http.ResponseWriter, r *http.Request) {
	var body notebookBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	found, err := s.store.UpdateNotebook(r.Context(), r.PathValue("id"), body.Name, body.Description, body.Icon)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeError(w, entry.ErrNotFound)
		return
	}
	writeData(w, http.StatusOK, nil)
}

func (s *Server) handleDeleteNotebook(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.store.DeleteNotebook(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !deleted {
		writeError(w, entry.ErrNotFound)
		return
	}
	writeData(w, http.StatusOK, nil)
}

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.store.ListTags(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if tags == nil {
		tags = []store.Tag{}
	}
	writeData(w, http.StatusOK, tags)
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	logs, total, err := s.store.ListAgentLogs(r.Context(), q.Get("action"),
		intParam(q.Get("page"), 1), intParam(q.Get("page_size"), 50))
	if err != nil {
		writeError(w, err)
		return
	}
	if logs == nil {
		logs = []store.AgentLog{}
	}
	writeData(w, http.StatusOK, map[string]any{
		"logs":  logs,
		"total": total,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, stats)
}
