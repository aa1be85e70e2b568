package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/lthms/nota/internal/entry"
	"github.com/lthms/nota/internal/store"
)

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var tags []string
	if raw := q.Get("tags"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}

	result, err := s.service.List(r.Context(), store.ListFilter{
		NotebookID: q.Get("notebook_id"),
		Tags:       tags,
		Type:       q.Get("type"),
		SortBy:     q.Get("sort_by"),
		SortOrder:  q.Get("sort_order"),
		Page:       intParam(q.Get("page"), 0),
		PageSize:   intParam(q.Get("page_size"), 0),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

type createEntryBody struct {
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	NotebookID string   `json:"notebook_id"`
	Tags       []string `json:"tags"`
	Type       string   `json:"type"`
	Summary    string   `json:"summary"`
	Source     string   `json:"source"`
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var body createEntryBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.service.Create(r.Context(), entry.CreateRequest{
		Title:      body.Title,
		Content:    body.Content,
		NotebookID: body.NotebookID,
		Tags:       body.Tags,
		Type:       body.Type,
		Summary:    body.Summary,
		Source:     body.Source,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, result)
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	view, err := s.service.Get(r.Context(), r.PathValue("id"), entry.GetOptions{
		Mode:   q.Get("mode"),
		Offset: intParam(q.Get("offset"), 0),
		Limit:  intParam(q.Get("limit"), 0),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, view)
}

type updateEntryBody struct {
	Version       *int     `json:"version"`
	Title         *string  `json:"title"`
	Content       *string  `json:"content"`
	Summary       *string  `json:"summary"`
	NotebookID    *string  `json:"notebook_id"`
	Type          *string  `json:"type"`
	Tags          []string `json:"tags"`
	ChangeSummary string   `json:"change_summary"`
	Source        string   `json:"source"`
}

func (s *Server) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	var body updateEntryBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Version == nil {
		writeError(w, fmt.Errorf("%w: version is required", entry.ErrInvalidArgument))
		return
	}

	result, err := s.service.Update(r.Context(), r.PathValue("id"), entry.UpdateRequest{
		Version:       *body.Version,
		Title:         body.Title,
		Content:       body.Content,
		Summary:       body.Summary,
		NotebookID:    body.NotebookID,
		Type:          body.Type,
		Tags:          body.Tags,
		ChangeSummary: body.ChangeSummary,
		Source:        body.Source,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Delete(r.Context(), r.PathValue("id"), r.URL.Query().Get("source")); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

type appendBody struct {
	Content string `json:"content"`
	Version *int   `json:"version"`
	Source  string `json:"source"`
}

func (s *Server) handleAppendEntry(w http.ResponseWriter, r *http.Request) {
	var body appendBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Version == nil {
		writeError(w, fmt.Errorf("%w: version is required", entry.ErrInvalidArgument))
		return
	}

	result, err := s.service.Append(r.Context(), r.PathValue("id"), body.Content, *body.Version, body.Source)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

func (s *Server) handleGetSection(w http.ResponseWriter, r *http.Request) {
	index, err := sectionIndex(r)
	if err != nil {
		writeError(w, err)
		return
	}

	section, err := s.service.GetSection(r.Context(), r.PathValue("id"), index)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, section)
}

type updateSectionBody struct {
	Content string `json:"content"`
	Version *int   `json:"version"`
	Source  string `json:"source"`
}

func (s *Server) handleUpdateSection(w http.ResponseWriter, r *http.Request) {
	index, err := sectionIndex(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var body updateSectionBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Version == nil {
		writeError(w, fmt.Errorf("%w: version is required", entry.ErrInvalidArgument))
		return
	}

	result, err := s.service.UpdateSection(r.Context(), r.PathValue("id"), index, body.Content, *body.Version, body.Source)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

type replaceBody struct {
	OldText string `json:"old_text"`
	NewText string `json:"new_text"`
	Version *int   `json:"version"`
	Source  string `json:"source"`
}

func (s *Server) handleReplaceText(w http.ResponseWriter, r *http.Request) {
	var body replaceBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Version == nil {
		writeError(w, fmt.Errorf("%w: version is required", entry.ErrInvalidArgument))
		return
	}

	result, err := s.service.ReplaceText(r.Context(), r.PathValue("id"), body.OldText, body.NewText, *body.Version, body.Source)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.service.Versions(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if versions == nil {
		versions = []store.Version{}
	}
	writeData(w, http.StatusOK, versions)
}

func (s *Server) handleGetVersionContent(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.Atoi(r.PathValue("version"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: invalid version number", entry.ErrInvalidArgument))
		return
	}

	snapshot, err := s.service.VersionContent(r.Context(), r.PathValue("id"), version)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, snapshot)
}

func (s *Server) handleListRelations(w http.ResponseWriter, r *http.Request) {
	relations, err := s.service.Relations(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if relations == nil {
		relations = []store.Relation{}
	}
	writeData(w, http.StatusOK, relations)
}

type createRelationBody struct {
	ToID string `json:"to_id"`
	Type string `json:"type"`
}

func (s *Server) handleCreateRelation(w http.ResponseWriter, r *http.Request) {
	var body createRelationBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.ToID == "" {
		writeError(w, fmt.Errorf("%w: to_id is required", entry.ErrInvalidArgument))
		return
	}

	id, err := s.service.AddRelation(r.Context(), r.PathValue("id"), body.ToID, body.Type)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleDeleteRelation(w http.ResponseWriter, r *http.Request) {
	if err := s.service.RemoveRelation(r.Context(), r.PathValue("relationId")); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

func sectionIndex(r *http.Request) (int, error) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		return 0, fmt.Errorf("%w: section index must be an integer", entry.ErrInvalidArgument)
	}
	return index, nil
}

// intParam parses a query parameter, falling back when absent or invalid.
func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
