// Package entry orchestrates reads and optimistic-concurrency-controlled
// mutations of entries. All content derivation (sections, line ranges,
// replacements, word counts) happens on a snapshot loaded from the store;
// the persisted write is conditioned on the snapshot's version at the
// storage layer, so a concurrent mutation surfaces as a version conflict
// instead of a lost update.
package entry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lthms/nota/internal/markdown"
	"github.com/lthms/nota/internal/store"
)

// DefaultLongDocThreshold is the word count at or above which a read
// without an explicit mode returns the outline instead of the full text.
const DefaultLongDocThreshold = 2000

// SourceManual and SourceAgent tag who originated a mutation. The tag
// affects audit logging only, never the mutation algorithm.
const (
	SourceManual = "manual"
	SourceAgent  = "agent"
)

// Config holds service parameters.
type Config struct {
	LongDocThreshold int // 0 = DefaultLongDocThreshold
}

// Service is the entry read/mutation orchestrator.
type Service struct {
	store            *store.Store
	longDocThreshold int
}

// New creates a Service on top of the given store.
func New(st *store.Store, cfg Config) *Service {
	threshold := cfg.LongDocThreshold
	if threshold <= 0 {
		threshold = DefaultLongDocThreshold
	}
	return &Service{store: st, longDocThreshold: threshold}
}

// NotebookRef identifies an entry's notebook in read responses.
type NotebookRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Showing describes the window of a page view.
type Showing struct {
	Offset  int  `json:"offset"`
	Limit   int  `json:"limit"`
	HasMore bool `json:"hasMore"`
}

// View is a read response. Mode decides which fields are populated:
// "page" carries Showing plus a line-numbered Content slice, "outline"
// carries Sections without content, "full" carries the whole Content.
type View struct {
	Mode       string             `json:"mode"`
	ID         string             `json:"id"`
	Title      string             `json:"title"`
	Summary    string             `json:"summary,omitempty"`
	Type       string             `json:"type,omitempty"`
	Source     string             `json:"source,omitempty"`
	Version    int                `json:"version"`
	WordCount  int                `json:"wordCount,omitempty"`
	TotalLines int                `json:"totalLines"`
	Showing    *Showing           `json:"showing,omitempty"`
	Content    string             `json:"content,omitempty"`
	Sections   []markdown.Section `json:"sections,omitempty"`
	Tags       []store.Tag        `json:"tags,omitempty"`
	Notebook   *NotebookRef       `json:"notebook,omitempty"`
	Relations  []store.Relation   `json:"relations,omitempty"`
	CreatedAt  string             `json:"createdAt,omitempty"`
	UpdatedAt  string             `json:"updatedAt,omitempty"`
}

// GetOptions selects how an entry is read. Offset > 0 forces a page view
// and ignores Mode.
type GetOptions struct {
	Mode   string // "", "full" or "outline"
	Offset int    // 1-indexed first line, 0 = unset
	Limit  int    // page size in lines, 0 = 100
}

// Get reads one entry as a page, outline or full view. Without an
// explicit mode, documents at or above the long-doc threshold return the
// outline.
func (s *Service) Get(ctx context.Context, id string, opts GetOptions) (*View, error) {
	switch opts.Mode {
	case "", "full", "outline":
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidArgument, opts.Mode)
	}

	e, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, ErrNotFound
	}

	totalLines := markdown.CountLines(e.Content)

	if opts.Offset > 0 {
		limit := opts.Limit
		if limit <= 0 {
			limit = 100
		}
		lr := markdown.GetLineRange(e.Content, opts.Offset, limit)
		return &View{
			Mode:       "page",
			ID:         e.ID,
			Title:      e.Title,
			Version:    e.Version,
			TotalLines: totalLines,
			Showing:    &Showing{Offset: opts.Offset, Limit: limit, HasMore: lr.HasMore},
			Content:    lr.Content,
		}, nil
	}

	tags, err := s.store.TagsForEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	relations, err := s.store.ListRelations(ctx, id)
	if err != nil {
		return nil, err
	}

	view := &View{
		ID:         e.ID,
		Title:      e.Title,
		Summary:    e.Summary,
		Type:       e.Type,
		Source:     e.Source,
		Version:    e.Version,
		WordCount:  e.WordCount,
		TotalLines: totalLines,
		Tags:       tags,
		Notebook:   &NotebookRef{ID: e.NotebookID, Name: e.NotebookName},
		Relations:  relations,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}

	mode := opts.Mode
	if mode == "" {
		if e.WordCount >= s.longDocThreshold {
			mode = "outline"
		} else {
			mode = "full"
		}
	}
	view.Mode = mode
	if mode == "outline" {
		view.Sections = markdown.ParseSections(e.Content)
	} else {
		view.Content = e.Content
	}
	return view, nil
}

// GetSection reads one section of an entry with line-numbered content.
func (s *Service) GetSection(ctx context.Context, id string, sectionIndex int) (*markdown.SectionContent, error) {
	if sectionIndex < 0 {
		return nil, fmt.Errorf("%w: section index must not be negative", ErrInvalidArgument)
	}

	e, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, ErrNotFound
	}

	sc := markdown.GetSectionContent(e.Content, sectionIndex)
	if sc == nil {
		return nil, &SectionNotFoundError{Index: sectionIndex}
	}
	return sc, nil
}

// CreateRequest creates a new entry at version 1.
type CreateRequest struct {
	Title      string
	Content    string
	NotebookID string // "" = default notebook
	Tags       []string
	Type       string // "" = note
	Summary    string // "" = derived from content
	Source     string // "" = manual
}

// CreateResult reports a created entry.
type CreateResult struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Version   int    `json:"version"`
	CreatedAt string `json:"createdAt"`
}

// Create inserts a new entry, seeds its version history and, for agent
// callers, logs the creation.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidArgument)
	}
	if req.Content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidArgument)
	}

	notebookID := req.NotebookID
	if notebookID == "" {
		notebookID = store.DefaultNotebookID
	} else {
		nb, err := s.store.GetNotebook(ctx, notebookID)
		if err != nil {
			return nil, err
		}
		if nb == nil {
			return nil, fmt.Errorf("%w: notebook %q does not exist", ErrInvalidArgument, notebookID)
		}
	}

	summary := req.Summary
	if summary == "" {
		summary = deriveSummary(req.Content)
	}
	source := req.Source
	if source == "" {
		source = SourceManual
	}
	typ := req.Type
	if typ == "" {
		typ = "note"
	}

	e := &store.Entry{
		ID:         s.store.NewID(),
		NotebookID: notebookID,
		Title:      req.Title,
		Content:    req.Content,
		Summary:    summary,
		Type:       typ,
		Source:     source,
		WordCount:  markdown.CountWords(req.Content),
	}
	if err := s.store.InsertEntry(ctx, e, req.Tags, "初始创建"); err != nil {
		return nil, err
	}

	if source == SourceAgent {
		s.logAgentOp(ctx, store.AgentLog{
			Action:     "create",
			EntryID:    e.ID,
			EntryTitle: e.Title,
			Summary:    fmt.Sprintf("创建了 \"%s\"", e.Title),
			AddedWords: e.WordCount,
		})
	}

	return &CreateResult{ID: e.ID, Title: e.Title, Version: e.Version, CreatedAt: e.CreatedAt}, nil
}

// UpdateRequest is a full or partial entry update. Version is the
// caller's expected current version; nil fields are left untouched.
type UpdateRequest struct {
	Version       int
	Title         *string
	Content       *string
	Summary       *string
	NotebookID    *string
	Type          *string
	Tags          []string // non-nil replaces the tag set
	ChangeSummary string
	Source        string
}

// MutationResult reports a successful mutation.
type MutationResult struct {
	ID        string `json:"id"`
	Version   int    `json:"version"`
	UpdatedAt string `json:"updatedAt"`
}

// Update applies a full or partial update when the caller's version
// matches the stored one. Content changes recompute the word count and,
// when no explicit summary is supplied, re-derive the summary.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*MutationResult, error) {
	snapshot, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, ErrNotFound
	}
	if req.Version != snapshot.Version {
		return nil, &ConflictError{Current: snapshot.Version, Requested: req.Version}
	}

	source := req.Source
	if source == "" {
		source = SourceManual
	}
	changeSummary := req.ChangeSummary
	if changeSummary == "" {
		changeSummary = "更新文档"
	}

	upd := store.EntryUpdate{
		Title:         req.Title,
		Summary:       req.Summary,
		NotebookID:    req.NotebookID,
		Type:          req.Type,
		Tags:          req.Tags,
		ChangeSummary: changeSummary,
		Source:        source,
	}
	if req.Content != nil {
		upd.Content = req.Content
		wc := markdown.CountWords(*req.Content)
		upd.WordCount = &wc
		if req.Summary == nil {
			derived := deriveSummary(*req.Content)
			upd.Summary = &derived
		}
	}

	updated, err := s.store.UpdateEntry(ctx, id, req.Version, upd)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		// The conditional write matched nothing: a concurrent mutation won
		// between our load and the write, or the entry was deleted.
		latest, err := s.store.GetEntry(ctx, id)
		if err != nil {
			return nil, err
		}
		if latest == nil {
			return nil, ErrNotFound
		}
		return nil, &ConflictError{Current: latest.Version, Requested: req.Version}
	}

	if source == SourceAgent {
		summary := req.ChangeSummary
		if summary == "" {
			summary = fmt.Sprintf("更新了 \"%s\"", updated.Title)
		}
		s.logAgentOp(ctx, store.AgentLog{
			Action:       "update",
			EntryID:      id,
			EntryTitle:   updated.Title,
			Summary:      summary,
			AddedWords:   max(0, updated.WordCount-snapshot.WordCount),
			RemovedWords: max(0, snapshot.WordCount-updated.WordCount),
		})
	}

	return &MutationResult{ID: updated.ID, Version: updated.Version, UpdatedAt: updated.UpdatedAt}, nil
}

// Append adds content to the end of an entry, separated by a blank line.
func (s *Service) Append(ctx context.Context, id string, content string, version int, source string) (*MutationResult, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidArgument)
	}

	snapshot, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, ErrNotFound
	}
	if version != snapshot.Version {
		return nil, &ConflictError{Current: snapshot.Version, Requested: version}
	}

	newContent := snapshot.Content + "\n\n" + content
	return s.Update(ctx, id, UpdateRequest{
		Version:       version,
		Content:       &newContent,
		ChangeSummary: "追加内容",
		Source:        source,
	})
}

// UpdateSection replaces one section's line range with new content. The
// replacement is purely textual; it is not required to keep the section's
// heading.
func (s *Service) UpdateSection(ctx context.Context, id string, sectionIndex int, content string, version int, source string) (*MutationResult, error) {
	if sectionIndex < 0 {
		return nil, fmt.Errorf("%w: section index must not be negative", ErrInvalidArgument)
	}

	snapshot, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, ErrNotFound
	}
	if version != snapshot.Version {
		return nil, &ConflictError{Current: snapshot.Version, Requested: version}
	}

	newContent, ok := markdown.ReplaceSectionContent(snapshot.Content, sectionIndex, content)
	if !ok {
		return nil, &SectionNotFoundError{Index: sectionIndex}
	}

	return s.Update(ctx, id, UpdateRequest{
		Version:       version,
		Content:       &newContent,
		ChangeSummary: fmt.Sprintf("更新了 section %d", sectionIndex),
		Source:        source,
	})
}

// ReplaceText substitutes a unique occurrence of oldText with newText.
// Zero matches or more than one match abort the mutation; the ambiguous
// error carries the match count so the caller can add context and retry.
func (s *Service) ReplaceText(ctx context.Context, id string, oldText, newText string, version int, source string) (*MutationResult, error) {
	if oldText == "" {
		return nil, fmt.Errorf("%w: old_text is required", ErrInvalidArgument)
	}

	snapshot, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, ErrNotFound
	}
	if version != snapshot.Version {
		return nil, &ConflictError{Current: snapshot.Version, Requested: version}
	}

	newContent, err := markdown.ReplaceExactText(snapshot.Content, oldText, newText)
	if err != nil {
		return nil, err
	}

	return s.Update(ctx, id, UpdateRequest{
		Version:       version,
		Content:       &newContent,
		ChangeSummary: "精确文本替换",
		Source:        source,
	})
}

// Delete removes an entry and its history. Agent deletions are logged.
func (s *Service) Delete(ctx context.Context, id string, source string) error {
	snapshot, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	if snapshot == nil {
		return ErrNotFound
	}

	deleted, err := s.store.DeleteEntry(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}

	if source == SourceAgent {
		s.logAgentOp(ctx, store.AgentLog{
			Action:       "delete",
			EntryID:      id,
			EntryTitle:   snapshot.Title,
			Summary:      fmt.Sprintf("删除了 \"%s\"", snapshot.Title),
			RemovedWords: snapshot.WordCount,
		})
	}
	return nil
}

// ListItem is one row of a list response.
type ListItem struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Summary   string      `json:"summary"`
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	WordCount int         `json:"wordCount"`
	IsPinned  bool        `json:"isPinned"`
	Tags      []store.Tag `json:"tags"`
	Notebook  NotebookRef `json:"notebook"`
	CreatedAt string      `json:"createdAt"`
	UpdatedAt string      `json:"updatedAt"`
}

// ListResult pages entry metadata.
type ListResult struct {
	Entries  []ListItem `json:"entries"`
	Total    int        `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"pageSize"`
}

// List returns entry metadata matching the filter.
func (s *Service) List(ctx context.Context, f store.ListFilter) (*ListResult, error) {
	entries, total, err := s.store.ListEntries(ctx, f)
	if err != nil {
		return nil, err
	}

	items := make([]ListItem, 0, len(entries))
	for _, e := range entries {
		tags, err := s.store.TagsForEntry(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		if tags == nil {
			tags = []store.Tag{}
		}
		items = append(items, ListItem{
			ID:        e.ID,
			Title:     e.Title,
			Summary:   e.Summary,
			Type:      e.Type,
			Source:    e.Source,
			WordCount: e.WordCount,
			IsPinned:  e.IsPinned,
			Tags:      tags,
			Notebook:  NotebookRef{ID: e.NotebookID, Name: e.NotebookName},
			CreatedAt: e.CreatedAt,
			UpdatedAt: e.UpdatedAt,
		})
	}

	page := max(1, f.Page)
	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return &ListResult{Entries: items, Total: total, Page: page, PageSize: pageSize}, nil
}

// Versions returns an entry's audit trail metadata, newest first.
func (s *Service) Versions(ctx context.Context, id string) ([]store.Version, error) {
	e, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, ErrNotFound
	}
	return s.store.ListVersions(ctx, id)
}

// VersionSnapshot is the full content of one point in an entry's history.
type VersionSnapshot struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
	Content string `json:"content"`
}

// VersionContent returns the content an entry had at a given version.
func (s *Service) VersionContent(ctx context.Context, id string, version int) (*VersionSnapshot, error) {
	if version < 1 {
		return nil, fmt.Errorf("%w: version must be at least 1", ErrInvalidArgument)
	}
	e, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, ErrNotFound
	}
	content, found, err := s.store.GetVersionContent(ctx, id, version)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return &VersionSnapshot{ID: id, Version: version, Content: content}, nil
}

// Relations returns the relations touching an entry.
func (s *Service) Relations(ctx context.Context, id string) ([]store.Relation, error) {
	e, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, ErrNotFound
	}
	return s.store.ListRelations(ctx, id)
}

// AddRelation links two existing entries.
func (s *Service) AddRelation(ctx context.Context, fromID, toID, relType string) (string, error) {
	for _, id := range []string{fromID, toID} {
		e, err := s.store.GetEntry(ctx, id)
		if err != nil {
			return "", err
		}
		if e == nil {
			return "", ErrNotFound
		}
	}
	return s.store.CreateRelation(ctx, fromID, toID, relType)
}

// RemoveRelation deletes one relation by id.
func (s *Service) RemoveRelation(ctx context.Context, relationID string) error {
	deleted, err := s.store.DeleteRelation(ctx, relationID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

// logAgentOp records an agent operation. The mutation has already been
// persisted at this point, so a logging failure is reported but does not
// fail the call.
func (s *Service) logAgentOp(ctx context.Context, l store.AgentLog) {
	if err := s.store.InsertAgentLog(ctx, l); err != nil {
		slog.Warn("agent log write failed", "action", l.Action, "entry", l.EntryID, "error", err)
	}
}

// deriveSummary takes the first 200 characters of content and collapses
// embedded newlines to spaces.
func deriveSummary(content string) string {
	runes := []rune(content)
	if len(runes) > 200 {
		runes = runes[:200]
	}
	return strings.ReplaceAll(string(runes), "\n", " ")
}
