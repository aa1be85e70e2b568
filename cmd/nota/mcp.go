package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lthms/nota/internal/entry"
	"github.com/lthms/nota/internal/store"
)

// MCPCmd runs the MCP server on stdio.
type MCPCmd struct {
	DB string `type:"path" help:"SQLite database path, overrides the config file."`
}

// Run serves MCP tools over stdio until the client disconnects.
func (cmd *MCPCmd) Run(cfg *Config) error {
	if cmd.DB != "" {
		cfg.DBPath = cmd.DB
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	service := entry.New(st, entry.Config{LongDocThreshold: cfg.LongDocThreshold})

	server := newMCPServer(service, st)
	slog.Debug("starting MCP server")
	return server.Run(context.Background(), &mcp.StdioTransport{})
}

// MCP tool args

type entryListArgs struct {
	NotebookID string   `json:"notebook_id,omitempty" jsonschema:"Filter by notebook id"`
	Tags       []string `json:"tags,omitempty" jsonschema:"Filter by tag names; entries carrying any of them match"`
	Type       string   `json:"type,omitempty" jsonschema:"Filter by entry type"`
	SortBy     string   `json:"sort_by,omitempty" jsonschema:"Sort field: updated_at, created_at or title"`
	SortOrder  string   `json:"sort_order,omitempty" jsonschema:"Sort order: asc or desc"`
	Page       int      `json:"page,omitempty" jsonschema:"Page number, 1-based"`
	PageSize   int      `json:"page_size,omitempty" jsonschema:"Entries per page"`
}

type entryGetArgs struct {
	ID     string `json:"id" jsonschema:"Entry id"`
	Mode   string `json:"mode,omitempty" jsonschema:"Read mode: full or outline. Long documents default to outline"`
	Offset int    `json:"offset,omitempty" jsonschema:"First line to read, 1-based. Switches to a paged line view"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Number of lines per page, default 100"`
}

type entryGetSectionArgs struct {
	ID           string `json:"id" jsonschema:"Entry id"`
	SectionIndex int    `json:"section_index" jsonschema:"Section index from the outline, 0-based"`
}

type entryCreateArgs struct {
	Title      string   `json:"title" jsonschema:"Entry title"`
	Content    string   `json:"content" jsonschema:"Markdown content"`
	NotebookID string   `json:"notebook_id,omitempty" jsonschema:"Target notebook id, default notebook when omitted"`
	Tags       []string `json:"tags,omitempty" jsonschema:"Tag names to attach"`
	Type       string   `json:"type,omitempty" jsonschema:"Entry type, default note"`
	Summary    string   `json:"summary,omitempty" jsonschema:"Summary, derived from content when omitted"`
}

type entryUpdateArgs struct {
	ID            string   `json:"id" jsonschema:"Entry id"`
	Version       int      `json:"version" jsonschema:"Version the edit is based on"`
	Title         string   `json:"title,omitempty" jsonschema:"New title"`
	Content       string   `json:"content,omitempty" jsonschema:"New full content"`
	Summary       string   `json:"summary,omitempty" jsonschema:"New summary"`
	NotebookID    string   `json:"notebook_id,omitempty" jsonschema:"Move to this notebook"`
	Tags          []string `json:"tags,omitempty" jsonschema:"Replacement tag set"`
	ChangeSummary string   `json:"change_summary,omitempty" jsonschema:"Description of the change for the version history"`
}

type entryAppendArgs struct {
	ID      string `json:"id" jsonschema:"Entry id"`
	Version int    `json:"version" jsonschema:"Version the edit is based on"`
	Content string `json:"content" jsonschema:"Text appended after a blank line"`
}

type entryUpdateSectionArgs struct {
	ID           string `json:"id" jsonschema:"Entry id"`
	Version      int    `json:"version" jsonschema:"Version the edit is based on"`
	SectionIndex int    `json:"section_index" jsonschema:"Section index from the outline, 0-based"`
	Content      string `json:"content" jsonschema:"Replacement text for the whole section, heading line included"`
}

type entryReplaceArgs struct {
	ID      string `json:"id" jsonschema:"Entry id"`
	Version int    `json:"version" jsonschema:"Version the edit is based on"`
	OldText string `json:"old_text" jsonschema:"Exact text to find. Must occur exactly once"`
	NewText string `json:"new_text" jsonschema:"Replacement text"`
}

type entryDeleteArgs struct {
	ID string `json:"id" jsonschema:"Entry id"`
}

type entryVersionsArgs struct {
	ID string `json:"id" jsonschema:"Entry id"`
}

type entryRelationsListArgs struct {
	ID string `json:"id" jsonschema:"Entry id"`
}

type entryRelationCreateArgs struct {
	FromID string `json:"from_id" jsonschema:"Source entry id"`
	ToID   string `json:"to_id" jsonschema:"Target entry id"`
	Type   string `json:"type,omitempty" jsonschema:"Relation type: references, continues, related, contradicts or summarizes. Default related"`
}

type entryRelationDeleteArgs struct {
	RelationID string `json:"relation_id" jsonschema:"Relation id from entry_relations_list"`
}

type notebookListArgs struct{}
type tagListArgs struct{}

// toolset holds the collaborators the MCP tools call into.
type toolset struct {
	service *entry.Service
	store   *store.Store
}

// newMCPServer creates the MCP server with all tools registered. Every
// mutation goes through the entry service with an agent source, so the
// audit trail and version history record who made the change.
func newMCPServer(service *entry.Service, st *store.Store) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "nota",
		Version: "1.0.0",
	}, nil)

	t := &toolset{service: service, store: st}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "entry_list",
		Description: "List knowledge base entries with optional notebook, tag and type filters. Returns metadata only, not content.",
	}, t.entryList)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "entry_get",
		Description: "Read one entry. Long documents return an outline of sections instead of full content; use offset/limit for a paged line view, or mode=full to force the whole document.",
	}, t.entryGet)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "entry_get_section",
		Description: "Read a single section of an entry by its outline index. Content lines carry 1-based line numbers.",
	}, t.entryGetSection)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "entry_create",
		Description: "Create a new entry at version 1.",
	}, t.entryCreate)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "entry_update",
		Description: "Update entry fields. Requires the version the edit is based on; a mismatch means someone else changed the entry first.",
	}, t.entryUpdate)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "entry_append",
		Description: "Append text to the end of an entry, separated by a blank line. Avoids rewriting the whole document.",
	}, t.entryAppend)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "entry_update_section",
		Description: "Replace one section of an entry by its outline index, leaving the rest of the document untouched.",
	}, t.entryUpdateSection)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "entry_replace",
		Description: "Replace an exact text fragment in an entry. Fails if the fragment is missing or occurs more than once; include enough surrounding context to make it unique.",
	}, t.entryReplace)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "entry_delete",
		Description: "Delete an entry and its version history.",
	}, t.entryDelete)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "entry_versions",
		Description: "List the version history of an entry, newest first.",
	}, t.entryVersions)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "entry_relations_list",
		Description: "List all relations of an entry, outgoing and incoming, with type, direction and target metadata.",
	}, t.entryRelationsList)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "entry_relation_create",
		Description: "Link two entries. Types: references, continues, related, contradicts, summarizes.",
	}, t.entryRelationCreate)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "entry_relation_delete",
		Description: "Remove a relation between two entries by its id.",
	}, t.entryRelationDelete)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "notebook_list",
		Description: "List notebooks with their entry counts.",
	}, t.notebookList)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "tag_list",
		Description: "List all tags with their usage counts.",
	}, t.tagList)

	return server
}

func (t *toolset) entryList(ctx context.Context, req *mcp.CallToolRequest, args entryListArgs) (*mcp.CallToolResult, any, error) {
	res, err := t.service.List(ctx, store.ListFilter{
		NotebookID: args.NotebookID,
		Tags:       args.Tags,
		Type:       args.Type,
		SortBy:     args.SortBy,
		SortOrder:  args.SortOrder,
		Page:       args.Page,
		PageSize:   args.PageSize,
	})
	if err != nil {
		return toolError(err)
	}
	return jsonResult(res)
}

func (t *toolset) entryGet(ctx context.Context, req *mcp.CallToolRequest, args entryGetArgs) (*mcp.CallToolResult, any, error) {
	view, err := t.service.Get(ctx, args.ID, entry.GetOptions{
		Mode:   args.Mode,
		Offset: args.Offset,
		Limit:  args.Limit,
	})
	if err != nil {
		return toolError(err)
	}
	return jsonResult(view)
}

func (t *toolset) entryGetSection(ctx context.Context, req *mcp.CallToolRequest, args entryGetSectionArgs) (*mcp.CallToolResult, any, error) {
	section, err := t.service.GetSection(ctx, args.ID, args.SectionIndex)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(section)
}

func (t *toolset) entryCreate(ctx context.Context, req *mcp.CallToolRequest, args entryCreateArgs) (*mcp.CallToolResult, any, error) {
	res, err := t.service.Create(ctx, entry.CreateRequest{
		Title:      args.Title,
		Content:    args.Content,
		NotebookID: args.NotebookID,
		Tags:       args.Tags,
		Type:       args.Type,
		Summary:    args.Summary,
		Source:     entry.SourceAgent,
	})
	if err != nil {
		return toolError(err)
	}
	return jsonResult(res)
}

func (t *toolset) entryUpdate(ctx context.Context, req *mcp.CallToolRequest, args entryUpdateArgs) (*mcp.CallToolResult, any, error) {
	upd := entry.UpdateRequest{
		Version:       args.Version,
		Tags:          args.Tags,
		ChangeSummary: args.ChangeSummary,
		Source:        entry.SourceAgent,
	}
	if args.Title != "" {
		upd.Title = &args.Title
	}
	if args.Content != "" {
		upd.Content = &args.Content
	}
	if args.Summary != "" {
		upd.Summary = &args.Summary
	}
	if args.NotebookID != "" {
		upd.NotebookID = &args.NotebookID
	}
	res, err := t.service.Update(ctx, args.ID, upd)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(res)
}

func (t *toolset) entryAppend(ctx context.Context, req *mcp.CallToolRequest, args entryAppendArgs) (*mcp.CallToolResult, any, error) {
	res, err := t.service.Append(ctx, args.ID, args.Content, args.Version, entry.SourceAgent)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(res)
}

func (t *toolset) entryUpdateSection(ctx context.Context, req *mcp.CallToolRequest, args entryUpdateSectionArgs) (*mcp.CallToolResult, any, error) {
	res, err := t.service.UpdateSection(ctx, args.ID, args.SectionIndex, args.Content, args.Version, entry.SourceAgent)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(res)
}

func (t *toolset) entryReplace(ctx context.Context, req *mcp.CallToolRequest, args entryReplaceArgs) (*mcp.CallToolResult, any, error) {
	res, err := t.service.ReplaceText(ctx, args.ID, args.OldText, args.NewText, args.Version, entry.SourceAgent)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(res)
}

func (t *toolset) entryDelete(ctx context.Context, req *mcp.CallToolRequest, args entryDeleteArgs) (*mcp.CallToolResult, any, error) {
	if err := t.service.Delete(ctx, args.ID, entry.SourceAgent); err != nil {
		return toolError(err)
	}
	return textResult("Entry deleted.")
}

func (t *toolset) entryVersions(ctx context.Context, req *mcp.CallToolRequest, args entryVersionsArgs) (*mcp.CallToolResult, any, error) {
	versions, err := t.service.Versions(ctx, args.ID)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(versions)
}

func (t *toolset) entryRelationsList(ctx context.Context, req *mcp.CallToolRequest, args entryRelationsListArgs) (*mcp.CallToolResult, any, error) {
	relations, err := t.service.Relations(ctx, args.ID)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(relations)
}

func (t *toolset) entryRelationCreate(ctx context.Context, req *mcp.CallToolRequest, args entryRelationCreateArgs) (*mcp.CallToolResult, any, error) {
	id, err := t.service.AddRelation(ctx, args.FromID, args.ToID, args.Type)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]string{"id": id})
}

func (t *toolset) entryRelationDelete(ctx context.Context, req *mcp.CallToolRequest, args entryRelationDeleteArgs) (*mcp.CallToolResult, any, error) {
	if err := t.service.RemoveRelation(ctx, args.RelationID); err != nil {
		return toolError(err)
	}
	return textResult("Relation deleted.")
}

func (t *toolset) notebookList(ctx context.Context, req *mcp.CallToolRequest, args notebookListArgs) (*mcp.CallToolResult, any, error) {
	notebooks, err := t.store.ListNotebooks(ctx)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(notebooks)
}

func (t *toolset) tagList(ctx context.Context, req *mcp.CallToolRequest, args tagListArgs) (*mcp.CallToolResult, any, error) {
	tags, err := t.store.ListTags(ctx)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(tags)
}

// jsonResult renders v as indented JSON tool output.
func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(raw))
}

func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}, nil, nil
}

// toolError reports a domain error back to the model as tool output
// instead of a protocol failure, so it can correct the call.
func toolError(err error) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: err.Error()},
		},
	}, nil, nil
}
