package main

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lthms/nota/internal/entry"
	"github.com/lthms/nota/internal/store"
)

func newTestToolset(t *testing.T) *toolset {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return &toolset{service: entry.New(st, entry.Config{}), store: st}
}

func toolText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("expected one content block, got %d", len(res.Content))
	}
	tc, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return tc.Text
}

func createTestEntry(t *testing.T, ts *toolset, title string) string {
	t.Helper()
	res, err := ts.service.Create(context.Background(), entry.CreateRequest{
		Title:   title,
		Content: "body of " + title,
		Source:  entry.SourceAgent,
	})
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	return res.ID
}

func TestRelationTools(t *testing.T) {
	ts := newTestToolset(t)
	ctx := context.Background()

	fromID := createTestEntry(t, ts, "alpha")
	toID := createTestEntry(t, ts, "beta")

	res, _, err := ts.entryRelationCreate(ctx, nil, entryRelationCreateArgs{
		FromID: fromID,
		ToID:   toID,
		Type:   "references",
	})
	if err != nil {
		t.Fatalf("entryRelationCreate: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, res))
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(toolText(t, res)), &created); err != nil {
		t.Fatalf("decode create result: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected a relation id")
	}

	// The same link twice is rejected as tool output, not a protocol error.
	res, _, err = ts.entryRelationCreate(ctx, nil, entryRelationCreateArgs{
		FromID: fromID,
		ToID:   toID,
		Type:   "references",
	})
	if err != nil {
		t.Fatalf("entryRelationCreate duplicate: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected duplicate relation to be reported as a tool error")
	}

	// Listing from the target side sees the link as incoming.
	res, _, err = ts.entryRelationsList(ctx, nil, entryRelationsListArgs{ID: toID})
	if err != nil {
		t.Fatalf("entryRelationsList: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, res))
	}
	var relations []store.Relation
	if err := json.Unmarshal([]byte(toolText(t, res)), &relations); err != nil {
		t.Fatalf("decode relations: %v", err)
	}
	if len(relations) != 1 {
		t.Fatalf("expected 1 relation, got %d", len(relations))
	}
	if relations[0].Direction != "incoming" || relations[0].Type != "references" {
		t.Fatalf("unexpected relation: %+v", relations[0])
	}
	if relations[0].TargetID != fromID {
		t.Fatalf("expected target %s, got %s", fromID, relations[0].TargetID)
	}

	res, _, err = ts.entryRelationDelete(ctx, nil, entryRelationDeleteArgs{RelationID: created.ID})
	if err != nil {
		t.Fatalf("entryRelationDelete: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, res))
	}

	res, _, err = ts.entryRelationDelete(ctx, nil, entryRelationDeleteArgs{RelationID: created.ID})
	if err != nil {
		t.Fatalf("entryRelationDelete repeat: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected deleting a removed relation to be reported as a tool error")
	}
}

func TestRelationCreateUnknownEntry(t *testing.T) {
	ts := newTestToolset(t)

	fromID := createTestEntry(t, ts, "alpha")

	res, _, err := ts.entryRelationCreate(context.Background(), nil, entryRelationCreateArgs{
		FromID: fromID,
		ToID:   "missing",
	})
	if err != nil {
		t.Fatalf("entryRelationCreate: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected a tool error for an unknown target entry")
	}
}
