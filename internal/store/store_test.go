package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "nota.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func insertTestEntry(t *testing.T, st *Store, title, content string, tags []string) *Entry {
	t.Helper()
	e := &Entry{
		ID:         st.NewID(),
		NotebookID: DefaultNotebookID,
		Title:      title,
		Content:    content,
		Summary:    "summary",
		Type:       "note",
		Source:     "manual",
		WordCount:  3,
	}
	if err := st.InsertEntry(context.Background(), e, tags, "初始创建"); err != nil {
		t.Fatalf("InsertEntry: %v", err)
	}
	return e
}

func TestInsertEntrySeedsVersionOne(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	e := insertTestEntry(t, st, "hello", "body", nil)

	got, err := st.GetEntry(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if got == nil || got.Version != 1 {
		t.Fatalf("got %+v, want version 1", got)
	}
	if got.NotebookName == "" {
		t.Error("notebook name not joined")
	}

	versions, err := st.ListVersions(ctx, e.ID)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 1 || versions[0].Version != 1 || versions[0].ChangeSummary != "初始创建" {
		t.Errorf("unexpected history: %+v", versions)
	}
}

func TestGetEntryAbsent(t *testing.T) {
	st := openTestStore(t)
	got, err := st.GetEntry(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for absent entry, got %+v", got)
	}
}

func TestUpdateEntryCAS(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	e := insertTestEntry(t, st, "doc", "v1 body", nil)

	content := "v2 body"
	wc := 2
	updated, err := st.UpdateEntry(ctx, e.ID, 1, EntryUpdate{
		Content:       &content,
		WordCount:     &wc,
		ChangeSummary: "更新文档",
		Source:        "agent",
	})
	if err != nil {
		t.Fatalf("UpdateEntry: %v", err)
	}
	if updated == nil || updated.Version != 2 || updated.Content != "v2 body" {
		t.Fatalf("got %+v, want version 2 with new content", updated)
	}

	versions, err := st.ListVersions(ctx, e.ID)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("got %d version rows, want 2", len(versions))
	}
	// Newest first
	if versions[0].Version != 2 || versions[0].Source != "agent" {
		t.Errorf("newest version row: %+v", versions[0])
	}

	stored, found, err := st.GetVersionContent(ctx, e.ID, 2)
	if err != nil || !found {
		t.Fatalf("GetVersionContent: found=%v err=%v", found, err)
	}
	if stored != "v2 body" {
		t.Errorf("version row content = %q", stored)
	}
}

func TestUpdateEntryStaleVersion(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	e := insertTestEntry(t, st, "doc", "body", nil)

	title := "sneaky"
	updated, err := st.UpdateEntry(ctx, e.ID, 7, EntryUpdate{Title: &title})
	if err != nil {
		t.Fatalf("UpdateEntry: %v", err)
	}
	if updated != nil {
		t.Fatalf("stale version must not write, got %+v", updated)
	}

	// Nothing changed, no version row appended.
	got, _ := st.GetEntry(ctx, e.ID)
	if got.Title != "doc" || got.Version != 1 {
		t.Errorf("entry mutated by failed CAS: %+v", got)
	}
	versions, _ := st.ListVersions(ctx, e.ID)
	if len(versions) != 1 {
		t.Errorf("got %d version rows, want 1", len(versions))
	}
}

func TestEntryTags(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	e := insertTestEntry(t, st, "doc", "body", []string{" Go ", "notes", ""})

	tags, err := st.TagsForEntry(ctx, e.ID)
	if err != nil {
		t.Fatalf("TagsForEntry: %v", err)
	}
	if len(tags) != 2 || tags[0].Name != "go" || tags[1].Name != "notes" {
		t.Fatalf("tags = %+v", tags)
	}

	// Replacing the tag set drops the old links and reuses existing tags.
	updated, err := st.UpdateEntry(ctx, e.ID, 1, EntryUpdate{Tags: []string{"go", "new"}})
	if err != nil || updated == nil {
		t.Fatalf("UpdateEntry: %+v, %v", updated, err)
	}
	tags, _ = st.TagsForEntry(ctx, e.ID)
	if len(tags) != 2 || tags[0].Name != "go" || tags[1].Name != "new" {
		t.Fatalf("tags after replace = %+v", tags)
	}

	all, err := st.ListTags(ctx)
	if err != nil {
		t.Fatalf("ListTags: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("got %d tags total, want 3 (go, new, notes)", len(all))
	}
	for _, tag := range all {
		if tag.Name == "notes" && tag.Count != 0 {
			t.Errorf("unlinked tag still counted: %+v", tag)
		}
	}
}

func TestListEntriesFilters(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	nb, err := st.CreateNotebook(ctx, "work", "", "")
	if err != nil {
		t.Fatalf("CreateNotebook: %v", err)
	}

	a := insertTestEntry(t, st, "alpha", "a", []string{"go"})
	insertTestEntry(t, st, "beta", "b", nil)
	c := &Entry{
		ID: st.NewID(), NotebookID: nb.ID, Title: "gamma",
		Content: "c", Type: "diary", Source: "manual", WordCount: 1,
	}
	if err := st.InsertEntry(ctx, c, nil, "初始创建"); err != nil {
		t.Fatalf("InsertEntry: %v", err)
	}

	entries, total, err := st.ListEntries(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if total != 3 || len(entries) != 3 {
		t.Fatalf("unfiltered: total=%d len=%d", total, len(entries))
	}

	entries, total, err = st.ListEntries(ctx, ListFilter{NotebookID: nb.ID})
	if err != nil || total != 1 || entries[0].Title != "gamma" {
		t.Errorf("notebook filter: total=%d %v", total, err)
	}

	entries, total, err = st.ListEntries(ctx, ListFilter{Tags: []string{"go"}})
	if err != nil || total != 1 || entries[0].ID != a.ID {
		t.Errorf("tag filter: total=%d %v", total, err)
	}

	entries, total, err = st.ListEntries(ctx, ListFilter{Type: "diary"})
	if err != nil || total != 1 || entries[0].Title != "gamma" {
		t.Errorf("type filter: total=%d %v", total, err)
	}

	entries, _, err = st.ListEntries(ctx, ListFilter{SortBy: "title", SortOrder: "asc"})
	if err != nil || entries[0].Title != "alpha" || entries[2].Title != "gamma" {
		t.Errorf("title sort: %v %v", entries, err)
	}

	entries, total, err = st.ListEntries(ctx, ListFilter{Page: 2, PageSize: 2})
	if err != nil || total != 3 || len(entries) != 1 {
		t.Errorf("paging: total=%d len=%d %v", total, len(entries), err)
	}
}

func TestListEntriesTagFilterMatchesAny(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	a := insertTestEntry(t, st, "alpha", "a", []string{"go"})
	b := insertTestEntry(t, st, "beta", "b", []string{"rust"})
	insertTestEntry(t, st, "gamma", "c", nil)

	// An entry matches when it carries any of the requested tags, not all.
	entries, total, err := st.ListEntries(ctx, ListFilter{Tags: []string{"go", "rust"}})
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if total != 2 || len(entries) != 2 {
		t.Fatalf("multi-tag filter: total=%d len=%d", total, len(entries))
	}
	seen := map[string]bool{}
	for _, e := range entries {
		seen[e.ID] = true
	}
	if !seen[a.ID] || !seen[b.ID] {
		t.Errorf("multi-tag filter returned %v, want %s and %s", seen, a.ID, b.ID)
	}
}

func TestDeleteEntry(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	e := insertTestEntry(t, st, "doc", "body", []string{"go"})

	deleted, err := st.DeleteEntry(ctx, e.ID)
	if err != nil || !deleted {
		t.Fatalf("DeleteEntry: deleted=%v err=%v", deleted, err)
	}

	got, _ := st.GetEntry(ctx, e.ID)
	if got != nil {
		t.Error("entry still present after delete")
	}
	versions, _ := st.ListVersions(ctx, e.ID)
	if len(versions) != 0 {
		t.Error("version rows survived entry delete")
	}

	deleted, err = st.DeleteEntry(ctx, e.ID)
	if err != nil || deleted {
		t.Errorf("second delete: deleted=%v err=%v", deleted, err)
	}
}

func TestNotebooks(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	nb, err := st.CreateNotebook(ctx, "projects", "work stuff", "🗂")
	if err != nil {
		t.Fatalf("CreateNotebook: %v", err)
	}

	e := insertTestEntry(t, st, "doc", "body", nil)
	moved := nb.ID
	if _, err := st.UpdateEntry(ctx, e.ID, 1, EntryUpdate{NotebookID: &moved}); err != nil {
		t.Fatalf("move entry: %v", err)
	}

	notebooks, err := st.ListNotebooks(ctx)
	if err != nil {
		t.Fatalf("ListNotebooks: %v", err)
	}
	if len(notebooks) != 2 || !notebooks[0].IsDefault {
		t.Fatalf("notebooks = %+v", notebooks)
	}
	if notebooks[1].EntryCount != 1 {
		t.Errorf("entry count = %d, want 1", notebooks[1].EntryCount)
	}

	// Deleting a notebook moves its entries to the default notebook.
	deleted, err := st.DeleteNotebook(ctx, nb.ID)
	if err != nil || !deleted {
		t.Fatalf("DeleteNotebook: deleted=%v err=%v", deleted, err)
	}
	got, _ := st.GetEntry(ctx, e.ID)
	if got.NotebookID != DefaultNotebookID {
		t.Errorf("entry notebook = %q, want default", got.NotebookID)
	}

	if _, err := st.DeleteNotebook(ctx, DefaultNotebookID); !errors.Is(err, ErrDefaultNotebook) {
		t.Errorf("deleting default notebook: got %v, want ErrDefaultNotebook", err)
	}
}

func TestRelations(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	a := insertTestEntry(t, st, "a", "x", nil)
	b := insertTestEntry(t, st, "b", "y", nil)

	relID, err := st.CreateRelation(ctx, a.ID, b.ID, "")
	if err != nil {
		t.Fatalf("CreateRelation: %v", err)
	}
	if _, err := st.CreateRelation(ctx, a.ID, b.ID, "related"); !errors.Is(err, ErrRelationExists) {
		t.Errorf("duplicate relation: got %v, want ErrRelationExists", err)
	}

	out, err := st.ListRelations(ctx, a.ID)
	if err != nil || len(out) != 1 || out[0].Direction != "outgoing" || out[0].TargetID != b.ID {
		t.Errorf("relations of a: %+v, %v", out, err)
	}
	in, err := st.ListRelations(ctx, b.ID)
	if err != nil || len(in) != 1 || in[0].Direction != "incoming" || in[0].TargetID != a.ID {
		t.Errorf("relations of b: %+v, %v", in, err)
	}

	deleted, err := st.DeleteRelation(ctx, relID)
	if err != nil || !deleted {
		t.Errorf("DeleteRelation: deleted=%v err=%v", deleted, err)
	}
}

func TestAgentLogs(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	for _, action := range []string{"create", "update", "update"} {
		err := st.InsertAgentLog(ctx, AgentLog{
			Action:     action,
			EntryID:    "e1",
			EntryTitle: "doc",
			Summary:    "did " + action,
			AddedWords: 5,
		})
		if err != nil {
			t.Fatalf("InsertAgentLog: %v", err)
		}
	}

	logs, total, err := st.ListAgentLogs(ctx, "", 1, 50)
	if err != nil || total != 3 || len(logs) != 3 {
		t.Fatalf("all logs: total=%d len=%d %v", total, len(logs), err)
	}

	logs, total, err = st.ListAgentLogs(ctx, "update", 1, 50)
	if err != nil || total != 2 || len(logs) != 2 {
		t.Errorf("filtered logs: total=%d len=%d %v", total, len(logs), err)
	}
}

func TestGetStats(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	insertTestEntry(t, st, "a", "x", []string{"go"})
	insertTestEntry(t, st, "b", "y", nil)

	stats, err := st.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.EntryCount != 2 || stats.NotebookCount != 1 || stats.TagCount != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.TotalWordCount != 6 {
		t.Errorf("total words = %d, want 6", stats.TotalWordCount)
	}
	if stats.EntriesByType["note"] != 2 {
		t.Errorf("by type = %+v", stats.EntriesByType)
	}
}
