package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lthms/nota/internal/entry"
	"github.com/lthms/nota/internal/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "nota.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	service := entry.New(st, entry.Config{})
	ts := httptest.NewServer(New(service, st).Handler())
	t.Cleanup(ts.Close)
	return ts
}

// call issues a JSON request and decodes the response envelope.
func call(t *testing.T, ts *httptest.Server, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reqBody = bytes.NewBuffer(raw)
	} else {
		reqBody = &bytes.Buffer{}
	}

	req, err := http.NewRequest(method, ts.URL+path, reqBody)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, env
}

func createEntry(t *testing.T, ts *httptest.Server, title, content string) string {
	t.Helper()
	status, env := call(t, ts, "POST", "/api/entries", map[string]any{
		"title":   title,
		"content": content,
	})
	if status != http.StatusCreated {
		t.Fatalf("create entry: status %d, env %v", status, env)
	}
	return env["data"].(map[string]any)["id"].(string)
}

func TestEntryLifecycle(t *testing.T) {
	ts := newTestServer(t)
	id := createEntry(t, ts, "doc", "# T\nhello\n\n## One\nbody")

	status, env := call(t, ts, "GET", "/api/entries/"+id, nil)
	if status != http.StatusOK {
		t.Fatalf("get: status %d", status)
	}
	data := env["data"].(map[string]any)
	if data["mode"] != "full" || data["version"].(float64) != 1 {
		t.Errorf("get data = %v", data)
	}

	status, env = call(t, ts, "PUT", "/api/entries/"+id, map[string]any{
		"version": 1,
		"content": "rewritten",
	})
	if status != http.StatusOK {
		t.Fatalf("update: status %d, env %v", status, env)
	}
	if v := env["data"].(map[string]any)["version"].(float64); v != 2 {
		t.Errorf("version after update = %v", v)
	}

	status, env = call(t, ts, "GET", "/api/entries/"+id+"/versions", nil)
	if status != http.StatusOK {
		t.Fatalf("versions: status %d", status)
	}
	if n := len(env["data"].([]any)); n != 2 {
		t.Errorf("version rows = %d, want 2", n)
	}

	status, env = call(t, ts, "GET", "/api/entries/"+id+"/versions/1", nil)
	if status != http.StatusOK {
		t.Fatalf("version content: status %d", status)
	}
	if got := env["data"].(map[string]any)["content"]; got != "# T\nhello\n\n## One\nbody" {
		t.Errorf("version 1 content = %q", got)
	}

	status, _ = call(t, ts, "DELETE", "/api/entries/"+id, nil)
	if status != http.StatusOK {
		t.Fatalf("delete: status %d", status)
	}
	status, _ = call(t, ts, "GET", "/api/entries/"+id, nil)
	if status != http.StatusNotFound {
		t.Errorf("get after delete: status %d, want 404", status)
	}
}

func TestVersionContentEndpoint(t *testing.T) {
	ts := newTestServer(t)
	id := createEntry(t, ts, "doc", "first draft")

	status, env := call(t, ts, "PUT", "/api/entries/"+id, map[string]any{
		"version": 1,
		"content": "second draft",
	})
	if status != http.StatusOK {
		t.Fatalf("update: status %d, env %v", status, env)
	}

	status, env = call(t, ts, "GET", "/api/entries/"+id+"/versions/2", nil)
	if status != http.StatusOK {
		t.Fatalf("version 2: status %d", status)
	}
	data := env["data"].(map[string]any)
	if data["content"] != "second draft" || data["version"].(float64) != 2 {
		t.Errorf("version 2 data = %v", data)
	}

	status, _ = call(t, ts, "GET", "/api/entries/"+id+"/versions/9", nil)
	if status != http.StatusNotFound {
		t.Errorf("missing version: status %d, want 404", status)
	}

	status, _ = call(t, ts, "GET", "/api/entries/"+id+"/versions/abc", nil)
	if status != http.StatusBadRequest {
		t.Errorf("non-numeric version: status %d, want 400", status)
	}

	status, _ = call(t, ts, "GET", "/api/entries/nope/versions/1", nil)
	if status != http.StatusNotFound {
		t.Errorf("missing entry: status %d, want 404", status)
	}
}

func TestUpdateRequiresVersion(t *testing.T) {
	ts := newTestServer(t)
	id := createEntry(t, ts, "doc", "body")

	status, env := call(t, ts, "PUT", "/api/entries/"+id, map[string]any{"title": "x"})
	if status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 (%v)", status, env)
	}
}

func TestVersionConflictStatus(t *testing.T) {
	ts := newTestServer(t)
	id := createEntry(t, ts, "doc", "body")

	status, _ := call(t, ts, "PUT", "/api/entries/"+id, map[string]any{
		"version": 1, "content": "v2",
	})
	if status != http.StatusOK {
		t.Fatalf("first update: status %d", status)
	}

	status, env := call(t, ts, "PUT", "/api/entries/"+id, map[string]any{
		"version": 1, "content": "stale",
	})
	if status != http.StatusConflict {
		t.Fatalf("stale update: status %d, want 409", status)
	}
	if msg := env["error"].(string); !strings.Contains(msg, "2") {
		t.Errorf("conflict message must mention current version: %q", msg)
	}
}

func TestPageAndSectionReads(t *testing.T) {
	ts := newTestServer(t)
	id := createEntry(t, ts, "doc", "intro\n\n## A\na body\n\n## B\nb body")

	status, env := call(t, ts, "GET", "/api/entries/"+id+"?offset=3&limit=2", nil)
	if status != http.StatusOK {
		t.Fatalf("page read: status %d", status)
	}
	data := env["data"].(map[string]any)
	if data["mode"] != "page" {
		t.Errorf("mode = %v", data["mode"])
	}
	if data["content"] != "3| ## A\n4| a body" {
		t.Errorf("content = %q", data["content"])
	}

	status, env = call(t, ts, "GET", "/api/entries/"+id+"/sections/2", nil)
	if status != http.StatusOK {
		t.Fatalf("section read: status %d", status)
	}
	if h := env["data"].(map[string]any)["heading"]; h != "B" {
		t.Errorf("heading = %v", h)
	}

	status, env = call(t, ts, "GET", "/api/entries/"+id+"/sections/9", nil)
	if status != http.StatusNotFound {
		t.Errorf("missing section: status %d, want 404", status)
	}
	if msg := env["error"].(string); !strings.Contains(msg, "9") {
		t.Errorf("error = %q", msg)
	}
}

func TestSectionUpdateAndReplace(t *testing.T) {
	ts := newTestServer(t)
	id := createEntry(t, ts, "doc", "## A\nold a\n## B\nold b")

	status, _ := call(t, ts, "PUT", "/api/entries/"+id+"/sections/0", map[string]any{
		"version": 1, "content": "## A\nnew a",
	})
	if status != http.StatusOK {
		t.Fatalf("section update: status %d", status)
	}

	status, env := call(t, ts, "POST", "/api/entries/"+id+"/replace", map[string]any{
		"version": 2, "old_text": "old b", "new_text": "new b",
	})
	if status != http.StatusOK {
		t.Fatalf("replace: status %d, env %v", status, env)
	}

	status, env = call(t, ts, "GET", "/api/entries/"+id, nil)
	if status != http.StatusOK {
		t.Fatalf("get: status %d", status)
	}
	if c := env["data"].(map[string]any)["content"]; c != "## A\nnew a\n## B\nnew b" {
		t.Errorf("content = %q", c)
	}
}

func TestAmbiguousReplaceStatus(t *testing.T) {
	ts := newTestServer(t)
	id := createEntry(t, ts, "doc", "dup text dup")

	status, env := call(t, ts, "POST", "/api/entries/"+id+"/replace", map[string]any{
		"version": 1, "old_text": "dup", "new_text": "x",
	})
	if status != http.StatusConflict {
		t.Fatalf("ambiguous replace: status %d, want 409", status)
	}
	if msg := env["error"].(string); !strings.Contains(msg, "2") {
		t.Errorf("error must report match count: %q", msg)
	}
}

func TestAppendEndpoint(t *testing.T) {
	ts := newTestServer(t)
	id := createEntry(t, ts, "doc", "first")

	status, env := call(t, ts, "POST", "/api/entries/"+id+"/append", map[string]any{
		"version": 1, "content": "second",
	})
	if status != http.StatusOK {
		t.Fatalf("append: status %d, env %v", status, env)
	}

	_, env = call(t, ts, "GET", "/api/entries/"+id, nil)
	if c := env["data"].(map[string]any)["content"]; c != "first\n\nsecond" {
		t.Errorf("content = %q", c)
	}
}

func TestListEntriesEndpoint(t *testing.T) {
	ts := newTestServer(t)
	createEntry(t, ts, "one", "a")
	createEntry(t, ts, "two", "b")

	status, env := call(t, ts, "GET", "/api/entries?sort_by=title&sort_order=asc", nil)
	if status != http.StatusOK {
		t.Fatalf("list: status %d", status)
	}
	data := env["data"].(map[string]any)
	if data["total"].(float64) != 2 {
		t.Errorf("total = %v", data["total"])
	}
	entries := data["entries"].([]any)
	if entries[0].(map[string]any)["title"] != "one" {
		t.Errorf("entries = %v", entries)
	}
}

func TestNotebookEndpoints(t *testing.T) {
	ts := newTestServer(t)

	status, env := call(t, ts, "POST", "/api/notebooks", map[string]any{"name": "work"})
	if status != http.StatusCreated {
		t.Fatalf("create notebook: status %d", status)
	}
	nbID := env["data"].(map[string]any)["id"].(string)

	status, env = call(t, ts, "GET", "/api/notebooks", nil)
	if status != http.StatusOK || len(env["data"].([]any)) != 2 {
		t.Fatalf("list notebooks: status %d, %v", status, env)
	}

	status, _ = call(t, ts, "DELETE", "/api/notebooks/"+nbID, nil)
	if status != http.StatusOK {
		t.Errorf("delete notebook: status %d", status)
	}
	status, _ = call(t, ts, "DELETE", fmt.Sprintf("/api/notebooks/%s", store.DefaultNotebookID), nil)
	if status != http.StatusConflict {
		t.Errorf("delete default notebook: status %d, want 409", status)
	}
}

func TestRelationEndpoints(t *testing.T) {
	ts := newTestServer(t)
	a := createEntry(t, ts, "a", "x")
	b := createEntry(t, ts, "b", "y")

	status, env := call(t, ts, "POST", "/api/entries/"+a+"/relations", map[string]any{"to_id": b})
	if status != http.StatusCreated {
		t.Fatalf("create relation: status %d, %v", status, env)
	}
	relID := env["data"].(map[string]any)["id"].(string)

	status, env = call(t, ts, "POST", "/api/entries/"+a+"/relations", map[string]any{"to_id": b})
	if status != http.StatusConflict {
		t.Errorf("duplicate relation: status %d, want 409", status)
	}

	status, env = call(t, ts, "GET", "/api/entries/"+b+"/relations", nil)
	if status != http.StatusOK || len(env["data"].([]any)) != 1 {
		t.Fatalf("list relations: status %d, %v", status, env)
	}

	status, _ = call(t, ts, "DELETE", "/api/entries/"+a+"/relations/"+relID, nil)
	if status != http.StatusOK {
		t.Errorf("delete relation: status %d", status)
	}
}

func TestStatsAndLogs(t *testing.T) {
	ts := newTestServer(t)
	id := createEntry(t, ts, "doc", "some words here")

	// Agent-sourced mutation shows up in the log feed.
	status, _ := call(t, ts, "PUT", "/api/entries/"+id, map[string]any{
		"version": 1, "content": "fewer", "source": "agent",
	})
	if status != http.StatusOK {
		t.Fatalf("agent update: status %d", status)
	}

	status, env := call(t, ts, "GET", "/api/logs", nil)
	if status != http.StatusOK {
		t.Fatalf("logs: status %d", status)
	}
	data := env["data"].(map[string]any)
	if data["total"].(float64) != 1 {
		t.Errorf("log total = %v", data["total"])
	}

	status, env = call(t, ts, "GET", "/api/stats", nil)
	if status != http.StatusOK {
		t.Fatalf("stats: status %d", status)
	}
	if c := env["data"].(map[string]any)["entryCount"].(float64); c != 1 {
		t.Errorf("entryCount = %v", c)
	}
}
