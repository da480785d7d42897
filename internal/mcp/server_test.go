package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/contest/internal/canon"
	"github.com/hurttlocker/contest/internal/entry"
	"github.com/hurttlocker/contest/internal/report"
	"github.com/hurttlocker/contest/internal/store"
)

// helper: create a test store with one stored run
func setupTestStore(t *testing.T) (store.Store, *store.Run) {
	t.Helper()
	s, err := store.NewStore(store.StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	a := entry.NewRecord(45, "jen")
	a.Slots[0] = entry.Str("tbl")
	a.Slots[1] = entry.Str("col")
	b := entry.NewRecord(849, "mike m")
	b.Slots[0] = entry.Str("tbl")
	b.Slots[15] = entry.Str("d armstrong")
	table := entry.NewTable([]entry.Record{a, b}).WithDeleted(1282)

	diags := []entry.Diagnostic{
		{Kind: entry.KindMalformedLine, Record: 45, Author: "jen", Line: 1, Value: "good luck all"},
		{Kind: entry.KindAmbiguousEntity, Record: 849, Author: "mike m", Category: 4, Slot: "q4a1",
			Value: "armstrong", Resolution: "d armstrong", Alternatives: []string{"b armstrong"}},
		{Kind: entry.KindUnresolvedAlias, Record: 849, Author: "mike m", Category: 1, Slot: "q1a2", Value: "frogs"},
	}

	run := &store.Run{
		Inputs:  []string{"thread.html"},
		Aliases: "built-in aliases",
		Surgery: report.Surgery{Applied: map[string]int{"delete": 1}, Minor: 1},
	}
	if err := s.SaveRun(context.Background(), run, table, diags); err != nil {
		t.Fatalf("saving test run: %v", err)
	}
	return s, run
}

func testCanon(t *testing.T) *canon.Canonicalizer {
	t.Helper()
	cz, err := canon.New(canon.Config{
		Tables: map[string]canon.AliasTable{
			"cities": {"tampa bay": "tbl", "new york": "nyr"},
			"teams":  {"bolts": "tbl"},
		},
		Categories: map[entry.Category]canon.CategoryConfig{
			1: {Tables: []string{"cities", "teams"}},
		},
	})
	if err != nil {
		t.Fatalf("building canonicalizer: %v", err)
	}
	return cz
}

func newTestServer(t *testing.T) (*server.MCPServer, *store.Run) {
	t.Helper()
	s, run := setupTestStore(t)
	return NewServer(ServerConfig{Store: s, Canon: testCanon(t)}), run
}

func TestNewServer(t *testing.T) {
	s, _ := setupTestStore(t)
	srv := NewServer(ServerConfig{Store: s})
	if srv == nil {
		t.Fatal("NewServer returned nil")
	}
}

// callTool is a helper that invokes an MCP tool through the JSON-RPC entry point.
func callTool(t *testing.T, srv *server.MCPServer, name string, args map[string]interface{}) *mcplib.CallToolResult {
	t.Helper()

	result := srv.HandleMessage(context.Background(), mustMarshal(t, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]interface{}{
			"name":      name,
			"arguments": args,
		},
	}))

	respBytes, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}

	var resp struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, string(respBytes))
	}

	if resp.Error != nil {
		t.Fatalf("JSON-RPC error: %d %s", resp.Error.Code, resp.Error.Message)
	}

	callResult := &mcplib.CallToolResult{
		IsError: resp.Result.IsError,
	}
	for _, c := range resp.Result.Content {
		if c.Type == "text" {
			callResult.Content = append(callResult.Content, mcplib.NewTextContent(c.Text))
		}
	}

	return callResult
}

func mustMarshal(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func getTextContent(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no text content found")
	return ""
}

func TestEntryTool(t *testing.T) {
	srv, run := newTestServer(t)

	result := callTool(t, srv, "contest_entry", map[string]interface{}{
		"index": float64(849),
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", getTextContent(t, result))
	}

	var got struct {
		RunID   string             `json:"run_id"`
		Index   int                `json:"index"`
		Author  string             `json:"author"`
		Answers map[string]*string `json:"answers"`
		Nulls   int                `json:"nulls"`
	}
	if err := json.Unmarshal([]byte(getTextContent(t, result)), &got); err != nil {
		t.Fatalf("parsing entry: %v", err)
	}
	if got.RunID != run.ID || got.Author != "mike m" {
		t.Fatalf("unexpected entry header: %+v", got)
	}
	if len(got.Answers) != entry.SlotCount {
		t.Fatalf("expected %d answers, got %d", entry.SlotCount, len(got.Answers))
	}
	if v := got.Answers["q4a1"]; v == nil || *v != "d armstrong" {
		t.Fatalf("q4a1 = %v", v)
	}
	if got.Answers["q1a2"] != nil {
		t.Fatalf("expected q1a2 null, got %q", *got.Answers["q1a2"])
	}
	if got.Nulls != entry.SlotCount-2 {
		t.Fatalf("nulls = %d", got.Nulls)
	}
}

func TestEntryTool_DeletedAndMissing(t *testing.T) {
	srv, _ := newTestServer(t)

	deleted := callTool(t, srv, "contest_entry", map[string]interface{}{"index": float64(1282)})
	if deleted.IsError {
		t.Fatalf("deleted entry should not be an error: %s", getTextContent(t, deleted))
	}
	if !strings.Contains(getTextContent(t, deleted), "deleted") {
		t.Fatalf("expected deleted notice, got %q", getTextContent(t, deleted))
	}

	missing := callTool(t, srv, "contest_entry", map[string]interface{}{"index": float64(7)})
	if !missing.IsError {
		t.Fatal("expected error for unknown index")
	}

	noIndex := callTool(t, srv, "contest_entry", map[string]interface{}{})
	if !noIndex.IsError {
		t.Fatal("expected error without index")
	}

	badRun := callTool(t, srv, "contest_entry", map[string]interface{}{"index": float64(45), "run_id": "nope"})
	if !badRun.IsError {
		t.Fatal("expected error for unknown run")
	}
}

func TestCountsTool(t *testing.T) {
	srv, _ := newTestServer(t)

	result := callTool(t, srv, "contest_counts", map[string]interface{}{
		"category": float64(1),
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", getTextContent(t, result))
	}

	var got struct {
		Category    int            `json:"category"`
		Possible    int            `json:"possible"`
		Received    int            `json:"received"`
		Frequencies []report.Count `json:"frequencies"`
	}
	if err := json.Unmarshal([]byte(getTextContent(t, result)), &got); err != nil {
		t.Fatalf("parsing counts: %v", err)
	}
	if got.Possible != 10 || got.Received != 3 {
		t.Fatalf("possible/received = %d/%d, want 10/3", got.Possible, got.Received)
	}
	if len(got.Frequencies) != 2 || got.Frequencies[0] != (report.Count{Value: "tbl", Count: 2}) {
		t.Fatalf("unexpected frequencies: %+v", got.Frequencies)
	}

	limited := callTool(t, srv, "contest_counts", map[string]interface{}{
		"category": float64(1),
		"limit":    float64(1),
	})
	if err := json.Unmarshal([]byte(getTextContent(t, limited)), &got); err != nil {
		t.Fatalf("parsing counts: %v", err)
	}
	if len(got.Frequencies) != 1 || got.Received != 3 {
		t.Fatalf("limit should trim the list but not the total: %+v", got)
	}

	bad := callTool(t, srv, "contest_counts", map[string]interface{}{"category": float64(11)})
	if !bad.IsError {
		t.Fatal("expected error for category 11")
	}
}

func TestDiagnosticsTool(t *testing.T) {
	srv, _ := newTestServer(t)

	var got struct {
		Diagnostics []entry.Diagnostic `json:"diagnostics"`
		Count       int                `json:"count"`
		Totals      map[string]int     `json:"totals"`
	}

	all := callTool(t, srv, "contest_diagnostics", map[string]interface{}{})
	if err := json.Unmarshal([]byte(getTextContent(t, all)), &got); err != nil {
		t.Fatalf("parsing diagnostics: %v", err)
	}
	if got.Count != 3 || got.Totals["AmbiguousEntity"] != 1 {
		t.Fatalf("unexpected diagnostics: %+v", got)
	}

	amb := callTool(t, srv, "contest_diagnostics", map[string]interface{}{"kind": "AmbiguousEntity"})
	if err := json.Unmarshal([]byte(getTextContent(t, amb)), &got); err != nil {
		t.Fatalf("parsing diagnostics: %v", err)
	}
	if got.Count != 1 || got.Diagnostics[0].Resolution != "d armstrong" || got.Diagnostics[0].Alternatives[0] != "b armstrong" {
		t.Fatalf("ambiguity not surfaced: %+v", got.Diagnostics)
	}

	byIndex := callTool(t, srv, "contest_diagnostics", map[string]interface{}{"index": float64(849), "category": float64(1)})
	if err := json.Unmarshal([]byte(getTextContent(t, byIndex)), &got); err != nil {
		t.Fatalf("parsing diagnostics: %v", err)
	}
	if got.Count != 1 || got.Diagnostics[0].Value != "frogs" {
		t.Fatalf("index+category filter: %+v", got.Diagnostics)
	}
}

func TestCanonicalizeTool(t *testing.T) {
	srv, _ := newTestServer(t)

	result := callTool(t, srv, "contest_canonicalize", map[string]interface{}{
		"category": float64(1),
		"value":    "  Tampa Bay ",
	})
	var got canon.Resolution
	if err := json.Unmarshal([]byte(getTextContent(t, result)), &got); err != nil {
		t.Fatalf("parsing resolution: %v", err)
	}
	if got.Value != "tbl" || got.Outcome != canon.OutcomeAlias || got.Table != "cities" {
		t.Fatalf("unexpected resolution: %+v", got)
	}

	unknown := callTool(t, srv, "contest_canonicalize", map[string]interface{}{
		"category": float64(1),
		"value":    "frogs",
	})
	if err := json.Unmarshal([]byte(getTextContent(t, unknown)), &got); err != nil {
		t.Fatalf("parsing resolution: %v", err)
	}
	if got.Outcome != canon.OutcomeUnresolved || got.Value != "frogs" {
		t.Fatalf("expected pass-through, got %+v", got)
	}
}

func TestCanonicalizeTool_NotRegisteredWithoutCanon(t *testing.T) {
	s, _ := setupTestStore(t)
	srv := NewServer(ServerConfig{Store: s})

	resp := srv.HandleMessage(context.Background(), mustMarshal(t, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/list",
	}))
	data, _ := json.Marshal(resp)
	if strings.Contains(string(data), "contest_canonicalize") {
		t.Fatal("contest_canonicalize should not be listed without alias data")
	}
	if !strings.Contains(string(data), "contest_entry") {
		t.Fatalf("expected contest_entry in tool list: %s", data)
	}
}

func TestRunsTool(t *testing.T) {
	srv, run := newTestServer(t)

	result := callTool(t, srv, "contest_runs", map[string]interface{}{})
	var runs []runView
	if err := json.Unmarshal([]byte(getTextContent(t, result)), &runs); err != nil {
		t.Fatalf("parsing runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != run.ID || runs[0].Entries != 2 || runs[0].Deleted != 1 {
		t.Fatalf("unexpected runs: %+v", runs)
	}
}

func TestNoRuns(t *testing.T) {
	s, err := store.NewStore(store.StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	defer s.Close()
	srv := NewServer(ServerConfig{Store: s})

	result := callTool(t, srv, "contest_counts", map[string]interface{}{"category": float64(1)})
	if !result.IsError || !strings.Contains(getTextContent(t, result), "no runs") {
		t.Fatalf("expected a no-runs error, got %+v", result)
	}
}

func readResource(t *testing.T, srv *server.MCPServer, uri string) string {
	t.Helper()
	resp := srv.HandleMessage(context.Background(), mustMarshal(t, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      2,
		"method":  "resources/read",
		"params":  map[string]interface{}{"uri": uri},
	}))
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	var parsed struct {
		Result struct {
			Contents []struct {
				URI  string `json:"uri"`
				Text string `json:"text"`
			} `json:"contents"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if parsed.Error != nil {
		t.Fatalf("resource error: %s", parsed.Error.Message)
	}
	if len(parsed.Result.Contents) != 1 {
		t.Fatalf("expected one content block, got %s", data)
	}
	return parsed.Result.Contents[0].Text
}

func TestLatestRunResource(t *testing.T) {
	srv, run := newTestServer(t)

	var got struct {
		Available bool           `json:"available"`
		Run       runView        `json:"run"`
		Summary   report.Summary `json:"summary"`
	}
	if err := json.Unmarshal([]byte(readResource(t, srv, LatestRunURI)), &got); err != nil {
		t.Fatalf("parsing resource: %v", err)
	}
	if !got.Available || got.Run.ID != run.ID {
		t.Fatalf("unexpected run: %+v", got.Run)
	}
	if got.Summary.Entries != 2 || got.Summary.Deleted != 1 || got.Summary.Answered != 4 {
		t.Fatalf("unexpected summary: %+v", got.Summary)
	}
	if len(got.Summary.Categories) != entry.CategoryCount {
		t.Fatalf("expected %d categories, got %d", entry.CategoryCount, len(got.Summary.Categories))
	}
	if got.Summary.Surgery.Minor != 1 {
		t.Fatalf("surgery lost: %+v", got.Summary.Surgery)
	}
}

func TestLatestRunResource_Empty(t *testing.T) {
	s, err := store.NewStore(store.StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	defer s.Close()
	srv := NewServer(ServerConfig{Store: s})

	text := readResource(t, srv, LatestRunURI)
	if !strings.Contains(text, `"available": false`) {
		t.Fatalf("expected unavailable payload, got %s", text)
	}
}
