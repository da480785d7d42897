// Package mcp provides a Model Context Protocol server over stored contest runs.
//
// It exposes single entries, per-question counts, diagnostics and alias
// lookups as MCP tools, and the latest run summary as an MCP resource.
// Served over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/hurttlocker/contest/internal/canon"
	"github.com/hurttlocker/contest/internal/entry"
	"github.com/hurttlocker/contest/internal/report"
	"github.com/hurttlocker/contest/internal/store"
)

const (
	defaultDiagnosticLimit = 50
	maxDiagnosticLimit     = 500
	defaultRunLimit        = 10
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Store   store.Store
	Canon   *canon.Canonicalizer // optional, enables contest_canonicalize
	Version string               // version string for MCP server info
	Logger  *zap.Logger
}

// dbMu serializes tool calls that touch the database. mcp-go dispatches
// handlers concurrently and a :memory: store has a single connection.
var dbMu sync.Mutex

// NewServer creates a configured MCP server with all contest tools and resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"contest",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	registerEntryTool(s, cfg.Store)
	registerCountsTool(s, cfg.Store)
	registerDiagnosticsTool(s, cfg.Store)
	registerRunsTool(s, cfg.Store)
	if cfg.Canon != nil {
		registerCanonicalizeTool(s, cfg.Canon)
	}

	registerLatestRunResource(s, cfg.Store)

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("mcp server configured",
		zap.String("version", ver),
		zap.Bool("canonicalize", cfg.Canon != nil),
	)

	return s
}

// ServeStdio serves s on the given streams until ctx is done or stdin closes.
func ServeStdio(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(zap.NewStdLog(logger))
	logger.Info("mcp server listening on stdio")
	err := stdio.Listen(ctx, in, out)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("serving mcp: %w", err)
	}
	return nil
}

// --- Tools ---

func registerEntryTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("contest_entry",
		mcp.WithDescription("Fetch one contest entry by its record index: author and all 46 answer slots (null for unanswered). Reports when the entry was deleted by an override."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithNumber("index",
			mcp.Required(),
			mcp.Description("Record index of the entry"),
		),
		mcp.WithString("run_id",
			mcp.Description("Run to read from. Empty = latest run."),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		idxVal, err := req.RequireFloat("index")
		if err != nil {
			return mcp.NewToolResultError("index is required"), nil
		}
		index := int(idxVal)

		run, errResult := resolveRun(ctx, st, req)
		if errResult != nil {
			return errResult, nil
		}

		rec, err := st.GetRecord(ctx, run.ID, index)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("get entry error: %v", err)), nil
		}
		if rec == nil {
			t, err := st.LoadTable(ctx, run.ID)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("get entry error: %v", err)), nil
			}
			if t.IsDeleted(index) {
				return mcp.NewToolResultText(fmt.Sprintf("Entry %d was deleted by an override in run %s", index, run.ID)), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("entry %d not found in run %s", index, run.ID)), nil
		}

		answers := make(map[string]*string, entry.SlotCount)
		for pos, v := range rec.Slots {
			if sv, ok := v.Get(); ok {
				answers[entry.SlotName(pos)] = &sv
			} else {
				answers[entry.SlotName(pos)] = nil
			}
		}
		payload := map[string]interface{}{
			"run_id":  run.ID,
			"index":   rec.Index,
			"author":  rec.Author,
			"answers": answers,
			"nulls":   rec.NullCount(),
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerCountsTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("contest_counts",
		mcp.WithDescription("Answer frequencies for one question (1-10) of a stored run, most popular first."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithNumber("category",
			mcp.Required(),
			mcp.Description("Question number, 1-10 (10 is the bonus question)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of values (default: all)"),
		),
		mcp.WithString("run_id",
			mcp.Description("Run to read from. Empty = latest run."),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		c, errResult := requireCategory(req)
		if errResult != nil {
			return errResult, nil
		}
		run, errResult := resolveRun(ctx, st, req)
		if errResult != nil {
			return errResult, nil
		}

		counts, err := st.CategoryCounts(ctx, run.ID, c)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("counts error: %v", err)), nil
		}
		received := 0
		for _, rc := range counts {
			received += rc.Count
		}
		if limitVal, err := req.RequireFloat("limit"); err == nil && int(limitVal) > 0 && int(limitVal) < len(counts) {
			counts = counts[:int(limitVal)]
		}

		payload := map[string]interface{}{
			"run_id":      run.ID,
			"category":    int(c),
			"title":       c.Title(),
			"possible":    run.Entries * c.Width(),
			"received":    received,
			"frequencies": counts,
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerDiagnosticsTool(s *server.MCPServer, st store.Store) {
	kinds := make([]string, 0, len(entry.Kinds()))
	for _, k := range entry.Kinds() {
		kinds = append(kinds, string(k))
	}

	tool := mcp.NewTool("contest_diagnostics",
		mcp.WithDescription("Diagnostics recorded for a stored run: malformed lines, overflowing answers, unresolved aliases and ambiguity resolutions. Filter by kind, question or entry."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("kind",
			mcp.Description("Diagnostic kind to return. Empty = all kinds."),
			mcp.Enum(kinds...),
		),
		mcp.WithNumber("category",
			mcp.Description("Only diagnostics for this question (1-10)"),
		),
		mcp.WithNumber("index",
			mcp.Description("Only diagnostics for this record index"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of diagnostics (default: 50, max: 500)"),
		),
		mcp.WithString("run_id",
			mcp.Description("Run to read from. Empty = latest run."),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		f := store.DiagnosticFilter{Limit: defaultDiagnosticLimit}
		if kind, err := req.RequireString("kind"); err == nil && kind != "" {
			f.Kind = entry.Kind(kind)
		}
		if catVal, err := req.RequireFloat("category"); err == nil {
			c := entry.Category(int(catVal))
			if !c.Valid() {
				return mcp.NewToolResultError(fmt.Sprintf("category must be 1-%d", entry.CategoryCount)), nil
			}
			f.Category = c
		}
		if idxVal, err := req.RequireFloat("index"); err == nil {
			idx := int(idxVal)
			f.Record = &idx
		}
		if limitVal, err := req.RequireFloat("limit"); err == nil {
			limit := int(limitVal)
			if limit > maxDiagnosticLimit {
				limit = maxDiagnosticLimit
			}
			if limit > 0 {
				f.Limit = limit
			}
		}

		run, errResult := resolveRun(ctx, st, req)
		if errResult != nil {
			return errResult, nil
		}

		diags, err := st.Diagnostics(ctx, run.ID, f)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("diagnostics error: %v", err)), nil
		}
		if diags == nil {
			diags = []entry.Diagnostic{}
		}

		payload := map[string]interface{}{
			"run_id":      run.ID,
			"diagnostics": diags,
			"count":       len(diags),
			"totals":      run.Diagnostics,
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerCanonicalizeTool(s *server.MCPServer, cz *canon.Canonicalizer) {
	tool := mcp.NewTool("contest_canonicalize",
		mcp.WithDescription("Resolve a free-text answer against the alias data for one question. Shows the canonical key, how it was reached and any ambiguity."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithNumber("category",
			mcp.Required(),
			mcp.Description("Question number, 1-10"),
		),
		mcp.WithString("value",
			mcp.Required(),
			mcp.Description("Answer as written, e.g. 'tampa bay'"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		c, errResult := requireCategory(req)
		if errResult != nil {
			return errResult, nil
		}
		value, err := req.RequireString("value")
		if err != nil {
			return mcp.NewToolResultError("value is required"), nil
		}

		data, _ := json.MarshalIndent(cz.Resolve(c, value), "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerRunsTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("contest_runs",
		mcp.WithDescription("List stored pipeline runs, newest first."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of runs (default: 10)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		limit := defaultRunLimit
		if limitVal, err := req.RequireFloat("limit"); err == nil && int(limitVal) > 0 {
			limit = int(limitVal)
		}
		runs, err := st.ListRuns(ctx, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list runs error: %v", err)), nil
		}
		views := make([]runView, 0, len(runs))
		for _, r := range runs {
			views = append(views, viewOf(r))
		}
		data, _ := json.MarshalIndent(views, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

// --- Helpers ---

type runView struct {
	ID          string             `json:"id"`
	CreatedAt   string             `json:"created_at"`
	Inputs      []string           `json:"inputs"`
	Aliases     string             `json:"aliases,omitempty"`
	Overrides   string             `json:"overrides,omitempty"`
	Entries     int                `json:"entries"`
	Deleted     int                `json:"deleted"`
	Surgery     report.Surgery     `json:"surgery"`
	Diagnostics map[entry.Kind]int `json:"diagnostics"`
	DurationMS  int64              `json:"duration_ms"`
}

func viewOf(r *store.Run) runView {
	return runView{
		ID:          r.ID,
		CreatedAt:   r.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		Inputs:      r.Inputs,
		Aliases:     r.Aliases,
		Overrides:   r.Overrides,
		Entries:     r.Entries,
		Deleted:     r.Deleted,
		Surgery:     r.Surgery,
		Diagnostics: r.Diagnostics,
		DurationMS:  r.Duration.Milliseconds(),
	}
}

// resolveRun picks the run named by run_id, or the latest one.
func resolveRun(ctx context.Context, st store.Store, req mcp.CallToolRequest) (*store.Run, *mcp.CallToolResult) {
	if id, err := req.RequireString("run_id"); err == nil && id != "" {
		run, err := st.GetRun(ctx, id)
		if err != nil {
			return nil, mcp.NewToolResultError(fmt.Sprintf("run error: %v", err))
		}
		return run, nil
	}
	run, err := st.LatestRun(ctx)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("run error: %v", err))
	}
	if run == nil {
		return nil, mcp.NewToolResultError("no runs stored yet; run `contest run` first")
	}
	return run, nil
}

func requireCategory(req mcp.CallToolRequest) (entry.Category, *mcp.CallToolResult) {
	catVal, err := req.RequireFloat("category")
	if err != nil {
		return 0, mcp.NewToolResultError("category is required")
	}
	c := entry.Category(int(catVal))
	if !c.Valid() {
		return 0, mcp.NewToolResultError(fmt.Sprintf("category must be 1-%d", entry.CategoryCount))
	}
	return c, nil
}
