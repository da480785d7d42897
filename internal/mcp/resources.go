package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/contest/internal/report"
	"github.com/hurttlocker/contest/internal/store"
)

// LatestRunURI names the latest-run resource.
const LatestRunURI = "contest://runs/latest"

func registerLatestRunResource(s *server.MCPServer, st store.Store) {
	resource := mcp.NewResource(
		LatestRunURI,
		"Latest Run",
		mcp.WithResourceDescription("Metadata and per-question summary of the most recent pipeline run."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		run, err := st.LatestRun(ctx)
		if err != nil {
			return nil, fmt.Errorf("getting latest run: %w", err)
		}

		payload := map[string]interface{}{"available": false}
		if run != nil {
			t, err := st.LoadTable(ctx, run.ID)
			if err != nil {
				return nil, fmt.Errorf("loading run %s: %w", run.ID, err)
			}
			summary := report.Build(t, run.Surgery, nil)
			summary.Diagnostics = run.Diagnostics
			payload = map[string]interface{}{
				"available": true,
				"run":       viewOf(run),
				"summary":   summary,
			}
		}

		data, _ := json.MarshalIndent(payload, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}
