package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

const resourceViewConfig = "mergeview://view/config"

func (s *Server) registerResources() {
	// ── mergeview://view/config ────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		resourceViewConfig,
		"Merged View Configuration",
		mcp.WithMIMEType("application/json"),
	), s.handleViewConfigResource)
}

func (s *Server) handleViewConfigResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	cfg := s.views.Config()

	// Connection details are left out on purpose; they may carry credentials.
	summary := struct {
		ViewName         string   `json:"viewName"`
		Strategy         string   `json:"strategy"`
		Fields           []string `json:"fields,omitempty"`
		ProbeConcurrency int      `json:"probeConcurrency"`
		Anchor           string   `json:"anchor,omitempty"`
		Collections      []string `json:"collections,omitempty"`
		Exclude          []string `json:"exclude,omitempty"`
		Cron             string   `json:"cron,omitempty"`
	}{
		ViewName:         cfg.View.Name,
		Strategy:         cfg.View.Strategy,
		Fields:           cfg.View.Fields,
		ProbeConcurrency: cfg.View.ProbeConcurrency,
		Anchor:           cfg.Sources.Anchor,
		Collections:      cfg.Sources.Collections,
		Exclude:          cfg.Sources.Exclude,
		Cron:             cfg.Schedule.Cron,
	}

	data, _ := json.MarshalIndent(summary, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      resourceViewConfig,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
