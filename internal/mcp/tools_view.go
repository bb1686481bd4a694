package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Reugito/Create-View-in-Mongo-DB/internal/viewbuild"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerViewTools() {
	s.mcp.AddTool(mcp.NewTool("list_source_collections",
		mcp.WithDescription("List the collections in the database that can be merged into a view (reserved names excluded)"),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleListSourceCollections)

	s.mcp.AddTool(mcp.NewTool("plan_view",
		mcp.WithDescription("Resolve common fields and show the aggregation pipeline a rebuild would create, without changing anything"),
		mcp.WithString("viewName", mcp.Description("View name (optional, defaults to the configured view)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handlePlanView)

	s.mcp.AddTool(mcp.NewTool("rebuild_view",
		mcp.WithDescription("🛑 DESTRUCTIVE: Drop and recreate the merged view from the current source collections. The view is briefly absent during the replace."),
		mcp.WithString("viewName", mcp.Description("View name (optional, defaults to the configured view)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleRebuildView)

	s.mcp.AddTool(mcp.NewTool("read_view",
		mcp.WithDescription("Read the merged records from the view's data array"),
		mcp.WithString("viewName", mcp.Description("View name (optional, defaults to the configured view)")),
		mcp.WithNumber("limit", mcp.Description("Maximum records to return (default 20)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleReadView)

	s.mcp.AddTool(mcp.NewTool("list_rebuild_runs",
		mcp.WithDescription("List recent rebuild runs for a view, newest first"),
		mcp.WithString("viewName", mcp.Description("View name (optional, defaults to the configured view)")),
		mcp.WithNumber("limit", mcp.Description("Maximum runs to return (default 20)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleListRebuildRuns)
}

// planSummary is the JSON shape of a plan or rebuild report.
type planSummary struct {
	ViewName   string          `json:"viewName"`
	Anchor     string          `json:"anchor"`
	Sources    []string        `json:"sources"`
	Fields     []string        `json:"fields"`
	Strategy   string          `json:"strategy"`
	Dropped    bool            `json:"dropped"`
	StageCount int             `json:"stageCount"`
	Pipeline   json.RawMessage `json:"pipeline,omitempty"`
}

func summarize(r *viewbuild.Report, withPipeline bool) (*planSummary, error) {
	sum := &planSummary{
		ViewName:   r.View.Name,
		Anchor:     r.View.ViewOn,
		Sources:    r.Sources,
		Fields:     r.Fields,
		Strategy:   r.Strategy,
		Dropped:    r.Dropped,
		StageCount: len(r.View.Pipeline),
	}
	if withPipeline {
		raw, err := viewbuild.MarshalPipeline(viewbuild.Encode(r.View.Pipeline))
		if err != nil {
			return nil, err
		}
		sum.Pipeline = raw
	}
	return sum, nil
}

func (s *Server) handleListSourceCollections(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names, err := s.views.Collections(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResult(names)
}

func (s *Server) handlePlanView(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.views.Plan(ctx, viewArg(req.GetArguments()))
	if err != nil {
		return nil, fmt.Errorf("plan view: %w", err)
	}
	sum, err := summarize(report, true)
	if err != nil {
		return nil, err
	}
	return jsonResult(sum)
}

func (s *Server) handleRebuildView(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.views.Rebuild(ctx, viewArg(req.GetArguments()))
	if err != nil {
		return nil, fmt.Errorf("rebuild view: %w", err)
	}
	sum, err := summarize(report, false)
	if err != nil {
		return nil, err
	}
	return jsonResult(sum)
}

func (s *Server) handleReadView(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	records, err := s.views.Read(ctx, viewArg(args), intArg(args, "limit", 20))
	if err != nil {
		return nil, err
	}
	data, err := viewbuild.MarshalRecords(records)
	if err != nil {
		return nil, err
	}
	return textResult(string(data)), nil
}

func (s *Server) handleListRebuildRuns(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	runs, err := s.views.Runs(viewArg(args), intArg(args, "limit", 20))
	if err != nil {
		return nil, err
	}
	return jsonResult(runs)
}
