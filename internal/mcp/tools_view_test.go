package mcpserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/Reugito/Create-View-in-Mongo-DB/internal/config"
	"github.com/Reugito/Create-View-in-Mongo-DB/internal/memstore"
	"github.com/Reugito/Create-View-in-Mongo-DB/internal/service"
)

func newTestServer(t *testing.T) (*Server, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	store.Insert("A", bson.D{{Key: "x", Value: 1}, {Key: "y", Value: 2}})
	store.Insert("B", bson.D{{Key: "x", Value: 3}, {Key: "y", Value: 4}, {Key: "z", Value: 5}})

	cfg := config.Default()
	cfg.View.Name = "merged"
	cfg.Lock.Path = filepath.Join(t.TempDir(), "rebuild.lock")

	svc := service.NewViewService(store, nil, cfg, service.NoopEmitter{})
	return New(svc, "test"), store
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("expected a non-empty result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return text.Text
}

func TestListSourceCollections(t *testing.T) {
	s, _ := newTestServer(t)

	res, err := s.handleListSourceCollections(context.Background(), callRequest(nil))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	if err := json.Unmarshal([]byte(resultText(t, res)), &names); err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "A" || names[1] != "B" {
		t.Errorf("expected [A B], got %v", names)
	}
}

func TestPlanView_IncludesPipeline(t *testing.T) {
	s, store := newTestServer(t)

	res, err := s.handlePlanView(context.Background(), callRequest(nil))
	if err != nil {
		t.Fatal(err)
	}
	var sum planSummary
	if err := json.Unmarshal([]byte(resultText(t, res)), &sum); err != nil {
		t.Fatal(err)
	}
	if sum.ViewName != "merged" || sum.Anchor != "A" || sum.StageCount != 3 {
		t.Errorf("unexpected plan %+v", sum)
	}
	if !strings.Contains(string(sum.Pipeline), "$concatArrays") {
		t.Errorf("expected pipeline to be rendered, got %s", sum.Pipeline)
	}
	if store.HasView("merged") {
		t.Error("plan_view must not create the view")
	}
}

func TestRebuildThenReadView(t *testing.T) {
	s, store := newTestServer(t)
	ctx := context.Background()

	res, err := s.handleRebuildView(ctx, callRequest(map[string]any{"viewName": "blocks"}))
	if err != nil {
		t.Fatal(err)
	}
	var sum planSummary
	if err := json.Unmarshal([]byte(resultText(t, res)), &sum); err != nil {
		t.Fatal(err)
	}
	if sum.ViewName != "blocks" || len(sum.Pipeline) != 0 {
		t.Errorf("unexpected rebuild summary %+v", sum)
	}
	if !store.HasView("blocks") {
		t.Fatal("expected view blocks to exist")
	}

	res, err = s.handleReadView(ctx, callRequest(map[string]any{"viewName": "blocks", "limit": float64(1)}))
	if err != nil {
		t.Fatal(err)
	}
	var records []map[string]any
	if err := json.Unmarshal([]byte(resultText(t, res)), &records); err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0]["x"] != float64(1) {
		t.Errorf("expected first merged record {x:1,y:2}, got %v", records)
	}
}

func TestListRebuildRuns_NoHistory(t *testing.T) {
	s, _ := newTestServer(t)
	if _, err := s.handleListRebuildRuns(context.Background(), callRequest(nil)); err == nil {
		t.Error("expected error without a run history")
	}
}

func TestViewConfigResource_OmitsConnection(t *testing.T) {
	s, _ := newTestServer(t)

	contents, err := s.handleViewConfigResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	text, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected text contents, got %T", contents[0])
	}
	if !strings.Contains(text.Text, `"viewName": "merged"`) {
		t.Errorf("expected view name in %s", text.Text)
	}
	if strings.Contains(text.Text, "mongodb://") {
		t.Error("resource must not expose the connection string")
	}
}

func TestIntArg(t *testing.T) {
	args := map[string]any{"f": float64(7), "i": 3, "n": json.Number("12"), "s": "x"}
	for key, want := range map[string]int{"f": 7, "i": 3, "n": 12, "s": 5, "missing": 5} {
		if got := intArg(args, key, 5); got != want {
			t.Errorf("intArg(%q): expected %d, got %d", key, want, got)
		}
	}
}
