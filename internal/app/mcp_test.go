package app_test

import (
	"context"
	"encoding/json"
	"slices"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/voxcap/internal/app"
)

func connectMCP(t *testing.T, f *fixture) *mcpsdk.ClientSession {
	t.Helper()
	ctx := context.Background()
	server := app.NewMCPServer(f.listener, "test")
	clientT, serverT := mcpsdk.NewInMemoryTransports()
	ss, err := server.Connect(ctx, serverT, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { _ = ss.Close() })

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

// decodeStructured re-decodes a tool's structured content into out.
func decodeStructured(t *testing.T, res *mcpsdk.CallToolResult, out any) {
	t.Helper()
	raw, err := json.Marshal(res.StructuredContent)
	if err != nil {
		t.Fatalf("marshal structured content: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("unmarshal structured content %s: %v", raw, err)
	}
}

func TestMCP_ListsTools(t *testing.T) {
	t.Parallel()
	cs := connectMCP(t, newFixture(t, speechTrace, nil))

	var names []string
	for tool, err := range cs.Tools(context.Background(), nil) {
		if err != nil {
			t.Fatalf("list tools: %v", err)
		}
		names = append(names, tool.Name)
	}
	slices.Sort(names)
	if want := []string{app.ToolListen, app.ToolRecentClips}; !slices.Equal(names, want) {
		t.Errorf("tools = %v, want %v", names, want)
	}
}

func TestMCP_ListenThenRecentClips(t *testing.T) {
	t.Parallel()
	f := newFixture(t, speechTrace, nil)
	cs := connectMCP(t, f)
	ctx := context.Background()

	res, err := cs.CallTool(ctx, &mcpsdk.CallToolParams{Name: app.ToolListen, Arguments: map[string]any{}})
	if err != nil {
		t.Fatalf("call listen: %v", err)
	}
	if res.IsError {
		t.Fatalf("listen returned a tool error: %+v", res.Content)
	}
	var got app.Result
	decodeStructured(t, res, &got)
	if got.SessionID != "sess-1" || got.Transcript != "turn on the lights" {
		t.Errorf("listen result = %+v", got)
	}

	res, err = cs.CallTool(ctx, &mcpsdk.CallToolParams{Name: app.ToolRecentClips, Arguments: map[string]any{"limit": 5}})
	if err != nil {
		t.Fatalf("call recent_clips: %v", err)
	}
	var recent app.RecentClipsOutput
	decodeStructured(t, res, &recent)
	if len(recent.Clips) != 1 || recent.Clips[0].SessionID != "sess-1" || recent.Clips[0].CreatedAt == "" {
		t.Errorf("recent clips = %+v", recent.Clips)
	}

	if n := f.counter(t, "voxcap.tool.calls", "tool", app.ToolListen); n != 1 {
		t.Errorf("listen tool calls = %d, want 1", n)
	}
}

func TestMCP_RecentClipsRejectsBadLimit(t *testing.T) {
	t.Parallel()
	f := newFixture(t, speechTrace, nil)
	cs := connectMCP(t, f)

	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      app.ToolRecentClips,
		Arguments: map[string]any{"limit": -1},
	})
	if err != nil {
		t.Fatalf("call recent_clips: %v", err)
	}
	if !res.IsError {
		t.Error("expected a tool error for a negative limit")
	}
	if n := f.counter(t, "voxcap.tool.calls", "status", "invalid"); n != 1 {
		t.Errorf("invalid tool calls = %d, want 1", n)
	}
}
