package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/voxcap/internal/cliplog"
)

// Tool names exposed by [NewMCPServer].
const (
	ToolListen      = "listen"
	ToolRecentClips = "recent_clips"
)

// RecentClipsInput is the argument of the recent_clips tool.
type RecentClipsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of entries to return, newest first (default 20)"`
}

// ClipSummary is one clip log entry as reported by the recent_clips tool.
type ClipSummary struct {
	SessionID  string   `json:"session_id"`
	Path       string   `json:"path,omitempty"`
	StopReason string   `json:"stop_reason"`
	DurationMS int64    `json:"duration_ms"`
	Stages     []string `json:"stages"`
	Transcript string   `json:"transcript,omitempty"`
	Provider   string   `json:"provider,omitempty"`
	Error      string   `json:"error,omitempty"`
	CreatedAt  string   `json:"created_at"`
}

// RecentClipsOutput is the result of the recent_clips tool.
type RecentClipsOutput struct {
	Clips []ClipSummary `json:"clips"`
}

// NewMCPServer returns an MCP server exposing the listener as tools:
// listen runs one capture request and recent_clips reads the clip log.
func NewMCPServer(l *Listener, version string) *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "voxcap", Version: version}, nil)
	m := l.metrics

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        ToolListen,
		Title:       "Listen",
		Description: "Record one utterance from the microphone. Waits for speech, stops after a trailing silence and returns the processed clip and its transcript.",
	}, func(ctx context.Context, _ *mcpsdk.CallToolRequest, _ struct{}) (*mcpsdk.CallToolResult, Result, error) {
		res, err := l.Listen(ctx)
		m.RecordToolCall(ctx, ToolListen, toolStatus(err))
		if err != nil {
			return nil, Result{}, err
		}
		return nil, *res, nil
	})

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        ToolRecentClips,
		Title:       "Recent clips",
		Description: "List the most recent captured clips with their stop reason, processing stages and transcript.",
	}, func(ctx context.Context, _ *mcpsdk.CallToolRequest, in RecentClipsInput) (*mcpsdk.CallToolResult, RecentClipsOutput, error) {
		if in.Limit < 0 || in.Limit > maxRecentLimit {
			m.RecordToolCall(ctx, ToolRecentClips, "invalid")
			return nil, RecentClipsOutput{}, fmt.Errorf("limit must be between 0 and %d", maxRecentLimit)
		}
		entries, err := l.Recent(ctx, in.Limit)
		m.RecordToolCall(ctx, ToolRecentClips, toolStatus(err))
		if err != nil {
			return nil, RecentClipsOutput{}, err
		}
		out := RecentClipsOutput{Clips: make([]ClipSummary, 0, len(entries))}
		for _, e := range entries {
			out.Clips = append(out.Clips, summarize(e))
		}
		return nil, out, nil
	})

	return server
}

// MCPHandler serves srv over the streamable HTTP transport.
func MCPHandler(srv *mcpsdk.Server) http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return srv }, nil)
}

func toolStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrCaptureActive):
		return "busy"
	default:
		return "error"
	}
}

func summarize(e cliplog.Entry) ClipSummary {
	r := newResult(e)
	return ClipSummary{
		SessionID:  r.SessionID,
		Path:       r.Path,
		StopReason: r.StopReason,
		DurationMS: r.DurationMS,
		Stages:     r.Stages,
		Transcript: r.Transcript,
		Provider:   r.Provider,
		Error:      r.Error,
		CreatedAt:  e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

