package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"vidnotes/internal/api"
)

// Backend is the subset of the daemon API the tools call.
type Backend interface {
	Submit(ctx context.Context, req api.SubmitRequest) (api.SubmitResponse, error)
	Job(ctx context.Context, id string) (api.JobStatus, error)
	Note(ctx context.Context, id string) (api.NoteResponse, error)
}

// New builds the MCP server with the submit_video, job_status, and get_note
// tools registered.
func New(backend Backend, version string) *server.MCPServer {
	s := server.NewMCPServer("vidnotes", version, server.WithToolCapabilities(false))
	h := handlers{backend: backend}

	s.AddTool(mcp.NewTool("submit_video",
		mcp.WithDescription("Queue a video for note generation. Provide exactly one of url or file_path. Returns the job id to poll with job_status."),
		mcp.WithString("url", mcp.Description("http(s) link to a video yt-dlp can download")),
		mcp.WithString("file_path", mcp.Description("Path to a video file readable by the daemon")),
		mcp.WithBoolean("smart_mode", mcp.Description("Embed relevant frames in the note; defaults to the daemon setting")),
		mcp.WithNumber("sample_interval_seconds", mcp.Description("Seconds between sampled frames when smart_mode is on")),
		mcp.WithArray("languages", mcp.Description("Caption language priority, e.g. [\"en\", \"de\"]"), mcp.WithStringItems()),
	), h.submitVideo)

	s.AddTool(mcp.NewTool("job_status",
		mcp.WithDescription("Report stage, progress, and errors for a submitted job."),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("Id returned by submit_video")),
	), h.jobStatus)

	s.AddTool(mcp.NewTool("get_note",
		mcp.WithDescription("Return the markdown note of a completed job."),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("Id returned by submit_video")),
	), h.getNote)

	return s
}

// ServeStdio runs the server on stdin/stdout until the client disconnects.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

type handlers struct {
	backend Backend
}

func (h handlers) submitVideo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	submit := api.SubmitRequest{
		URL:                   strings.TrimSpace(req.GetString("url", "")),
		FilePath:              strings.TrimSpace(req.GetString("file_path", "")),
		SampleIntervalSeconds: req.GetFloat("sample_interval_seconds", 0),
		Languages:             req.GetStringSlice("languages", nil),
	}
	if args := req.GetArguments(); args != nil {
		if _, ok := args["smart_mode"]; ok {
			smart := req.GetBool("smart_mode", false)
			submit.SmartMode = &smart
		}
	}
	if (submit.URL == "") == (submit.FilePath == "") {
		return mcp.NewToolResultError("provide exactly one of url or file_path"), nil
	}

	resp, err := h.backend.Submit(ctx, submit)
	if err != nil {
		return toolError("submit failed", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Queued job %s. Poll job_status until status is completed, then call get_note.", resp.JobID)), nil
}

func (h handlers) jobStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("job_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	status, err := h.backend.Job(ctx, id)
	if err != nil {
		return toolError("status lookup failed", err), nil
	}
	payload, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(payload)), nil
}

func (h handlers) getNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("job_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := h.backend.Note(ctx, id)
	if err != nil {
		if api.IsStatus(err, http.StatusConflict) {
			return mcp.NewToolResultError("job is not completed yet; check job_status"), nil
		}
		return toolError("note lookup failed", err), nil
	}
	return mcp.NewToolResultText(note.Markdown), nil
}

func toolError(prefix string, err error) *mcp.CallToolResult {
	if api.IsAPIUnavailable(err) {
		return mcp.NewToolResultError(prefix + ": vidnotes daemon is not reachable (start it with 'vidnotes daemon')")
	}
	var statusErr *api.StatusError
	if errors.As(err, &statusErr) && statusErr.Message != "" {
		return mcp.NewToolResultError(prefix + ": " + statusErr.Message)
	}
	return mcp.NewToolResultError(prefix + ": " + err.Error())
}
