package mcpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"vidnotes/internal/api"
)

type fakeBackend struct {
	submitted []api.SubmitRequest
	job       api.JobStatus
	note      api.NoteResponse
	err       error
}

func (f *fakeBackend) Submit(_ context.Context, req api.SubmitRequest) (api.SubmitResponse, error) {
	f.submitted = append(f.submitted, req)
	if f.err != nil {
		return api.SubmitResponse{}, f.err
	}
	return api.SubmitResponse{JobID: "job-1"}, nil
}

func (f *fakeBackend) Job(context.Context, string) (api.JobStatus, error) {
	return f.job, f.err
}

func (f *fakeBackend) Note(context.Context, string) (api.NoteResponse, error) {
	return f.note, f.err
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("expected tool result content")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content type %T", res.Content[0])
	}
	return text.Text
}

func TestSubmitVideoForwardsArguments(t *testing.T) {
	backend := &fakeBackend{}
	h := handlers{backend: backend}

	res, err := h.submitVideo(context.Background(), call(map[string]any{
		"url":        "https://videos.example.com/v",
		"smart_mode": false,
		"languages":  []any{"de", "en"},
	}))
	if err != nil {
		t.Fatalf("submitVideo: %v", err)
	}
	if res.IsError || !strings.Contains(resultText(t, res), "job-1") {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(backend.submitted) != 1 {
		t.Fatalf("expected one submission, got %d", len(backend.submitted))
	}
	got := backend.submitted[0]
	if got.URL != "https://videos.example.com/v" || got.SmartMode == nil || *got.SmartMode || len(got.Languages) != 2 {
		t.Fatalf("unexpected submission %+v", got)
	}
}

func TestSubmitVideoRequiresOneSource(t *testing.T) {
	backend := &fakeBackend{}
	h := handlers{backend: backend}
	for _, args := range []map[string]any{
		{},
		{"url": "https://videos.example.com/v", "file_path": "/videos/a.mp4"},
	} {
		res, err := h.submitVideo(context.Background(), call(args))
		if err != nil {
			t.Fatalf("submitVideo: %v", err)
		}
		if !res.IsError {
			t.Fatalf("expected tool error for %v", args)
		}
	}
	if len(backend.submitted) != 0 {
		t.Fatal("invalid arguments must not reach the daemon")
	}
}

func TestJobStatusRendersJSON(t *testing.T) {
	h := handlers{backend: &fakeBackend{job: api.JobStatus{ID: "job-1", Status: "running", Stage: "extracting", Progress: 20}}}
	res, err := h.jobStatus(context.Background(), call(map[string]any{"job_id": "job-1"}))
	if err != nil {
		t.Fatalf("jobStatus: %v", err)
	}
	text := resultText(t, res)
	if !strings.Contains(text, `"stage": "extracting"`) || !strings.Contains(text, `"progress": 20`) {
		t.Fatalf("unexpected status text %s", text)
	}

	res, _ = h.jobStatus(context.Background(), call(map[string]any{}))
	if !res.IsError {
		t.Fatal("expected error without job_id")
	}
}

func TestGetNoteReportsUnfinishedJobs(t *testing.T) {
	h := handlers{backend: &fakeBackend{err: &api.StatusError{Code: http.StatusConflict, Message: "job is not completed"}}}
	res, err := h.getNote(context.Background(), call(map[string]any{"job_id": "job-1"}))
	if err != nil {
		t.Fatalf("getNote: %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "not completed") {
		t.Fatalf("unexpected result %+v", res)
	}

	h = handlers{backend: &fakeBackend{note: api.NoteResponse{JobID: "job-1", Markdown: "# Talk\n"}}}
	res, _ = h.getNote(context.Background(), call(map[string]any{"job_id": "job-1"}))
	if res.IsError || resultText(t, res) != "# Talk\n" {
		t.Fatalf("unexpected note result %+v", res)
	}
}

func TestToolErrorExplainsUnavailableDaemon(t *testing.T) {
	res := toolError("submit failed", api.ErrAPIUnavailable)
	if !strings.Contains(resultText(t, res), "not reachable") {
		t.Fatalf("unexpected text %q", resultText(t, res))
	}
	res = toolError("submit failed", errors.New("boom"))
	if resultText(t, res) != "submit failed: boom" {
		t.Fatalf("unexpected text %q", resultText(t, res))
	}
}
