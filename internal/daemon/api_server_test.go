package daemon

import (
	"bytes"
	"encoding/json"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"vidnotes/internal/api"
	"vidnotes/internal/frames"
	"vidnotes/internal/jobs"
	"vidnotes/internal/testsupport"
	"vidnotes/internal/workflow"
)

func serve(t *testing.T, d *Daemon, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	d.api.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func TestSubmitJSONQueuesJob(t *testing.T) {
	d, _ := newTestDaemon(t, testsupport.NewConfig(t))

	body := `{"url":"https://videos.example.com/v","languages":["de"]}`
	w := serve(t, d, httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(body)))
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[api.SubmitResponse](t, w)

	w = serve(t, d, httptest.NewRequest(http.MethodGet, "/api/jobs/"+resp.JobID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	status := decode[api.JobStatus](t, w)
	if status.Status != "pending" || status.Source != "https://videos.example.com/v" || status.Errors == nil {
		t.Fatalf("unexpected job status %+v", status)
	}

	w = serve(t, d, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	list := decode[api.JobListResponse](t, w)
	if len(list.Jobs) != 1 || list.Jobs[0].ID != resp.JobID {
		t.Fatalf("unexpected job list %+v", list)
	}
}

func TestSubmitRejectsBadInput(t *testing.T) {
	d, _ := newTestDaemon(t, testsupport.NewConfig(t))

	cases := map[string]string{
		"both sources": `{"url":"https://videos.example.com/v","file_path":"/tmp/v.mp4"}`,
		"no source":    `{}`,
		"bad scheme":   `{"url":"ftp://videos.example.com/v"}`,
		"not json":     `url=x`,
		"unknown key":  `{"video":"x"}`,
	}
	for name, body := range cases {
		w := serve(t, d, httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(body)))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, w.Code)
		}
	}
}

func submitFilePath(t *testing.T, d *Daemon, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(map[string]string{"file_path": path})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return serve(t, d, req)
}

func TestSubmitFilePathRequiresTokenWithoutRoots(t *testing.T) {
	video := filepath.Join(t.TempDir(), "talk.mp4")
	testsupport.WriteFile(t, video, "video")

	open, _ := newTestDaemon(t, testsupport.NewConfig(t))
	if w := submitFilePath(t, open, video, ""); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 on an open listener, got %d: %s", w.Code, w.Body.String())
	}

	guarded, _ := newTestDaemon(t, testsupport.NewConfig(t, testsupport.WithAPIToken("secret")))
	if w := submitFilePath(t, guarded, video, "secret"); w.Code != http.StatusAccepted {
		t.Fatalf("expected 202 with token, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSubmitFilePathLimitedToLocalRoots(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	inside := filepath.Join(root, "talks", "talk.mp4")
	secret := filepath.Join(outside, "secret.mp4")
	testsupport.WriteFile(t, inside, "video")
	testsupport.WriteFile(t, secret, "video")
	link := filepath.Join(root, "escape.mp4")
	if err := os.Symlink(secret, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken("secret"))
	cfg.API.LocalRoots = []string{root}
	d, _ := newTestDaemon(t, cfg)

	if w := submitFilePath(t, d, inside, "secret"); w.Code != http.StatusAccepted {
		t.Fatalf("expected 202 under root, got %d: %s", w.Code, w.Body.String())
	}
	rejected := map[string]string{
		"outside":  secret,
		"dotdot":   filepath.Join(root, "..", filepath.Base(outside), "secret.mp4"),
		"symlink":  link,
		"relative": "talks/talk.mp4",
	}
	for name, path := range rejected {
		if w := submitFilePath(t, d, path, "secret"); w.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403, got %d: %s", name, w.Code, w.Body.String())
		}
	}
}

func TestSubmitQueueFullReturns503(t *testing.T) {
	d, _ := newTestDaemon(t, testsupport.NewConfig(t, testsupport.WithQueue(1, 1)))

	body := `{"url":"https://videos.example.com/v"}`
	if w := serve(t, d, httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(body))); w.Code != http.StatusAccepted {
		t.Fatalf("expected first submission accepted, got %d", w.Code)
	}
	w := serve(t, d, httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(body)))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	counts := d.executor.Registry().Counts()
	if counts[jobs.StatusFailed] != 1 {
		t.Fatalf("expected rejected job recorded as failed, got %+v", counts)
	}
}

func multipartBody(t *testing.T, fields map[string]string, name string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := form.WriteField(key, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if name != "" {
		part, err := form.CreateFormFile("file", name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		_, _ = part.Write(data)
	}
	if err := form.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}
	return &buf, form.FormDataContentType()
}

func TestSubmitMultipartSavesUpload(t *testing.T) {
	d, _ := newTestDaemon(t, testsupport.NewConfig(t))

	body, contentType := multipartBody(t, map[string]string{"smart_mode": "false", "languages": "de, en"}, "../talk.mp4", []byte("video-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", body)
	req.Header.Set("Content-Type", contentType)
	w := serve(t, d, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[api.SubmitResponse](t, w)

	job, err := d.executor.Registry().Get(resp.JobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !strings.HasPrefix(job.Source, d.uploadsDir()) || filepath.Base(job.Source) != "talk.mp4" {
		t.Fatalf("expected upload saved under uploads dir, got %q", job.Source)
	}
	data, err := os.ReadFile(job.Source)
	if err != nil || string(data) != "video-bytes" {
		t.Fatalf("unexpected upload contents %q (%v)", data, err)
	}
}

func TestSubmitMultipartErrors(t *testing.T) {
	d, _ := newTestDaemon(t, testsupport.NewConfig(t))
	d.api.uploadLimit = 4

	body, contentType := multipartBody(t, nil, "talk.mp4", []byte("more than four bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", body)
	req.Header.Set("Content-Type", contentType)
	if w := serve(t, d, req); w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
	if entries, _ := os.ReadDir(d.uploadsDir()); len(entries) != 0 {
		t.Fatalf("expected rejected upload removed, found %d entries", len(entries))
	}

	body, contentType = multipartBody(t, map[string]string{"smart_mode": "false"}, "", nil)
	req = httptest.NewRequest(http.MethodPost, "/api/jobs", body)
	req.Header.Set("Content-Type", contentType)
	if w := serve(t, d, req); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without file part, got %d", w.Code)
	}

	body, contentType = multipartBody(t, map[string]string{"smart_mode": "maybe"}, "talk.mp4", []byte("x"))
	req = httptest.NewRequest(http.MethodPost, "/api/jobs", body)
	req.Header.Set("Content-Type", contentType)
	if w := serve(t, d, req); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid smart_mode, got %d", w.Code)
	}
}

func TestUnknownJobIs404(t *testing.T) {
	d, _ := newTestDaemon(t, testsupport.NewConfig(t))
	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil),
		httptest.NewRequest(http.MethodGet, "/api/jobs/missing/note", nil),
		httptest.NewRequest(http.MethodGet, "/api/jobs/missing/note.md", nil),
		httptest.NewRequest(http.MethodDelete, "/api/jobs/missing", nil),
	} {
		if w := serve(t, d, req); w.Code != http.StatusNotFound {
			t.Fatalf("%s %s: expected 404, got %d", req.Method, req.URL.Path, w.Code)
		}
	}
}

func TestNoteEndpoints(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, store := newTestDaemon(t, cfg)
	testsupport.SaveNote(t, store, "done", "# Talk\n\n![a diagram](/api/jobs/done/frames/frame_30.jpg)\n",
		frames.Record{FrameIndex: 30, TimestampSeconds: 1, MatchedConcept: "a diagram", Confidence: 0.9, FileRef: "frame_30.jpg"})

	w := serve(t, d, httptest.NewRequest(http.MethodGet, "/api/jobs/done/note", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	note := decode[api.NoteResponse](t, w)
	if !strings.HasPrefix(note.Markdown, "# Talk") || len(note.Frames) != 1 || note.Frames[0].URL != "/api/jobs/done/frames/frame_30.jpg" {
		t.Fatalf("unexpected note %+v", note)
	}

	w = serve(t, d, httptest.NewRequest(http.MethodGet, "/api/jobs/done/note.md", nil))
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Header().Get("Content-Type"), "text/markdown") {
		t.Fatalf("unexpected markdown reply %d %q", w.Code, w.Header().Get("Content-Type"))
	}
	if !strings.HasPrefix(w.Body.String(), "# Talk") {
		t.Fatalf("unexpected markdown body %q", w.Body.String())
	}
	if got := w.Header().Get("Content-Disposition"); got != "attachment; filename=done.md" {
		t.Fatalf("expected file name from source, got %q", got)
	}

	w = serve(t, d, httptest.NewRequest(http.MethodGet, "/api/notes", nil))
	list := decode[api.NoteListResponse](t, w)
	if len(list.Notes) != 1 || list.Notes[0].FrameCount != 1 {
		t.Fatalf("unexpected note list %+v", list)
	}
}

func TestNoteForUnfinishedJobIs409(t *testing.T) {
	d, _ := newTestDaemon(t, testsupport.NewConfig(t))
	id, err := d.executor.Submit(workflow.Submission{URL: "https://videos.example.com/v"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	w := serve(t, d, httptest.NewRequest(http.MethodGet, "/api/jobs/"+id+"/note", nil))
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestFrameEndpoint(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _ := newTestDaemon(t, cfg)
	id := uuid.NewString()
	frame := filepath.Join(workflow.FramesDir(cfg.Paths.WorkDir, id), "frame_0.jpg")
	size := testsupport.WriteFrame(t, frame, color.Gray{Y: 200})
	testsupport.WriteFile(t, filepath.Join(workflow.JobDir(cfg.Paths.WorkDir, id), workflow.NoteFileName), "# Notes\n")

	w := serve(t, d, httptest.NewRequest(http.MethodGet, "/api/jobs/"+id+"/frames/frame_0.jpg", nil))
	if w.Code != http.StatusOK || int64(w.Body.Len()) != size {
		t.Fatalf("expected frame bytes, got %d (%d bytes)", w.Code, w.Body.Len())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Fatalf("expected image/jpeg, got %q", ct)
	}

	w = serve(t, d, httptest.NewRequest(http.MethodGet, "/api/jobs/"+id+"/frames/..%2Fnotes.md", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected traversal rejected with 400, got %d", w.Code)
	}
	w = serve(t, d, httptest.NewRequest(http.MethodGet, "/api/jobs/not-a-job/frames/frame_0.jpg", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for invalid job id, got %d", w.Code)
	}
	w = serve(t, d, httptest.NewRequest(http.MethodGet, "/api/jobs/"+id+"/frames/frame_9.jpg", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing frame, got %d", w.Code)
	}
}

func TestJobLogEndpoint(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _ := newTestDaemon(t, cfg)
	id := uuid.NewString()
	logPath := filepath.Join(workflow.JobDir(cfg.Paths.WorkDir, id), workflow.JobLogFileName)
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		t.Fatalf("mkdir job dir: %v", err)
	}
	if err := os.WriteFile(logPath, []byte("one\ntwo\nthree\n"), 0o644); err != nil {
		t.Fatalf("write job log: %v", err)
	}

	w := serve(t, d, httptest.NewRequest(http.MethodGet, "/api/jobs/"+id+"/log?lines=2", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[api.JobLogResponse](t, w)
	if len(resp.Lines) != 2 || resp.Lines[0] != "two" || resp.Offset != 14 {
		t.Fatalf("unexpected tail %+v", resp)
	}

	w = serve(t, d, httptest.NewRequest(http.MethodGet, "/api/jobs/"+id+"/log?offset=14", nil))
	if resp := decode[api.JobLogResponse](t, w); len(resp.Lines) != 0 || resp.Lines == nil {
		t.Fatalf("expected empty non-nil lines, got %+v", resp)
	}

	w = serve(t, d, httptest.NewRequest(http.MethodGet, "/api/jobs/"+id+"/log?lines=zero", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad lines, got %d", w.Code)
	}
	w = serve(t, d, httptest.NewRequest(http.MethodGet, "/api/jobs/"+uuid.NewString()+"/log", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown job, got %d", w.Code)
	}
}

func TestCancelEndpoint(t *testing.T) {
	d, _ := newTestDaemon(t, testsupport.NewConfig(t))
	id, err := d.executor.Submit(workflow.Submission{URL: "https://videos.example.com/v"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	w := serve(t, d, httptest.NewRequest(http.MethodDelete, "/api/jobs/"+id, nil))
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	if resp := decode[api.CancelResponse](t, w); !resp.Requested {
		t.Fatalf("expected cancellation delivered, got %+v", resp)
	}

	registry := d.executor.Registry()
	if _, err := registry.Create("finished", "/videos/a.mp4"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := registry.Complete("finished"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	w = serve(t, d, httptest.NewRequest(http.MethodDelete, "/api/jobs/finished", nil))
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for finished job, got %d", w.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	d, _ := newTestDaemon(t, testsupport.NewConfig(t))
	w := serve(t, d, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	status := decode[api.DaemonStatus](t, w)
	if status.PID != os.Getpid() || status.Workers < 1 || len(status.Dependencies) != 1 || len(status.Checks) == 0 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestBearerTokenRequired(t *testing.T) {
	d, _ := newTestDaemon(t, testsupport.NewConfig(t, testsupport.WithAPIToken("secret")))

	if w := serve(t, d, httptest.NewRequest(http.MethodGet, "/api/jobs", nil)); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	if w := serve(t, d, req); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", w.Code)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	req.Header.Set("Authorization", "Bearer secret")
	if w := serve(t, d, req); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}
}
