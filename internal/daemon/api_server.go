package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"vidnotes/internal/api"
	"vidnotes/internal/config"
	"vidnotes/internal/fileutil"
	"vidnotes/internal/jobs"
	"vidnotes/internal/logging"
	"vidnotes/internal/logs"
	"vidnotes/internal/notestore"
	"vidnotes/internal/textutil"
	"vidnotes/internal/workflow"
)

const (
	maxJSONBody     = 1 << 20
	maxFormField    = 4 << 10
	uploadPartKey   = "file"
	defaultLogLines = 200
	maxLogWait      = 30 * time.Second
)

type apiServer struct {
	bind        string
	logger      *slog.Logger
	daemon      *Daemon
	urlTemplate string
	uploadLimit int64

	handler  http.Handler
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:        strings.TrimSpace(cfg.API.Bind),
		logger:      logger,
		daemon:      d,
		urlTemplate: cfg.Notes.URLTemplate,
		uploadLimit: int64(cfg.API.MaxUploadMB) << 20,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/jobs", srv.handleSubmit)
	mux.HandleFunc("GET /api/jobs", srv.handleJobs)
	mux.HandleFunc("GET /api/jobs/{id}", srv.handleJob)
	mux.HandleFunc("DELETE /api/jobs/{id}", srv.handleCancel)
	mux.HandleFunc("GET /api/jobs/{id}/note", srv.handleNote)
	mux.HandleFunc("GET /api/jobs/{id}/note.md", srv.handleNoteMarkdown)
	mux.HandleFunc("GET /api/jobs/{id}/frames/{file_ref}", srv.handleFrame)
	mux.HandleFunc("GET /api/jobs/{id}/log", srv.handleJobLog)
	mux.HandleFunc("GET /api/notes", srv.handleNotes)
	mux.HandleFunc("GET /api/status", srv.handleStatus)
	srv.handler = authMiddleware(cfg.API.Token, mux)

	srv.server = &http.Server{
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		// Uploads stream whole videos, so only idle connections are bounded.
		IdleTimeout: 60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil || s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.log(), "api server error", "api_server_failed", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil || s.listener == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	_ = s.listener.Close()
}

func (s *apiServer) address() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var (
		sub       workflow.Submission
		uploadDir string
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		var (
			status int
			err    error
		)
		sub, uploadDir, status, err = s.readUpload(r)
		if err != nil {
			s.writeError(w, status, err.Error())
			return
		}
	} else {
		var req api.SubmitRequest
		dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
		if strings.TrimSpace(req.URL) == "" && strings.TrimSpace(req.FilePath) != "" {
			if err := allowLocalPath(s.daemon.cfg.API, req.FilePath); err != nil {
				s.writeError(w, http.StatusForbidden, err.Error())
				return
			}
		}
		sub = workflow.Submission{
			URL:                   req.URL,
			FilePath:              req.FilePath,
			SampleIntervalSeconds: req.SampleIntervalSeconds,
			SmartMode:             req.SmartMode,
			LanguagePriority:      req.Languages,
		}
	}

	id, err := s.daemon.executor.Submit(sub)
	if err != nil && uploadDir != "" {
		_ = os.RemoveAll(uploadDir)
	}
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusAccepted, api.SubmitResponse{JobID: id})
	case errors.Is(err, workflow.ErrInvalidSubmission):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, workflow.ErrQueueFull), errors.Is(err, workflow.ErrStopped):
		w.Header().Set("Retry-After", "30")
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// readUpload streams a multipart submission to disk. Form fields must precede
// the file part; anything after it is ignored.
func (s *apiServer) readUpload(r *http.Request) (workflow.Submission, string, int, error) {
	var sub workflow.Submission
	reader, err := r.MultipartReader()
	if err != nil {
		return sub, "", http.StatusBadRequest, fmt.Errorf("invalid multipart body: %w", err)
	}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return sub, "", http.StatusBadRequest, errors.New("multipart submission requires a file part")
		}
		if err != nil {
			return sub, "", http.StatusBadRequest, fmt.Errorf("invalid multipart body: %w", err)
		}
		if part.FormName() == uploadPartKey {
			dir, path, status, err := s.saveUpload(part)
			_ = part.Close()
			if err != nil {
				return sub, "", status, err
			}
			sub.FilePath = path
			return sub, dir, 0, nil
		}
		err = applyFormField(&sub, part)
		_ = part.Close()
		if err != nil {
			return sub, "", http.StatusBadRequest, err
		}
	}
}

func (s *apiServer) saveUpload(part *multipart.Part) (string, string, int, error) {
	name := textutil.SanitizeFileName(filepath.Base(strings.TrimSpace(part.FileName())))
	if name == "" {
		name = "upload"
	}
	dir := filepath.Join(s.daemon.uploadsDir(), uuid.NewString())
	path := filepath.Join(dir, name)
	written, err := fileutil.SaveReader(path, part, s.uploadLimit)
	if err != nil {
		_ = os.RemoveAll(dir)
		if errors.Is(err, fileutil.ErrTooLarge) {
			return "", "", http.StatusRequestEntityTooLarge, err
		}
		return "", "", http.StatusInternalServerError, fmt.Errorf("save upload: %w", err)
	}
	s.log().Info("upload received",
		logging.String(logging.FieldEventType, "upload_saved"),
		logging.String("path", path),
		logging.Int64("bytes", written),
	)
	return dir, path, 0, nil
}

func applyFormField(sub *workflow.Submission, part *multipart.Part) error {
	raw, err := io.ReadAll(io.LimitReader(part, maxFormField))
	if err != nil {
		return fmt.Errorf("read form field %q: %w", part.FormName(), err)
	}
	value := strings.TrimSpace(string(raw))
	if value == "" {
		return nil
	}
	switch part.FormName() {
	case "sample_interval_seconds":
		interval, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("sample_interval_seconds: %w", err)
		}
		sub.SampleIntervalSeconds = interval
	case "smart_mode":
		smart, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("smart_mode: %w", err)
		}
		sub.SmartMode = &smart
	case "languages":
		for lang := range strings.SplitSeq(value, ",") {
			if lang = strings.TrimSpace(lang); lang != "" {
				sub.LanguagePriority = append(sub.LanguagePriority, lang)
			}
		}
	}
	return nil
}

func (s *apiServer) handleJobs(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: api.FromJobs(s.daemon.executor.Registry().List())})
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.daemon.executor.Registry().Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromJob(job))
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, err := s.daemon.executor.Registry().Get(id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if job.Status.Terminal() {
		s.writeError(w, http.StatusConflict, fmt.Sprintf("job already %s", job.Status))
		return
	}
	requested := s.daemon.executor.Cancel(id)
	s.log().Info("job cancellation requested",
		logging.String(logging.FieldJobID, id),
		logging.String(logging.FieldEventType, "job_cancel_requested"),
		logging.Bool("delivered", requested),
	)
	s.writeJSON(w, http.StatusAccepted, api.CancelResponse{JobID: id, Requested: requested})
}

// lookupNote resolves the persisted note for a request, writing the error
// reply itself when there is none. Jobs forgotten by the registry are still
// served from the store.
func (s *apiServer) lookupNote(w http.ResponseWriter, r *http.Request) (notestore.Note, bool) {
	id := r.PathValue("id")
	if job, err := s.daemon.executor.Registry().Get(id); err == nil && job.Status != jobs.StatusCompleted {
		s.writeError(w, http.StatusConflict, fmt.Sprintf("job is not completed (status %s)", job.Status))
		return notestore.Note{}, false
	}
	note, err := s.daemon.notes.Get(r.Context(), id)
	if errors.Is(err, notestore.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "note not found")
		return notestore.Note{}, false
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return notestore.Note{}, false
	}
	return note, true
}

func (s *apiServer) handleNote(w http.ResponseWriter, r *http.Request) {
	note, ok := s.lookupNote(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromNote(note, s.urlTemplate))
}

func (s *apiServer) handleNoteMarkdown(w http.ResponseWriter, r *http.Request) {
	note, ok := s.lookupNote(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	name := textutil.SourceStem(note.Source, note.JobID) + ".md"
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, note.Markdown)
}

func (s *apiServer) handleFrame(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		s.writeError(w, http.StatusNotFound, "frame not found")
		return
	}
	ref := r.PathValue("file_ref")
	if ref == "" || ref != filepath.Base(ref) || strings.HasPrefix(ref, ".") {
		s.writeError(w, http.StatusBadRequest, "invalid frame reference")
		return
	}
	file, err := os.Open(filepath.Join(workflow.FramesDir(s.daemon.cfg.Paths.WorkDir, id), ref))
	if err != nil {
		s.writeError(w, http.StatusNotFound, "frame not found")
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil || !info.Mode().IsRegular() {
		s.writeError(w, http.StatusNotFound, "frame not found")
		return
	}
	http.ServeContent(w, r, ref, info.ModTime(), file)
}

// handleJobLog serves the per-job log. Query parameters: offset (from a
// previous reply, default -1 for the tail), lines, and wait_seconds to long-poll
// for new output.
func (s *apiServer) handleJobLog(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	dir := workflow.JobDir(s.daemon.cfg.Paths.WorkDir, id)
	if _, err := s.daemon.executor.Registry().Get(id); err != nil {
		if _, statErr := os.Stat(dir); statErr != nil {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
	}

	query := r.URL.Query()
	opts := logs.Options{Offset: -1, Limit: defaultLogLines}
	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "offset must be an integer")
			return
		}
		opts.Offset = offset
	}
	if raw := query.Get("lines"); raw != "" {
		lines, err := strconv.Atoi(raw)
		if err != nil || lines <= 0 {
			s.writeError(w, http.StatusBadRequest, "lines must be a positive integer")
			return
		}
		opts.Limit = lines
	}
	if raw := query.Get("wait_seconds"); raw != "" {
		seconds, err := strconv.ParseFloat(raw, 64)
		if err != nil || seconds < 0 {
			s.writeError(w, http.StatusBadRequest, "wait_seconds must be a non-negative number")
			return
		}
		opts.Wait = min(time.Duration(seconds*float64(time.Second)), maxLogWait)
	}

	chunk, err := logs.Tail(r.Context(), filepath.Join(dir, workflow.JobLogFileName), opts)
	if err != nil && r.Context().Err() == nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	lines := chunk.Lines
	if lines == nil {
		lines = []string{}
	}
	s.writeJSON(w, http.StatusOK, api.JobLogResponse{JobID: id, Lines: lines, Offset: chunk.Offset})
}

func (s *apiServer) handleNotes(w http.ResponseWriter, r *http.Request) {
	list, err := s.daemon.notes.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.NoteListResponse{Notes: api.FromNoteSummaries(list)})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	deps := make([]api.DependencyStatus, len(status.Dependencies))
	for i, dep := range status.Dependencies {
		deps[i] = api.DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	checks := make([]api.CheckResult, len(status.Checks))
	for i, check := range status.Checks {
		checks[i] = api.CheckResult{Name: check.Name, Passed: check.Passed, Detail: check.Detail}
	}
	counts := make(map[string]int, len(status.JobCounts))
	for st, n := range status.JobCounts {
		counts[string(st)] = n
	}
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:       status.Running,
		PID:           status.PID,
		Workers:       status.Workers,
		QueueDepth:    status.QueueDepth,
		QueueCapacity: status.QueueCapacity,
		ActiveJobs:    status.ActiveJobs,
		JobCounts:     counts,
		NotesDBPath:   status.NotesDBPath,
		LockFilePath:  status.LockFilePath,
		Dependencies:  deps,
		Checks:        checks,
	})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
