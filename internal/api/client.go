package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrAPIUnavailable is returned when no daemon address is configured.
var ErrAPIUnavailable = errors.New("daemon API unavailable")

// StatusError is a non-2xx reply from the daemon.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned status %d", e.Code)
	}
	return fmt.Sprintf("daemon returned status %d: %s", e.Code, e.Message)
}

// Client talks to the daemon HTTP API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// NewClient builds a client for the daemon listening on bind, which may be a
// host:port or a full URL.
func NewClient(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, ErrAPIUnavailable
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""
	return &Client{
		base:  base,
		token: strings.TrimSpace(token),
		// Uploads stream whole videos; callers bound requests with ctx.
		http: &http.Client{},
	}, nil
}

// Submit queues a URL or daemon-local file.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return SubmitResponse{}, err
	}
	var resp SubmitResponse
	err = c.do(ctx, http.MethodPost, "/api/jobs", "application/json", bytes.NewReader(body), &resp)
	return resp, err
}

// Upload streams a local video to the daemon as a multipart submission.
func (c *Client) Upload(ctx context.Context, path string, req SubmitRequest) (SubmitResponse, error) {
	file, err := os.Open(path)
	if err != nil {
		return SubmitResponse{}, err
	}
	defer file.Close()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(form, file, filepath.Base(path), req))
	}()

	var resp SubmitResponse
	err = c.do(ctx, http.MethodPost, "/api/jobs", form.FormDataContentType(), pr, &resp)
	_ = pr.Close()
	return resp, err
}

func writeUploadForm(form *multipart.Writer, file io.Reader, name string, req SubmitRequest) error {
	if req.SampleIntervalSeconds > 0 {
		if err := form.WriteField("sample_interval_seconds", strconv.FormatFloat(req.SampleIntervalSeconds, 'f', -1, 64)); err != nil {
			return err
		}
	}
	if req.SmartMode != nil {
		if err := form.WriteField("smart_mode", strconv.FormatBool(*req.SmartMode)); err != nil {
			return err
		}
	}
	if len(req.Languages) > 0 {
		if err := form.WriteField("languages", strings.Join(req.Languages, ",")); err != nil {
			return err
		}
	}
	part, err := form.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	return form.Close()
}

// Job returns the status of one job.
func (c *Client) Job(ctx context.Context, id string) (JobStatus, error) {
	var resp JobStatus
	err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), "", nil, &resp)
	return resp, err
}

// Jobs lists every tracked job.
func (c *Client) Jobs(ctx context.Context) ([]JobStatus, error) {
	var resp JobListResponse
	err := c.do(ctx, http.MethodGet, "/api/jobs", "", nil, &resp)
	return resp.Jobs, err
}

// Note returns the finished note for a job.
func (c *Client) Note(ctx context.Context, id string) (NoteResponse, error) {
	var resp NoteResponse
	err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id)+"/note", "", nil, &resp)
	return resp, err
}

// NoteMarkdown returns the raw markdown of a finished note.
func (c *Client) NoteMarkdown(ctx context.Context, id string) (string, error) {
	var buf bytes.Buffer
	err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id)+"/note.md", "", nil, &buf)
	return buf.String(), err
}

// Cancel requests cancellation of a job.
func (c *Client) Cancel(ctx context.Context, id string) (CancelResponse, error) {
	var resp CancelResponse
	err := c.do(ctx, http.MethodDelete, "/api/jobs/"+url.PathEscape(id), "", nil, &resp)
	return resp, err
}

// JobLog reads a job's log from offset (negative for the last lines). A
// positive wait long-polls until new lines arrive or the wait elapses.
func (c *Client) JobLog(ctx context.Context, id string, offset int64, lines int, wait time.Duration) (JobLogResponse, error) {
	query := url.Values{}
	query.Set("offset", strconv.FormatInt(offset, 10))
	if lines > 0 {
		query.Set("lines", strconv.Itoa(lines))
	}
	if wait > 0 {
		query.Set("wait_seconds", strconv.FormatFloat(wait.Seconds(), 'f', -1, 64))
	}
	var resp JobLogResponse
	err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id)+"/log?"+query.Encode(), "", nil, &resp)
	return resp, err
}

// Notes lists persisted notes, newest first.
func (c *Client) Notes(ctx context.Context) ([]NoteSummary, error) {
	var resp NoteListResponse
	err := c.do(ctx, http.MethodGet, "/api/notes", "", nil, &resp)
	return resp.Notes, err
}

// Status returns daemon runtime information.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var resp DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", "", nil, &resp)
	return resp, err
}

// do sends one request. A *bytes.Buffer out receives the raw body; any other
// non-nil out is JSON-decoded.
func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	if c == nil {
		return ErrAPIUnavailable
	}
	ref := &url.URL{Path: path}
	if p, query, ok := strings.Cut(path, "?"); ok {
		ref = &url.URL{Path: p, RawQuery: query}
	}
	endpoint := c.base.ResolveReference(ref)
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var payload ErrorResponse
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		if json.Unmarshal(data, &payload) != nil || payload.Error == "" {
			payload.Error = strings.TrimSpace(string(data))
		}
		return &StatusError{Code: resp.StatusCode, Message: payload.Error}
	}
	switch dst := out.(type) {
	case nil:
		return nil
	case *bytes.Buffer:
		_, err := io.Copy(dst, resp.Body)
		return err
	default:
		return json.NewDecoder(resp.Body).Decode(out)
	}
}

// IsAPIUnavailable reports whether err means the daemon could not be reached.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}

// IsStatus reports whether err is a daemon reply with the given status code.
func IsStatus(err error, code int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == code
}
