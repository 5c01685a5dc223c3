package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"vidnotes/internal/config"
	"vidnotes/internal/jobs"
)

const userAgent = "vidnotes/0.1"

// Service defines the notification surface exposed to the daemon.
type Service interface {
	NotifyJobCompleted(ctx context.Context, job jobs.Job) error
	NotifyJobFailed(ctx context.Context, job jobs.Job) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil || !cfg.NotificationsEnabled() {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: cfg.Notifications.NtfyTopic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyJobCompleted(ctx context.Context, job jobs.Job) error {
	data := payload{
		title:   "vidnotes - Notes Ready",
		message: fmt.Sprintf("📝 Notes ready: %s\nJob: %s", displaySource(job.Source), job.ID),
		tags:    []string{"vidnotes", "job", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, job jobs.Job) error {
	var builder strings.Builder
	builder.WriteString("❌ Failed: ")
	builder.WriteString(displaySource(job.Source))
	if stage := string(job.Stage); stage != "" {
		builder.WriteString(" during ")
		builder.WriteString(stage)
	}
	if reason := failureReason(job); reason != "" {
		builder.WriteString("\n")
		builder.WriteString(reason)
	}
	data := payload{
		title:    "vidnotes - Job Failed",
		message:  builder.String(),
		tags:     []string{"vidnotes", "job", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "vidnotes - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"vidnotes", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// displaySource shortens local paths to their file name; URLs pass through.
func displaySource(source string) string {
	source = strings.TrimSpace(source)
	if source == "" {
		return "unknown source"
	}
	if strings.Contains(source, "://") {
		return source
	}
	return path.Base(source)
}

func failureReason(job jobs.Job) string {
	if fatal, ok := job.FatalError(); ok {
		return fatal.Message
	}
	return strings.TrimSpace(job.Message)
}

type noopService struct{}

func (noopService) NotifyJobCompleted(context.Context, jobs.Job) error { return nil }
func (noopService) NotifyJobFailed(context.Context, jobs.Job) error    { return nil }
func (noopService) TestNotification(context.Context) error             { return nil }
