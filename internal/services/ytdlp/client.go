package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"vidnotes/internal/services"
	"vidnotes/internal/transcript"
)

// DefaultBinary is the yt-dlp executable looked up on PATH.
const DefaultBinary = "yt-dlp"

// Runner executes a command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Client talks to yt-dlp.
type Client struct {
	binary string
	run    Runner
}

// Option customizes a Client.
type Option func(*Client)

// WithRunner overrides command execution (tests).
func WithRunner(runner Runner) Option {
	return func(c *Client) {
		if runner != nil {
			c.run = runner
		}
	}
}

// New constructs a client for binary, defaulting to yt-dlp on PATH.
func New(binary string, opts ...Option) *Client {
	if strings.TrimSpace(binary) == "" {
		binary = DefaultBinary
	}
	c := &Client{binary: binary, run: execRunner}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Binary returns the configured executable.
func (c *Client) Binary() string {
	return c.binary
}

type infoPayload struct {
	Title             string                     `json:"title"`
	Subtitles         map[string]json.RawMessage `json:"subtitles"`
	AutomaticCaptions map[string]json.RawMessage `json:"automatic_captions"`
}

// Tracks lists the manual and automatic caption languages offered for url.
func (c *Client) Tracks(ctx context.Context, url string) (transcript.Tracks, error) {
	out, err := c.run(ctx, c.binary, "--dump-single-json", "--skip-download", "--no-warnings", "--no-playlist", url)
	if err != nil {
		return transcript.Tracks{}, services.Wrap(services.ErrExternalTool, "transcribing", "list captions", "yt-dlp metadata lookup failed", err)
	}
	var info infoPayload
	if err := json.Unmarshal(out, &info); err != nil {
		return transcript.Tracks{}, services.Wrap(services.ErrValidation, "transcribing", "list captions", "parse yt-dlp metadata", err)
	}
	return transcript.Tracks{
		Manual:    trackKeys(info.Subtitles),
		Automatic: trackKeys(info.AutomaticCaptions),
	}, nil
}

// Fetch downloads one WebVTT caption track into dir and returns its path.
func (c *Client) Fetch(ctx context.Context, url, lang string, kind transcript.CaptionKind, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure caption dir: %w", err)
	}
	writeFlag := "--write-subs"
	if kind == transcript.CaptionAutomatic {
		writeFlag = "--write-auto-subs"
	}
	base := "captions." + string(kind)
	args := []string{
		"--skip-download",
		"--no-warnings",
		"--no-playlist",
		writeFlag,
		"--sub-langs", lang,
		"--sub-format", "vtt",
		"-o", filepath.Join(dir, base+".%(ext)s"),
		url,
	}
	if _, err := c.run(ctx, c.binary, args...); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "transcribing", "fetch captions", fmt.Sprintf("yt-dlp %s captions (%s)", kind, lang), err)
	}
	expected := filepath.Join(dir, fmt.Sprintf("%s.%s.vtt", base, lang))
	if _, err := os.Stat(expected); err == nil {
		return expected, nil
	}
	matches, _ := filepath.Glob(filepath.Join(dir, base+".*.vtt"))
	if len(matches) > 0 {
		slices.Sort(matches)
		return matches[0], nil
	}
	return "", services.Wrap(services.ErrNotFound, "transcribing", "fetch captions", fmt.Sprintf("yt-dlp produced no %s caption file for %s", kind, lang), nil)
}

// Download fetches the source video into dir and returns the final file path.
func (c *Client) Download(ctx context.Context, url, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure download dir: %w", err)
	}
	args := []string{
		"--no-warnings",
		"--no-playlist",
		"--no-progress",
		"-f", "bv*[ext=mp4]+ba[ext=m4a]/b[ext=mp4]/bv*+ba/b",
		"--merge-output-format", "mp4",
		"-o", filepath.Join(dir, "source.%(ext)s"),
		"--print", "after_move:filepath",
		url,
	}
	out, err := c.run(ctx, c.binary, args...)
	if err != nil {
		return "", services.Wrap(services.ErrSourceUnavailable, "uploading", "download", "yt-dlp download failed", err)
	}
	path := lastLine(out)
	if path == "" {
		matches, _ := filepath.Glob(filepath.Join(dir, "source.*"))
		if len(matches) == 0 {
			return "", services.Wrap(services.ErrSourceUnavailable, "uploading", "download", "yt-dlp reported no output file", nil)
		}
		path = matches[0]
	}
	if _, err := os.Stat(path); err != nil {
		return "", services.Wrap(services.ErrSourceUnavailable, "uploading", "download", "downloaded file missing", err)
	}
	return path, nil
}

func trackKeys(tracks map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(tracks))
	for key := range tracks {
		if key == "" || strings.HasPrefix(key, "live_chat") {
			continue
		}
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		if errors.Is(ctx.Err(), context.Canceled) {
			return out, ctx.Err()
		}
		if detail != "" {
			return out, fmt.Errorf("%s: %w: %s", name, err, detail)
		}
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}
