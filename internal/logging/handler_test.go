package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewFanoutHandlerCollapses(t *testing.T) {
	if _, ok := newFanoutHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler for all nil handlers")
	}
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := newFanoutHandler(nil, inner, nil); h != inner {
		t.Fatal("expected single non-nil handler to be returned unwrapped")
	}
}

func TestFanoutHandlerRespectsEachLevel(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	infoHandler := slog.NewJSONHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo})
	debugHandler := slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug})

	logger := slog.New(newFanoutHandler(infoHandler, debugHandler))
	logger.Debug("debug only message")

	if infoBuf.Len() != 0 {
		t.Error("info handler should not receive debug messages")
	}
	if debugBuf.Len() == 0 {
		t.Error("debug handler should receive debug messages")
	}
	if !newFanoutHandler(infoHandler, debugHandler).Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected fanout to be enabled when any handler accepts the level")
	}
}

func TestFanoutHandlerWithAttrsReachesAll(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h := newFanoutHandler(slog.NewJSONHandler(&buf1, nil), slog.NewJSONHandler(&buf2, nil))
	slog.New(h.WithAttrs([]slog.Attr{slog.String("key", "value")})).Info("test")

	for i, buf := range []*bytes.Buffer{&buf1, &buf2} {
		if !bytes.Contains(buf.Bytes(), []byte(`"key"`)) {
			t.Errorf("expected key attribute in buffer %d", i)
		}
	}
}

func TestPrettyHandlerSuppressesRepeatedInfoFields(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newPrettyHandler(&buf, lvl, false)).With(slog.String(FieldJobID, "job1"))

	logger.Info("first", slog.String("model", "m1"))
	logger.Info("second", slog.String("model", "m1"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	count := 0
	for _, line := range lines {
		if strings.Contains(line, "- Model: m1") {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected repeated field to print once, got %d in %q", count, buf.String())
	}
}

func TestPrettyHandlerHidesDebugOnlyKeysAtInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newPrettyHandler(&buf, new(slog.LevelVar), false))
	logger.Info("saved", slog.String("note_path", "/tmp/x"), slog.String(FieldCorrelationID, "abc"))

	out := buf.String()
	if strings.Contains(out, "/tmp/x") {
		t.Fatalf("expected path hidden at info, got %q", out)
	}
	if !strings.Contains(out, "+ 2 more fields hidden") {
		t.Fatalf("expected hidden count, got %q", out)
	}
}

func TestFormatSubject(t *testing.T) {
	cases := []struct {
		id, stage, want string
	}{
		{"", "", ""},
		{"abc", "", "Job abc"},
		{"", "generating", "generating"},
		{"0123456789abcdef", "aligning", "Job 01234567 (aligning)"},
	}
	for _, tc := range cases {
		if got := FormatSubject(tc.id, tc.stage); got != tc.want {
			t.Fatalf("FormatSubject(%q,%q) = %q, want %q", tc.id, tc.stage, got, tc.want)
		}
	}
}

func TestProgressSamplerBuckets(t *testing.T) {
	s := NewProgressSampler(25)
	var emitted []float64
	for _, p := range []float64{0, 5, 24, 25, 26, 49, 50, 60, 100, 100} {
		if s.ShouldLog(p) {
			emitted = append(emitted, p)
		}
	}
	want := []float64{0, 25, 50, 100}
	if len(emitted) != len(want) {
		t.Fatalf("emitted %v, want %v", emitted, want)
	}
	for i := range want {
		if emitted[i] != want[i] {
			t.Fatalf("emitted %v, want %v", emitted, want)
		}
	}
	var nilSampler *ProgressSampler
	if !nilSampler.ShouldLog(10) {
		t.Fatal("nil sampler should always log")
	}
}
