package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"vidnotes/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExtractionFailed, "extracting", "score frame", "scorer failed", base)
	if !errors.Is(err, services.ErrExtractionFailed) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"extracting", "score frame", "scorer failed", "boom"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want services.ErrorKind
	}{
		{services.Wrap(services.ErrSourceUnavailable, "starting", "stat", "missing", nil), services.KindSourceUnavailable},
		{fmt.Errorf("outer: %w", services.Wrap(services.ErrAcquisitionFailed, "transcribing", "", "", nil)), services.KindAcquisitionFailed},
		{services.Wrap(services.ErrGenerationFailed, "generating", "", "", context.DeadlineExceeded), services.KindGenerationFailed},
		{services.Wrap(services.ErrAlignmentFailed, "aligning", "", "", nil), services.KindAlignmentFailed},
		{services.Wrap(services.ErrCaptionsUnavailable, "transcribing", "manual_captions", "", nil), services.KindCaptionsUnavailable},
		{services.Wrap(services.ErrCanceled, "uploading", "cancel", "", services.Wrap(services.ErrSourceUnavailable, "uploading", "download", "", context.Canceled)), services.KindCanceled},
		{services.Wrap(services.ErrExternalTool, "transcribing", "whisperx", "", nil), services.KindUnknown},
		{errors.New("plain"), services.KindUnknown},
		{nil, ""},
	}
	for _, tc := range cases {
		if got := services.KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestDetailsExposesStructuredFields(t *testing.T) {
	cause := errors.New("exit status 1")
	err := services.Wrap(services.ErrAcquisitionFailed, "transcribing", "whisperx", "transcription failed", cause)
	err = services.WithHint(err, "install whisperx")

	details := services.Details(err)
	if details.Kind != services.KindAcquisitionFailed {
		t.Fatalf("unexpected kind %q", details.Kind)
	}
	if details.Stage != "transcribing" || details.Operation != "whisperx" {
		t.Fatalf("unexpected stage/operation: %+v", details)
	}
	if details.Hint != "install whisperx" {
		t.Fatalf("unexpected hint %q", details.Hint)
	}
	if details.Cause != cause {
		t.Fatalf("expected cause to be preserved, got %v", details.Cause)
	}
	if details.Message != err.Error() {
		t.Fatalf("expected verbatim message, got %q", details.Message)
	}
}

func TestMarkerForKindRoundTrip(t *testing.T) {
	for _, kind := range []services.ErrorKind{
		services.KindSourceUnavailable,
		services.KindExtractionFailed,
		services.KindAcquisitionFailed,
		services.KindAlignmentFailed,
		services.KindGenerationFailed,
	} {
		err := services.Wrap(services.MarkerForKind(kind), "", "", "x", nil)
		if got := services.KindOf(err); got != kind {
			t.Fatalf("kind %q round-tripped to %q", kind, got)
		}
	}
}
