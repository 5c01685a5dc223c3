package services

import (
	"errors"
	"strings"
)

// Taxonomy markers describe why a pipeline stage failed. Every failure recorded
// on a job carries exactly one of these kinds.
var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrAcquisitionFailed = errors.New("transcript acquisition failed")
	ErrExtractionFailed  = errors.New("frame extraction failed")
	ErrGenerationFailed  = errors.New("note generation failed")
	ErrAlignmentFailed   = errors.New("alignment failed")
)

// ErrCaptionsUnavailable marks a caption fallback step that failed before
// another strategy produced the transcript. It is only ever recorded as a
// non-fatal diagnostic.
var ErrCaptionsUnavailable = errors.New("captions unavailable")

// Generic markers describe the nature of the underlying fault.
var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrCanceled      = errors.New("canceled")
	ErrQueueFull     = errors.New("submission queue full")
)

// ErrorKind is the taxonomy name stored on job errors and log lines.
type ErrorKind string

const (
	KindSourceUnavailable   ErrorKind = "SourceUnavailable"
	KindAcquisitionFailed   ErrorKind = "AcquisitionFailed"
	KindExtractionFailed    ErrorKind = "ExtractionFailed"
	KindGenerationFailed    ErrorKind = "GenerationFailed"
	KindAlignmentFailed     ErrorKind = "AlignmentFailed"
	KindCaptionsUnavailable ErrorKind = "CaptionsUnavailable"
	KindCanceled            ErrorKind = "Canceled"
	KindQueueFull           ErrorKind = "QueueFull"
	KindUnknown             ErrorKind = "Unknown"
)

var kindMarkers = []struct {
	marker error
	kind   ErrorKind
}{
	{ErrSourceUnavailable, KindSourceUnavailable},
	{ErrExtractionFailed, KindExtractionFailed},
	{ErrAcquisitionFailed, KindAcquisitionFailed},
	{ErrAlignmentFailed, KindAlignmentFailed},
	{ErrCaptionsUnavailable, KindCaptionsUnavailable},
	{ErrGenerationFailed, KindGenerationFailed},
	{ErrCanceled, KindCanceled},
	{ErrQueueFull, KindQueueFull},
}

// MarkerForKind returns the sentinel associated with a taxonomy kind.
func MarkerForKind(kind ErrorKind) error {
	for _, entry := range kindMarkers {
		if entry.kind == kind {
			return entry.marker
		}
	}
	return ErrTransient
}

// ServiceError carries the stage context attached by Wrap. Both the marker and
// the cause remain reachable through errors.Is.
type ServiceError struct {
	Marker    error
	Stage     string
	Operation string
	Message   string
	Hint      string
	Err       error
}

func (e *ServiceError) Error() string {
	detail := buildDetail(e.Stage, e.Operation, e.Message)
	marker := "service failure"
	if e.Marker != nil {
		marker = e.Marker.Error()
	}
	if e.Err != nil {
		return marker + ": " + detail + ": " + e.Err.Error()
	}
	return marker + ": " + detail
}

func (e *ServiceError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Marker != nil {
		out = append(out, e.Marker)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	return &ServiceError{
		Marker:    marker,
		Stage:     strings.TrimSpace(stage),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Err:       err,
	}
}

// WithHint attaches an operator-facing remediation hint to err. Errors not
// produced by Wrap are wrapped as transient failures first.
func WithHint(err error, hint string) error {
	if err == nil {
		return nil
	}
	var svc *ServiceError
	if errors.As(err, &svc) {
		clone := *svc
		clone.Hint = strings.TrimSpace(hint)
		return &clone
	}
	return &ServiceError{Marker: ErrTransient, Message: err.Error(), Hint: strings.TrimSpace(hint), Err: err}
}

// ErrorDetails is the structured view of an error used for logging and job
// error records.
type ErrorDetails struct {
	Kind      ErrorKind
	Stage     string
	Operation string
	Message   string
	Hint      string
	Cause     error
}

// Details extracts the structured fields from err.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{
		Kind:    KindOf(err),
		Message: strings.TrimSpace(err.Error()),
		Cause:   err,
	}
	var svc *ServiceError
	if errors.As(err, &svc) {
		details.Stage = svc.Stage
		details.Operation = svc.Operation
		details.Hint = svc.Hint
		if svc.Err != nil {
			details.Cause = svc.Err
		}
	}
	if details.Hint == "" {
		details.Hint = defaultHint(err)
	}
	return details
}

// KindOf returns the taxonomy kind carried by err, or KindUnknown. The
// outermost ServiceError with a taxonomy marker wins, so re-wrapping an error
// reclassifies it.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var svc *ServiceError
	if errors.As(err, &svc) {
		for _, entry := range kindMarkers {
			if svc.Marker == entry.marker {
				return entry.kind
			}
		}
	}
	for _, entry := range kindMarkers {
		if errors.Is(err, entry.marker) {
			return entry.kind
		}
	}
	return KindUnknown
}

func defaultHint(err error) string {
	switch {
	case errors.Is(err, ErrConfiguration):
		return "check the vidnotes configuration file"
	case errors.Is(err, ErrExternalTool):
		return "run 'vidnotes check' to verify external tools"
	case errors.Is(err, ErrTimeout):
		return "retry the job; the upstream service timed out"
	case errors.Is(err, ErrCanceled):
		return "job was canceled"
	default:
		return ""
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
