package frames

import (
	"context"
	"image"
)

// Record describes one retained frame.
type Record struct {
	FrameIndex       int     `json:"frame_index"`
	TimestampSeconds float64 `json:"timestamp_seconds"`
	MatchedConcept   string  `json:"matched_concept"`
	Confidence       float64 `json:"confidence"`
	FileRef          string  `json:"file_ref"`
}

// Config tunes frame selection.
type Config struct {
	SampleIntervalSeconds float64
	Concepts              []string
	Threshold             float64
	JPEGQuality           int
}

// Score is the winning concept for a frame.
type Score struct {
	Concept    string
	Confidence float64
}

// Scorer rates an image against a concept vocabulary.
type Scorer interface {
	ScoreFrame(ctx context.Context, img image.Image, concepts []string) (Score, error)
}

// Probe holds the stream properties needed to sample a video.
type Probe struct {
	FrameRate       float64
	Width           int
	Height          int
	DurationSeconds float64
}

// Frame is one decoded video frame.
type Frame struct {
	Index int
	Image image.Image
}

// Stream yields decoded frames in increasing index order. Next returns
// io.EOF once the video is exhausted.
type Stream interface {
	Next() (Frame, error)
	Close() error
}

// Decoder probes and decodes video files.
type Decoder interface {
	Probe(ctx context.Context, path string) (Probe, error)
	// Open decodes every frame whose index is a multiple of every.
	Open(ctx context.Context, path string, probe Probe, every int) (Stream, error)
}
