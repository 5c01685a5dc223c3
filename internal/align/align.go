// Package align correlates retained frames with the transcript spoken around
// them.
package align

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"vidnotes/internal/frames"
	"vidnotes/internal/transcript"
)

// FileName is the alignment artifact written into the job directory.
const FileName = "alignment.json"

// Alignment is the transcript text overlapping one frame.
type Alignment struct {
	FileRef          string   `json:"file_ref"`
	TimestampSeconds float64  `json:"timestamp_seconds"`
	Text             string   `json:"text"`
	Segments         []string `json:"segments,omitempty"`
}

// Align returns one entry per frame with the segments overlapping
// [timestamp, timestamp+window). Frames with no overlapping speech get an
// empty Text. Output follows frame timestamp order.
func Align(segments []transcript.Segment, records []frames.Record, window float64) ([]Alignment, error) {
	if window <= 0 {
		return nil, fmt.Errorf("align: window must be positive, got %v", window)
	}
	ordered := slices.Clone(records)
	slices.SortStableFunc(ordered, func(a, b frames.Record) int {
		switch {
		case a.TimestampSeconds < b.TimestampSeconds:
			return -1
		case a.TimestampSeconds > b.TimestampSeconds:
			return 1
		default:
			return 0
		}
	})
	out := make([]Alignment, 0, len(ordered))
	for _, record := range ordered {
		start, end := record.TimestampSeconds, record.TimestampSeconds+window
		var texts []string
		for _, seg := range segments {
			if seg.Start >= end {
				// Segments arrive sorted by start.
				break
			}
			if seg.End > start {
				if text := strings.TrimSpace(seg.Text); text != "" {
					texts = append(texts, text)
				}
			}
		}
		out = append(out, Alignment{
			FileRef:          record.FileRef,
			TimestampSeconds: record.TimestampSeconds,
			Text:             strings.Join(texts, " "),
			Segments:         texts,
		})
	}
	return out, nil
}

// Captions indexes non-empty alignment text by file reference.
func Captions(alignments []Alignment) map[string]string {
	captions := make(map[string]string, len(alignments))
	for _, a := range alignments {
		if a.Text != "" {
			captions[a.FileRef] = a.Text
		}
	}
	return captions
}

// Write stores alignments as indented JSON at path.
func Write(path string, alignments []Alignment) error {
	if path == "" {
		return errors.New("align: empty output path")
	}
	if alignments == nil {
		alignments = []Alignment{}
	}
	data, err := json.MarshalIndent(alignments, "", "  ")
	if err != nil {
		return fmt.Errorf("align: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("align: ensure dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("align: write: %w", err)
	}
	return os.Rename(tmp, path)
}

// Read loads alignments written by Write.
func Read(path string) ([]Alignment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var alignments []Alignment
	if err := json.Unmarshal(data, &alignments); err != nil {
		return nil, fmt.Errorf("align: decode %s: %w", path, err)
	}
	return alignments, nil
}
