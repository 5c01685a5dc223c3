package frames

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"iter"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"vidnotes/internal/logging"
	"vidnotes/internal/services"
)

const (
	stageName          = "extracting"
	defaultJPEGQuality = 85
)

// Selector picks relevant frames from a video.
type Selector struct {
	decoder Decoder
	scorer  Scorer
	logger  *slog.Logger
}

// NewSelector builds a selector over a decoder and scorer.
func NewSelector(decoder Decoder, scorer Scorer, logger *slog.Logger) *Selector {
	return &Selector{
		decoder: decoder,
		scorer:  scorer,
		logger:  logging.NewComponentLogger(logger, "frames"),
	}
}

// SampleStep converts a sampling interval into a frame stride.
func SampleStep(frameRate, intervalSeconds float64) int {
	step := int(math.Round(frameRate * intervalSeconds))
	if step < 1 {
		return 1
	}
	return step
}

// FileName is the on-disk name for a retained frame.
func FileName(index int) string {
	return fmt.Sprintf("frame_%d.jpg", index)
}

// Select lazily yields retained frames. Decoding starts on the first pull
// and stops when the consumer stops, ctx is canceled, or the video ends. A
// probe, decode, or scoring failure is yielded once and ends the sequence.
func (s *Selector) Select(ctx context.Context, videoPath string, cfg Config, outDir string) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		fail := func(op, msg string, err error) {
			yield(Record{}, services.Wrap(services.ErrExtractionFailed, stageName, op, msg, err))
		}
		if err := validateConfig(cfg); err != nil {
			fail("configure", "invalid frame selection config", err)
			return
		}
		probe, err := s.decoder.Probe(ctx, videoPath)
		if err != nil {
			fail("probe", "video is unreadable", err)
			return
		}
		if probe.FrameRate <= 0 {
			fail("probe", "video reports no usable frame rate", nil)
			return
		}
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			fail("prepare", "create frame directory", err)
			return
		}

		step := SampleStep(probe.FrameRate, cfg.SampleIntervalSeconds)
		stream, err := s.decoder.Open(ctx, videoPath, probe, step)
		if err != nil {
			fail("decode", "start frame decoder", err)
			return
		}
		defer stream.Close()

		logger := logging.WithContext(ctx, s.logger)
		expected := 0
		if probe.DurationSeconds > 0 {
			expected = int(probe.DurationSeconds*probe.FrameRate)/step + 1
		}
		sampler := logging.NewProgressSampler(25)
		sampled, retained := 0, 0
		lastIndex := -1

		for {
			if err := ctx.Err(); err != nil {
				yield(Record{}, services.Wrap(services.ErrCanceled, stageName, "decode", "frame selection canceled", err))
				return
			}
			frame, err := stream.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				fail("decode", fmt.Sprintf("decode frame after index %d", lastIndex), err)
				return
			}
			if frame.Index <= lastIndex {
				fail("decode", fmt.Sprintf("decoder returned frame %d after %d", frame.Index, lastIndex), nil)
				return
			}
			lastIndex = frame.Index
			sampled++

			score, err := s.scorer.ScoreFrame(ctx, frame.Image, cfg.Concepts)
			if err != nil {
				fail("score", fmt.Sprintf("score frame %d", frame.Index), err)
				return
			}
			if expected > 0 {
				percent := math.Min(100, float64(sampled)*100/float64(expected))
				if sampler.ShouldLog(percent) {
					logger.Debug("frame sampling progress",
						logging.Float64(logging.FieldProgressPercent, percent),
						logging.Int("frames_sampled", sampled),
						logging.Int("frames_retained", retained),
					)
				}
			}
			if score.Confidence <= cfg.Threshold {
				continue
			}

			name := FileName(frame.Index)
			if err := writeJPEG(filepath.Join(outDir, name), frame.Image, cfg.JPEGQuality); err != nil {
				fail("persist", fmt.Sprintf("write %s", name), err)
				return
			}
			retained++
			record := Record{
				FrameIndex:       frame.Index,
				TimestampSeconds: float64(frame.Index) / probe.FrameRate,
				MatchedConcept:   score.Concept,
				Confidence:       score.Confidence,
				FileRef:          name,
			}
			if !yield(record, nil) {
				return
			}
		}
		logger.Info("frame selection complete",
			logging.String(logging.FieldEventType, "frames_selected"),
			logging.Int("frames_sampled", sampled),
			logging.Int("frames_retained", retained),
			logging.Int("sample_step", step),
		)
	}
}

// Collect drains a selection into a slice, stopping at the first error.
func Collect(seq iter.Seq2[Record, error]) ([]Record, error) {
	var out []Record
	for record, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, record)
	}
	return out, nil
}

func validateConfig(cfg Config) error {
	switch {
	case cfg.SampleIntervalSeconds <= 0:
		return errors.New("sample interval must be positive")
	case len(cfg.Concepts) == 0:
		return errors.New("at least one concept is required")
	case cfg.Threshold < 0 || cfg.Threshold >= 1:
		return errors.New("threshold must be in [0, 1)")
	}
	return nil
}

func writeJPEG(path string, img image.Image, quality int) error {
	if quality <= 0 || quality > 100 {
		quality = defaultJPEGQuality
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: quality}); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
