package frames

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vidnotes/internal/media/ffprobe"
	"vidnotes/internal/services"
)

type fakeDecoder struct {
	probe    Probe
	probeErr error
	frames   int
	gotEvery int
	decoded  int
}

func (d *fakeDecoder) Probe(context.Context, string) (Probe, error) {
	return d.probe, d.probeErr
}

func (d *fakeDecoder) Open(_ context.Context, _ string, _ Probe, every int) (Stream, error) {
	d.gotEvery = every
	return &fakeStream{decoder: d, every: every}, nil
}

type fakeStream struct {
	decoder *fakeDecoder
	every   int
	next    int
	closed  bool
}

func (s *fakeStream) Next() (Frame, error) {
	if s.next >= s.decoder.frames {
		return Frame{}, io.EOF
	}
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(0, 0, color.RGBA{R: uint8(s.next), A: 255})
	frame := Frame{Index: s.next, Image: img}
	s.next += s.every
	s.decoder.decoded++
	return frame, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

// scriptScorer returns confidences keyed by the red channel of pixel (0,0),
// which fakeStream sets to the frame index.
type scriptScorer struct {
	byIndex map[int]float64
	err     error
}

func (s *scriptScorer) ScoreFrame(_ context.Context, img image.Image, concepts []string) (Score, error) {
	if s.err != nil {
		return Score{}, s.err
	}
	r, _, _, _ := img.At(0, 0).RGBA()
	return Score{Concept: concepts[0], Confidence: s.byIndex[int(r>>8)]}, nil
}

func testConfig() Config {
	return Config{SampleIntervalSeconds: 1, Concepts: []string{"a diagram", "a slide"}, Threshold: 0.5, JPEGQuality: 80}
}

func TestSampleStep(t *testing.T) {
	cases := []struct {
		fps, interval float64
		want          int
	}{
		{30, 1, 30},
		{29.97, 1, 30},
		{25, 0.5, 13},
		{10, 0.01, 1},
	}
	for _, tc := range cases {
		if got := SampleStep(tc.fps, tc.interval); got != tc.want {
			t.Fatalf("SampleStep(%v,%v) = %d, want %d", tc.fps, tc.interval, got, tc.want)
		}
	}
}

func TestSelectRetainsFramesAboveThreshold(t *testing.T) {
	decoder := &fakeDecoder{probe: Probe{FrameRate: 10, Width: 4, Height: 4, DurationSeconds: 5}, frames: 50}
	scorer := &scriptScorer{byIndex: map[int]float64{0: 0.2, 10: 0.9, 20: 0.5, 30: 0.51, 40: 0.7}}
	outDir := t.TempDir()

	records, err := Collect(NewSelector(decoder, scorer, nil).Select(context.Background(), "video.mp4", testConfig(), outDir))
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if decoder.gotEvery != 10 {
		t.Fatalf("step = %d, want 10", decoder.gotEvery)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %+v", records)
	}
	wantIdx := []int{10, 30, 40}
	for i, record := range records {
		if record.FrameIndex != wantIdx[i] {
			t.Fatalf("record %d index = %d, want %d", i, record.FrameIndex, wantIdx[i])
		}
		if record.Confidence < 0.5 {
			t.Fatalf("record below threshold: %+v", record)
		}
		if i > 0 && record.TimestampSeconds < records[i-1].TimestampSeconds {
			t.Fatalf("timestamps decreased: %+v", records)
		}
		if _, err := os.Stat(filepath.Join(outDir, record.FileRef)); err != nil {
			t.Fatalf("frame file missing: %v", err)
		}
	}
	if records[0].TimestampSeconds != 1 || records[0].FileRef != "frame_10.jpg" {
		t.Fatalf("unexpected first record %+v", records[0])
	}
}

func TestSelectZeroFramesIsEmpty(t *testing.T) {
	decoder := &fakeDecoder{probe: Probe{FrameRate: 10, Width: 4, Height: 4}, frames: 30}
	records, err := Collect(NewSelector(decoder, &scriptScorer{}, nil).Select(context.Background(), "video.mp4", testConfig(), t.TempDir()))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty selection, got %+v", records)
	}
}

func TestSelectUnreadableVideoFails(t *testing.T) {
	decoder := &fakeDecoder{probeErr: errors.New("moov atom not found")}
	_, err := Collect(NewSelector(decoder, &scriptScorer{}, nil).Select(context.Background(), "broken.mp4", testConfig(), t.TempDir()))
	if !errors.Is(err, services.ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed, got %v", err)
	}
}

func TestSelectScorerErrorEndsSequence(t *testing.T) {
	decoder := &fakeDecoder{probe: Probe{FrameRate: 10, Width: 4, Height: 4}, frames: 100}
	scorer := &scriptScorer{err: errors.New("onnx session failed")}
	count := 0
	var gotErr error
	for _, err := range NewSelector(decoder, scorer, nil).Select(context.Background(), "video.mp4", testConfig(), t.TempDir()) {
		count++
		gotErr = err
	}
	if count != 1 || !errors.Is(gotErr, services.ErrExtractionFailed) {
		t.Fatalf("expected a single extraction error, got count=%d err=%v", count, gotErr)
	}
	if !strings.Contains(gotErr.Error(), "onnx session failed") {
		t.Fatalf("collaborator error text lost: %v", gotErr)
	}
	if decoder.decoded != 1 {
		t.Fatalf("decoding should stop after the failure, decoded %d", decoder.decoded)
	}
}

func TestSelectIsLazy(t *testing.T) {
	decoder := &fakeDecoder{probe: Probe{FrameRate: 1, Width: 4, Height: 4}, frames: 100}
	scorer := &scriptScorer{byIndex: map[int]float64{}}
	for i := range 100 {
		scorer.byIndex[i] = 0.9
	}
	seq := NewSelector(decoder, scorer, nil).Select(context.Background(), "video.mp4", testConfig(), t.TempDir())
	if decoder.decoded != 0 {
		t.Fatal("nothing should decode before iteration")
	}
	taken := 0
	for _, err := range seq {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		taken++
		if taken == 3 {
			break
		}
	}
	if decoder.decoded != 3 {
		t.Fatalf("expected 3 frames decoded, got %d", decoder.decoded)
	}
}

func TestSelectStopsOnCancel(t *testing.T) {
	decoder := &fakeDecoder{probe: Probe{FrameRate: 1, Width: 4, Height: 4}, frames: 100}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Collect(NewSelector(decoder, &scriptScorer{}, nil).Select(ctx, "video.mp4", testConfig(), t.TempDir()))
	if !errors.Is(err, services.ErrCanceled) {
		t.Fatalf("expected ErrCanceled, got %v", err)
	}
}

func TestSelectRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Concepts = nil
	decoder := &fakeDecoder{probe: Probe{FrameRate: 1, Width: 4, Height: 4}}
	_, err := Collect(NewSelector(decoder, &scriptScorer{}, nil).Select(context.Background(), "video.mp4", cfg, t.TempDir()))
	if !errors.Is(err, services.ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed, got %v", err)
	}
}

func TestProbeFromResult(t *testing.T) {
	result := ffprobe.Result{
		Streams: []ffprobe.Stream{{CodecType: "video", Width: 1920, Height: 1080, AvgFrameRate: "25/1"}},
		Format:  ffprobe.Format{Duration: "60"},
	}
	probe, err := ProbeFromResult(result)
	if err != nil {
		t.Fatalf("ProbeFromResult: %v", err)
	}
	if probe.FrameRate != 25 || probe.Width != 1920 || probe.DurationSeconds != 60 {
		t.Fatalf("unexpected probe %+v", probe)
	}
	if _, err := ProbeFromResult(ffprobe.Result{Streams: []ffprobe.Stream{{CodecType: "audio"}}}); err == nil {
		t.Fatal("expected error without video stream")
	}
}

func TestFFmpegDecoderArgs(t *testing.T) {
	d := NewFFmpegDecoder("", "")
	probe := Probe{FrameRate: 30, Width: 1920, Height: 1080}
	if w, h := d.outputSize(probe); w != 1280 || h != 720 {
		t.Fatalf("outputSize = %dx%d", w, h)
	}
	args := strings.Join(d.args("in.mp4", probe, 30), " ")
	if !strings.Contains(args, `select=not(mod(n\,30)),scale=1280:720`) || !strings.Contains(args, "-pix_fmt rgb24") {
		t.Fatalf("unexpected args %s", args)
	}
	small := Probe{FrameRate: 30, Width: 640, Height: 360}
	if !strings.Contains(strings.Join(d.args("in.mp4", small, 5), " "), "scale=640:360") {
		t.Fatal("small frames should keep their size through an explicit scale")
	}
}

func TestFFmpegDecoderArgsRotatedVideo(t *testing.T) {
	result := ffprobe.Result{Streams: []ffprobe.Stream{{
		CodecType:    "video",
		Width:        1280,
		Height:       720,
		AvgFrameRate: "30/1",
		SideDataList: []ffprobe.SideData{{SideDataType: "Display Matrix", Rotation: -90}},
	}}}
	probe, err := ProbeFromResult(result)
	if err != nil {
		t.Fatalf("ProbeFromResult: %v", err)
	}
	if probe.Width != 720 || probe.Height != 1280 {
		t.Fatalf("expected portrait display size, got %dx%d", probe.Width, probe.Height)
	}
	d := NewFFmpegDecoder("", "")
	if w, h := d.outputSize(probe); w != 720 || h != 1280 {
		t.Fatalf("outputSize = %dx%d", w, h)
	}
	args := strings.Join(d.args("phone.mp4", probe, 30), " ")
	if !strings.Contains(args, "scale=720:1280") {
		t.Fatalf("expected explicit portrait scale, got %s", args)
	}
}
