package ffprobe

import (
	"context"
	"errors"
	"testing"
)

func TestResultHelpers(t *testing.T) {
	result := Result{
		Streams: []Stream{
			{Index: 0, CodecType: "video", Width: 1280, Height: 720, AvgFrameRate: "30000/1001", RFrameRate: "30/1", NBFrames: "300"},
			{Index: 1, CodecType: "audio"},
			{Index: 2, CodecType: "audio"},
		},
		Format: Format{Duration: "123.45"},
	}
	video, ok := result.VideoStream()
	if !ok || video.Width != 1280 || video.Height != 720 {
		t.Fatalf("unexpected video stream %+v", video)
	}
	if rate := video.FrameRate(); rate < 29.96 || rate > 29.98 {
		t.Fatalf("unexpected frame rate %v", rate)
	}
	if video.FrameCount() != 300 {
		t.Fatalf("unexpected frame count %d", video.FrameCount())
	}
	if result.AudioStreamCount() != 2 {
		t.Fatalf("expected 2 audio streams, got %d", result.AudioStreamCount())
	}
	if idx, ok := result.FirstAudioIndex(); !ok || idx != 1 {
		t.Fatalf("FirstAudioIndex = %d,%v", idx, ok)
	}
	if result.DurationSeconds() != 123.45 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
}

func TestVideoStreamSkipsCoverArt(t *testing.T) {
	cover := Stream{Index: 0, CodecType: "video"}
	cover.Disposition.AttachedPic = 1
	result := Result{Streams: []Stream{cover, {Index: 1, CodecType: "audio"}}}
	if _, ok := result.VideoStream(); ok {
		t.Fatal("cover art must not count as a video stream")
	}
}

func TestHelpersHandleInvalidNumbers(t *testing.T) {
	stream := Stream{AvgFrameRate: "0/0", RFrameRate: "bad", NBFrames: "N/A", Duration: "12.5"}
	if stream.FrameRate() != 0 {
		t.Fatalf("expected 0 frame rate, got %v", stream.FrameRate())
	}
	if stream.FrameCount() != 0 {
		t.Fatalf("expected 0 frames, got %d", stream.FrameCount())
	}
	result := Result{Streams: []Stream{{CodecType: "video", Duration: "12.5"}}, Format: Format{Duration: "bad"}}
	if result.DurationSeconds() != 12.5 {
		t.Fatalf("expected stream duration fallback, got %v", result.DurationSeconds())
	}
	if _, ok := (Result{}).FirstAudioIndex(); ok {
		t.Fatal("expected no audio stream")
	}
}

func TestStreamRotation(t *testing.T) {
	cases := []struct {
		stream Stream
		want   int
		w, h   int
	}{
		{Stream{Width: 1920, Height: 1080}, 0, 1920, 1080},
		{Stream{Width: 1280, Height: 720, SideDataList: []SideData{{SideDataType: "Display Matrix", Rotation: -90}}}, 270, 720, 1280},
		{Stream{Width: 1280, Height: 720, SideDataList: []SideData{{SideDataType: "Display Matrix", Rotation: 180}}}, 180, 1280, 720},
	}
	for _, tc := range cases {
		if got := tc.stream.Rotation(); got != tc.want {
			t.Fatalf("Rotation() = %d, want %d for %+v", got, tc.want, tc.stream)
		}
		if w, h := tc.stream.DisplaySize(); w != tc.w || h != tc.h {
			t.Fatalf("DisplaySize() = %dx%d, want %dx%d", w, h, tc.w, tc.h)
		}
	}
	tagged := Stream{Width: 1280, Height: 720}
	tagged.Tags.Rotate = "90"
	if tagged.Rotation() != 90 {
		t.Fatalf("expected rotate tag honoured, got %d", tagged.Rotation())
	}
}

func TestInspectWithParsesOutput(t *testing.T) {
	payload := `{"streams":[{"index":0,"codec_type":"video","width":640,"height":360,"avg_frame_rate":"25/1"}],"format":{"duration":"10.0"}}`
	var gotBinary string
	result, err := InspectWith(context.Background(), func(_ context.Context, name string, _ ...string) ([]byte, error) {
		gotBinary = name
		return []byte(payload), nil
	}, "", "/tmp/video.mp4")
	if err != nil {
		t.Fatalf("InspectWith: %v", err)
	}
	if gotBinary != DefaultBinary {
		t.Fatalf("binary = %s", gotBinary)
	}
	video, _ := result.VideoStream()
	if video.FrameRate() != 25 || result.DurationSeconds() != 10 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestInspectWithRejectsEmptyPathAndErrors(t *testing.T) {
	if _, err := Inspect(context.Background(), "", " "); err == nil {
		t.Fatal("expected error for empty path")
	}
	_, err := InspectWith(context.Background(), func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("moov atom not found")
	}, "ffprobe", "/tmp/broken.mp4")
	if err == nil {
		t.Fatal("expected runner error")
	}
}
