package whisperx

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"vidnotes/internal/media/ffprobe"
)

func probeWithAudio(context.Context, string) (ffprobe.Result, error) {
	return ffprobe.Result{Streams: []ffprobe.Stream{
		{Index: 0, CodecType: "video"},
		{Index: 1, CodecType: "audio"},
	}}, nil
}

func TestTranscribeRunsFFmpegThenWhisperX(t *testing.T) {
	workDir := t.TempDir()
	svc := NewService(Config{Model: "small", VADMethod: VADMethodPyannote, HFToken: "hf_x"}, "", "")
	svc.WithProber(probeWithAudio)

	var calls [][]string
	svc.WithCommandRunner(func(_ context.Context, name string, args ...string) error {
		calls = append(calls, append([]string{name}, args...))
		if name == UVXCommand {
			payload := `{"segments":[{"text":" hello there","start":0.5,"end":2.0},{"text":"general","start":2.0,"end":3.25}]}`
			return os.WriteFile(filepath.Join(workDir, "whisperx", "audio.json"), []byte(payload), 0o644)
		}
		return nil
	})

	segments, err := svc.Transcribe(context.Background(), "/videos/lecture.mp4", workDir, "en-US")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(segments) != 2 || segments[1].Start != 2.0 || segments[1].End != 3.25 {
		t.Fatalf("unexpected segments %+v", segments)
	}
	if len(calls) != 2 || calls[0][0] != FFmpegCommand || calls[1][0] != UVXCommand {
		t.Fatalf("unexpected calls %v", calls)
	}
	if !slices.Contains(calls[0], "0:1") {
		t.Fatalf("ffmpeg should map the audio stream: %v", calls[0])
	}
	joined := strings.Join(calls[1], " ")
	for _, want := range []string{"--model small", "--language en", "--vad_method pyannote", "--hf_token hf_x", "--device cpu"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("whisperx args missing %q: %s", want, joined)
		}
	}
}

func TestTranscribeRejectsMediaWithoutAudio(t *testing.T) {
	svc := NewService(Config{}, "", "")
	svc.WithProber(func(context.Context, string) (ffprobe.Result, error) {
		return ffprobe.Result{Streams: []ffprobe.Stream{{Index: 0, CodecType: "video"}}}, nil
	})
	called := false
	svc.WithCommandRunner(func(context.Context, string, ...string) error {
		called = true
		return nil
	})
	_, err := svc.Transcribe(context.Background(), "/videos/silent.mp4", t.TempDir(), "en")
	if !errors.Is(err, ErrNoAudio) {
		t.Fatalf("expected ErrNoAudio, got %v", err)
	}
	if called {
		t.Fatal("no command should run for media without audio")
	}
}

func TestBuildArgsCUDA(t *testing.T) {
	svc := NewService(Config{CUDAEnabled: true}, "", "")
	args := svc.buildArgs("/tmp/a.wav", "/tmp/out", "")
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--index-url "+CUDAIndexURL) || !strings.Contains(joined, "--device cuda") {
		t.Fatalf("unexpected CUDA args: %s", joined)
	}
	if strings.Contains(joined, "--language") {
		t.Fatalf("empty language should not add a flag: %s", joined)
	}
	if !strings.Contains(joined, "--model "+DefaultModel) {
		t.Fatalf("expected default model: %s", joined)
	}
}
