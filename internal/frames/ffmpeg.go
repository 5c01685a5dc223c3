package frames

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strings"
	"sync"

	"vidnotes/internal/media/ffprobe"
)

// FFmpegDecoder samples frames through an ffmpeg subprocess that emits raw
// RGB24 frames on stdout.
type FFmpegDecoder struct {
	FFmpegBinary  string
	FFprobeBinary string
	// MaxWidth downscales wider frames before scoring; 0 keeps source size.
	MaxWidth int

	inspect func(ctx context.Context, binary, path string) (ffprobe.Result, error)
}

// NewFFmpegDecoder returns a decoder using the given binaries.
func NewFFmpegDecoder(ffmpegBinary, ffprobeBinary string) *FFmpegDecoder {
	if ffmpegBinary == "" {
		ffmpegBinary = "ffmpeg"
	}
	return &FFmpegDecoder{
		FFmpegBinary:  ffmpegBinary,
		FFprobeBinary: ffprobeBinary,
		MaxWidth:      1280,
		inspect:       ffprobe.Inspect,
	}
}

// Probe reads frame rate, display dimensions, and duration with ffprobe.
func (d *FFmpegDecoder) Probe(ctx context.Context, path string) (Probe, error) {
	result, err := d.inspect(ctx, d.FFprobeBinary, path)
	if err != nil {
		return Probe{}, err
	}
	return ProbeFromResult(result)
}

// ProbeFromResult extracts sampling properties from an ffprobe result.
func ProbeFromResult(result ffprobe.Result) (Probe, error) {
	video, ok := result.VideoStream()
	if !ok {
		return Probe{}, errors.New("no video stream")
	}
	if video.Width <= 0 || video.Height <= 0 {
		return Probe{}, fmt.Errorf("invalid video dimensions %dx%d", video.Width, video.Height)
	}
	width, height := video.DisplaySize()
	return Probe{
		FrameRate:       video.FrameRate(),
		Width:           width,
		Height:          height,
		DurationSeconds: result.DurationSeconds(),
	}, nil
}

// outputSize returns the frame size ffmpeg will emit after scaling. Width and
// height stay even so the scale filter accepts them.
func (d *FFmpegDecoder) outputSize(probe Probe) (int, int) {
	if d.MaxWidth <= 0 || probe.Width <= d.MaxWidth {
		return probe.Width, probe.Height
	}
	w := d.MaxWidth &^ 1
	h := (probe.Height * w / probe.Width) &^ 1
	if h < 2 {
		h = 2
	}
	return w, h
}

// args always ends the filter chain with an explicit scale, so the emitted
// frame size matches what rawStream reads even if ffmpeg's auto-rotation
// disagrees with the probed display size.
func (d *FFmpegDecoder) args(path string, probe Probe, every int) []string {
	w, h := d.outputSize(probe)
	filter := fmt.Sprintf(`select=not(mod(n\,%d)),scale=%d:%d`, every, w, h)
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-i", path,
		"-an", "-sn", "-dn",
		"-vf", filter,
		"-fps_mode", "passthrough",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1",
	}
}

// Open starts ffmpeg and streams the selected frames.
func (d *FFmpegDecoder) Open(ctx context.Context, path string, probe Probe, every int) (Stream, error) {
	if every < 1 {
		every = 1
	}
	w, h := d.outputSize(probe)
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, d.FFmpegBinary, d.args(path, probe, every)...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	stderr := &limitedBuffer{limit: 8 << 10}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	return &rawStream{
		cmd:    cmd,
		cancel: cancel,
		reader: bufio.NewReaderSize(stdout, w*h*3),
		stderr: stderr,
		width:  w,
		height: h,
		every:  every,
	}, nil
}

type rawStream struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	reader *bufio.Reader
	stderr *limitedBuffer
	width  int
	height int
	every  int
	count  int

	closeOnce sync.Once
	closeErr  error
}

func (s *rawStream) Next() (Frame, error) {
	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	row := make([]byte, s.width*3)
	for y := 0; y < s.height; y++ {
		if _, err := io.ReadFull(s.reader, row); err != nil {
			if y == 0 && errors.Is(err, io.EOF) {
				if waitErr := s.wait(); waitErr != nil {
					return Frame{}, waitErr
				}
				return Frame{}, io.EOF
			}
			if waitErr := s.wait(); waitErr != nil {
				return Frame{}, waitErr
			}
			return Frame{}, fmt.Errorf("truncated frame: %w", err)
		}
		offset := y * img.Stride
		for x := 0; x < s.width; x++ {
			img.Pix[offset+x*4] = row[x*3]
			img.Pix[offset+x*4+1] = row[x*3+1]
			img.Pix[offset+x*4+2] = row[x*3+2]
			img.Pix[offset+x*4+3] = 0xff
		}
	}
	frame := Frame{Index: s.count * s.every, Image: img}
	s.count++
	return frame, nil
}

func (s *rawStream) wait() error {
	s.closeOnce.Do(func() {
		err := s.cmd.Wait()
		s.cancel()
		if err != nil {
			detail := strings.TrimSpace(s.stderr.String())
			if detail != "" {
				s.closeErr = fmt.Errorf("ffmpeg: %w: %s", err, detail)
			} else {
				s.closeErr = fmt.Errorf("ffmpeg: %w", err)
			}
		}
	})
	return s.closeErr
}

// Close stops ffmpeg. Errors caused by the early stop are not reported.
func (s *rawStream) Close() error {
	s.cancel()
	_ = s.wait()
	return nil
}

type limitedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
