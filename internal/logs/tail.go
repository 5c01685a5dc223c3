package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const (
	// MaxLines caps a single read so a huge log cannot blow up one response.
	MaxLines = 5000

	pollInterval  = 250 * time.Millisecond
	maxLineLength = 1 << 20
)

// Options selects which part of a log to read.
type Options struct {
	// Offset is a byte position from a previous Chunk. Negative means
	// "start from the last Limit lines".
	Offset int64
	Limit  int
	// Wait long-polls for new lines when the read comes back empty.
	Wait time.Duration
}

// Chunk is one read. Offset is where the next read should resume.
type Chunk struct {
	Lines  []string
	Offset int64
}

// Tail reads lines from path. A missing file yields an empty chunk at
// offset zero so callers can poll before the job writes its first line.
func Tail(ctx context.Context, path string, opts Options) (Chunk, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return Chunk{}, nil
	}
	if err != nil {
		return Chunk{}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return Chunk{}, fmt.Errorf("log path %q is a directory", path)
	}

	limit := opts.Limit
	if limit <= 0 || limit > MaxLines {
		limit = MaxLines
	}

	var chunk Chunk
	if opts.Offset < 0 {
		chunk, err = lastLines(path, limit)
	} else {
		offset := opts.Offset
		if offset > info.Size() {
			// Truncated or rotated; resume from the current end.
			offset = info.Size()
		}
		chunk, err = readFrom(path, offset, limit)
	}
	if err != nil || len(chunk.Lines) > 0 || opts.Wait <= 0 {
		return chunk, err
	}
	return waitForLines(ctx, path, chunk.Offset, limit, opts.Wait)
}

func lastLines(path string, limit int) (Chunk, error) {
	file, err := os.Open(path)
	if err != nil {
		return Chunk{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	ring := make([]string, limit)
	count, next := 0, 0
	scanner := newScanner(file)
	for scanner.Scan() {
		ring[next] = scanner.Text()
		next = (next + 1) % limit
		if count < limit {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return Chunk{}, fmt.Errorf("read log file: %w", err)
	}
	end, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return Chunk{}, fmt.Errorf("determine log offset: %w", err)
	}

	lines := make([]string, count)
	start := 0
	if count == limit {
		start = next
	}
	for i := range count {
		lines[i] = ring[(start+i)%limit]
	}
	return Chunk{Lines: lines, Offset: end}, nil
}

// readFrom returns up to limit complete lines starting at offset. A trailing
// partial line is left for the next read.
func readFrom(path string, offset int64, limit int) (Chunk, error) {
	file, err := os.Open(path)
	if err != nil {
		return Chunk{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return Chunk{}, fmt.Errorf("seek log file: %w", err)
	}

	chunk := Chunk{Offset: offset}
	reader := bufio.NewReaderSize(file, 64*1024)
	for len(chunk.Lines) < limit {
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			break
		}
		if err != nil {
			return Chunk{}, fmt.Errorf("read log file: %w", err)
		}
		chunk.Offset += int64(len(line))
		chunk.Lines = append(chunk.Lines, trimNewline(line))
	}
	return chunk, nil
}

func waitForLines(ctx context.Context, path string, offset int64, limit int, wait time.Duration) (Chunk, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Chunk{Offset: offset}, ctx.Err()
		case <-timer.C:
			return Chunk{Offset: offset}, nil
		case <-ticker.C:
		}
		chunk, err := readFrom(path, offset, limit)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil || len(chunk.Lines) > 0 {
			return chunk, err
		}
	}
}

func newScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	return scanner
}

func trimNewline(line string) string {
	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}
