// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Inspect runs ffprobe and returns the parsed Result. Helper methods expose
// the values the pipeline needs: the primary video stream with its frame rate
// and dimensions, audio stream presence, and container duration.
package ffprobe
