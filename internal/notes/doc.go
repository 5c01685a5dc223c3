// Package notes turns a transcript and its selected frames into a markdown
// note.
//
// The Synthesizer buckets frames by time, builds a generation request with
// the transcript and a frame summary, and post-processes the generated body
// so every high-confidence frame is reachable: frames the model left out are
// listed under a trailing "Visual Content" section.
package notes
