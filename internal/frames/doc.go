// Package frames selects the still frames of a video that are worth
// embedding in a note.
//
// A Selector samples the video at a fixed cadence derived from its frame
// rate, scores each sampled frame against a configurable concept vocabulary,
// and keeps frames whose best concept probability exceeds the threshold.
// Retained frames are written as JPEG files and yielded lazily as Records.
package frames
