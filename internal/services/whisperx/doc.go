// Package whisperx runs WhisperX speech-to-text through uvx.
//
// Audio is first extracted with ffmpeg into a mono 16 kHz WAV, WhisperX
// writes a JSON transcript next to it, and the JSON segments are returned as
// transcript segments. Media without an audio stream is rejected before
// WhisperX is invoked.
package whisperx
