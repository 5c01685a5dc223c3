// Package transcript obtains a time-stamped transcript for a video.
//
// Acquisition is an ordered chain of strategies folded by the Acquirer: the
// first success wins, a skip moves on to the next strategy, and a fatal result
// ends the chain. The default chain prefers manual captions, then automatic
// captions, and finally falls back to speech-to-text on the decoded audio.
// ParseVTT turns WebVTT caption files into flat text plus ordered segments.
package transcript
