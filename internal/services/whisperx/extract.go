package whisperx

import "fmt"

// extractAudioArgs builds the ffmpeg arguments that decode one audio stream
// into a mono 16kHz PCM WAV suitable for WhisperX.
func extractAudioArgs(source string, audioIndex int, dest string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-map", fmt.Sprintf("0:%d", audioIndex),
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dest,
	}
}
