package notes

import (
	"fmt"
	"strings"

	"vidnotes/internal/transcript"
)

const systemPrompt = `You are an expert note-taker. You turn lecture and presentation transcripts into thorough, well-structured study notes in GitHub-flavored markdown.

Rules:
- Organize the notes with headings that follow the flow of the video.
- Explain concepts in full sentences; keep definitions, formulas, and examples.
- Embed frames with markdown image syntax ![short caption](URL), placed next to the text they illustrate.
- Use only the frame URLs listed in the request, copied exactly. Never invent image URLs.
- Do not wrap the whole answer in a code fence.`

// BuildPrompt assembles the user prompt for one note.
func BuildPrompt(in Input, buckets []Bucket, opts Options, counter TokenCounter) string {
	opts = opts.withDefaults()
	if counter == nil {
		counter = HeuristicCounter{}
	}

	var b strings.Builder
	source := in.Transcript.Source.Label()
	if lang := in.Transcript.Language; lang != "" {
		source += " (" + lang + ")"
	}
	fmt.Fprintf(&b, "Transcript source: %s\n\n", source)

	text := strings.TrimSpace(in.Transcript.Text)
	truncated := counter.Truncate(text, opts.MaxTranscriptTokens)
	b.WriteString("## Transcript\n\n")
	b.WriteString(truncated)
	if len(truncated) < len(text) {
		b.WriteString("\n\n[transcript truncated]")
	}
	b.WriteString("\n\n")

	writeFrameSummary(&b, in, buckets, opts)

	b.WriteString("## Instructions\n\n")
	b.WriteString("Write detailed notes for this video using the transcript above.")
	if countFrames(buckets) > 0 {
		b.WriteString(" Embed the listed frames where they support the text, using ![short caption](URL) with the exact URL given for each frame.")
	} else {
		b.WriteString(" No frames were selected, so do not include any images.")
	}
	b.WriteString("\n")
	return b.String()
}

func writeFrameSummary(b *strings.Builder, in Input, buckets []Bucket, opts Options) {
	if countFrames(buckets) == 0 {
		return
	}
	b.WriteString("## Frames\n\n")
	for _, bucket := range buckets {
		fmt.Fprintf(b, "### %s - %s\n", FormatTimestamp(bucket.Start), FormatTimestamp(bucket.End))
		for _, f := range bucket.Frames {
			fmt.Fprintf(b, "- %s at %s (confidence %.2f): %s\n",
				f.MatchedConcept,
				FormatTimestamp(f.TimestampSeconds),
				f.Confidence,
				FrameURL(opts.URLTemplate, in.JobID, f.FileRef),
			)
			if caption := strings.TrimSpace(in.Captions[f.FileRef]); caption != "" {
				fmt.Fprintf(b, "  spoken nearby: %q\n", clip(caption, 200))
			}
		}
		b.WriteString("\n")
	}
}

func countFrames(buckets []Bucket) int {
	n := 0
	for _, bucket := range buckets {
		n += len(bucket.Frames)
	}
	return n
}

// FormatTimestamp renders seconds as M:SS or H:MM:SS.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	h, m, s := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func clip(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return strings.TrimSpace(string(runes[:limit])) + "..."
}

func sourceHeader(result transcript.Result) string {
	label := result.Source.Label()
	if label == "" {
		label = "unknown"
	}
	if result.Language != "" {
		label += ", " + result.Language
	}
	return fmt.Sprintf("> Transcript source: %s\n\n", label)
}
