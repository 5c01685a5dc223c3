package transcript

import (
	"fmt"
	"html"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var (
	vttTagPattern   = regexp.MustCompile(`<[^>]*>`)
	vttBlankPattern = regexp.MustCompile(`\n[ \t]*\n`)
)

// ParseVTT parses WebVTT caption text into the concatenated transcript and
// its timed segments. Header, NOTE, STYLE, and REGION blocks are skipped. A
// cue whose timing cannot be parsed, or whose end is not after its start,
// contributes text but no segment. Segments are stable-sorted by start.
func ParseVTT(content string) (string, []Segment) {
	content = strings.TrimPrefix(content, "\ufeff")
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	var (
		texts    []string
		segments []Segment
	)
	for _, block := range vttBlankPattern.Split(content, -1) {
		lines := splitLines(block)
		if len(lines) == 0 || isMetadataBlock(lines[0]) {
			continue
		}
		timing := -1
		for i, line := range lines {
			if strings.Contains(line, "-->") {
				timing = i
				break
			}
		}
		textLines := lines
		if timing >= 0 {
			textLines = lines[timing+1:]
		}
		text := cleanCueText(textLines)
		if text == "" {
			continue
		}
		texts = append(texts, text)
		if timing < 0 {
			continue
		}
		start, end, ok := parseCueTiming(lines[timing])
		if !ok || end <= start {
			continue
		}
		segments = append(segments, Segment{Start: start, End: end, Text: text})
	}
	sortSegments(segments)
	return strings.Join(texts, " "), segments
}

// FormatVTT renders segments as a WebVTT document.
func FormatVTT(segments []Segment) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n")
	for _, seg := range segments {
		fmt.Fprintf(&b, "\n%s --> %s\n%s\n", formatVTTTimestamp(seg.Start), formatVTTTimestamp(seg.End), seg.Text)
	}
	return b.String()
}

func sortSegments(segments []Segment) {
	slices.SortStableFunc(segments, func(a, b Segment) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		default:
			return 0
		}
	})
}

func splitLines(block string) []string {
	raw := strings.Split(block, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}

func isMetadataBlock(first string) bool {
	if strings.HasPrefix(first, "WEBVTT") {
		return true
	}
	for _, keyword := range []string{"NOTE", "STYLE", "REGION"} {
		if first == keyword || strings.HasPrefix(first, keyword+" ") || strings.HasPrefix(first, keyword+"\t") {
			return true
		}
	}
	return false
}

func cleanCueText(lines []string) string {
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		line = vttTagPattern.ReplaceAllString(line, "")
		line = html.UnescapeString(line)
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " ")
}

func parseCueTiming(line string) (float64, float64, bool) {
	left, right, found := strings.Cut(line, "-->")
	if !found {
		return 0, 0, false
	}
	start, ok := parseVTTTimestamp(strings.TrimSpace(left))
	if !ok {
		return 0, 0, false
	}
	fields := strings.Fields(right)
	if len(fields) == 0 {
		return 0, 0, false
	}
	end, ok := parseVTTTimestamp(fields[0])
	if !ok {
		return 0, 0, false
	}
	return start, end, true
}

// parseVTTTimestamp accepts HH:MM:SS.mmm or MM:SS.mmm; a comma may replace
// the decimal point.
func parseVTTTimestamp(value string) (float64, bool) {
	value = strings.ReplaceAll(value, ",", ".")
	parts := strings.Split(value, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	hours := 0
	if len(parts) == 3 {
		h, err := strconv.Atoi(parts[0])
		if err != nil || h < 0 {
			return 0, false
		}
		hours = h
		parts = parts[1:]
	}
	minutes, err := strconv.Atoi(parts[0])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, false
	}
	secPart, fracPart, _ := strings.Cut(parts[1], ".")
	seconds, err := strconv.Atoi(secPart)
	if err != nil || seconds < 0 || seconds > 59 || len(secPart) != 2 {
		return 0, false
	}
	millis := 0
	if fracPart != "" {
		if len(fracPart) > 3 {
			fracPart = fracPart[:3]
		}
		for len(fracPart) < 3 {
			fracPart += "0"
		}
		ms, err := strconv.Atoi(fracPart)
		if err != nil || ms < 0 {
			return 0, false
		}
		millis = ms
	}
	return float64(hours*3600+minutes*60+seconds) + float64(millis)/1000, true
}

func formatVTTTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	totalMillis := int64(math.Round(seconds * 1000))
	hours := totalMillis / 3_600_000
	minutes := (totalMillis / 60_000) % 60
	secs := (totalMillis / 1000) % 60
	millis := totalMillis % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, secs, millis)
}
