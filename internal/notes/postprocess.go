package notes

import (
	"fmt"
	"path"
	"regexp"
	"slices"
	"strings"

	"vidnotes/internal/frames"
)

// imageRef matches markdown image syntax and captures alt text and target.
var imageRef = regexp.MustCompile(`!\[([^\]]*)\]\(\s*<?([^)\s>]+)>?(?:\s+"[^"]*")?\s*\)`)

// frameFileName matches the names the selector gives retained frames.
var frameFileName = regexp.MustCompile(`^frame_\d+\.(?:jpe?g|png)$`)

var extraBlankLines = regexp.MustCompile(`\n{3,}`)

var outerFence = regexp.MustCompile("(?s)^\\s*```(?:markdown|md)?[ \\t]*\\n(.*)\\n```\\s*$")

// stripOuterFence removes a code fence wrapped around the whole body.
func stripOuterFence(body string) string {
	if m := outerFence.FindStringSubmatch(body); m != nil {
		return m[1]
	}
	return body
}

// frameIndex resolves image targets to frames by canonical URL or by the
// basename of the target.
type frameIndex struct {
	byURL  map[string]frames.Record
	byFile map[string]frames.Record
	urls   map[string]string
	// prefix is the template expanded with an empty file ref.
	prefix string
}

func newFrameIndex(records []frames.Record, template, jobID string) frameIndex {
	idx := frameIndex{
		byURL:  make(map[string]frames.Record, len(records)),
		byFile: make(map[string]frames.Record, len(records)),
		urls:   make(map[string]string, len(records)),
		prefix: FrameURL(template, jobID, ""),
	}
	for _, r := range records {
		url := FrameURL(template, jobID, r.FileRef)
		idx.byURL[url] = r
		idx.byFile[r.FileRef] = r
		idx.urls[r.FileRef] = url
	}
	return idx
}

func (idx frameIndex) resolve(target string) (frames.Record, bool) {
	if r, ok := idx.byURL[target]; ok {
		return r, true
	}
	r, ok := idx.byFile[path.Base(stripQuery(target))]
	return r, ok
}

// looksLikeFrame reports whether target points at a frame, retained or not:
// it sits under this job's frame URL prefix or is named like a frame file.
func (idx frameIndex) looksLikeFrame(target string) bool {
	clean := stripQuery(target)
	if idx.prefix != "" && strings.HasPrefix(clean, idx.prefix) {
		return true
	}
	return frameFileName.MatchString(path.Base(clean))
}

func stripQuery(target string) string {
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		return target[:i]
	}
	return target
}

// rewriteImageRefs canonicalizes every image target that names a known frame
// and returns the set of referenced file refs. Frame targets that match no
// retained frame are replaced by their alt text; other images are kept.
func rewriteImageRefs(body string, idx frameIndex) (string, map[string]struct{}) {
	referenced := map[string]struct{}{}
	out := imageRef.ReplaceAllStringFunc(body, func(match string) string {
		m := imageRef.FindStringSubmatch(match)
		record, ok := idx.resolve(m[2])
		if !ok {
			if idx.looksLikeFrame(m[2]) {
				return strings.TrimSpace(m[1])
			}
			return match
		}
		referenced[record.FileRef] = struct{}{}
		return fmt.Sprintf("![%s](%s)", m[1], idx.urls[record.FileRef])
	})
	return extraBlankLines.ReplaceAllString(out, "\n\n"), referenced
}

// appendVisualContent lists qualifying frames the body never referenced.
func appendVisualContent(body string, in Input, idx frameIndex, referenced map[string]struct{}, threshold float64) string {
	var missing []frames.Record
	for _, r := range in.Frames {
		if r.Confidence < threshold {
			continue
		}
		if _, ok := referenced[r.FileRef]; ok {
			continue
		}
		missing = append(missing, r)
		referenced[r.FileRef] = struct{}{}
	}
	if len(missing) == 0 {
		return body
	}
	sortByTimestamp(missing)

	var b strings.Builder
	b.WriteString(strings.TrimRight(body, "\n"))
	b.WriteString("\n\n## Visual Content\n")
	for _, r := range missing {
		caption := frameCaption(r, in.Captions)
		fmt.Fprintf(&b, "\n![%s](%s)\n\n*%s*\n", altText(r), idx.urls[r.FileRef], caption)
	}
	return b.String()
}

func frameCaption(r frames.Record, captions map[string]string) string {
	if text := strings.TrimSpace(captions[r.FileRef]); text != "" {
		return fmt.Sprintf("%s: %s", FormatTimestamp(r.TimestampSeconds), clip(collapseSpace(text), 240))
	}
	return altText(r)
}

func altText(r frames.Record) string {
	concept := strings.TrimSpace(r.MatchedConcept)
	if concept == "" {
		concept = "frame"
	}
	return fmt.Sprintf("%s at %s", concept, FormatTimestamp(r.TimestampSeconds))
}

func collapseSpace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// embeddedRefs returns the referenced frames in timestamp order.
func embeddedRefs(records []frames.Record, referenced map[string]struct{}) []frames.Record {
	out := make([]frames.Record, 0, len(referenced))
	for _, r := range records {
		if _, ok := referenced[r.FileRef]; ok {
			out = append(out, r)
		}
	}
	sortByTimestamp(out)
	return out
}

func sortByTimestamp(records []frames.Record) {
	slices.SortStableFunc(records, func(a, b frames.Record) int {
		switch {
		case a.TimestampSeconds < b.TimestampSeconds:
			return -1
		case a.TimestampSeconds > b.TimestampSeconds:
			return 1
		default:
			return 0
		}
	})
}
