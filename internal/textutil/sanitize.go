package textutil

import (
	"net/url"
	"path"
	"strings"
)

// fileNameReplacer replaces filesystem-unsafe characters with safe alternatives.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
	"\x00", "",
)

// SanitizeFileName replaces filesystem-unsafe characters in a filename.
// Slashes, backslashes, colons, and asterisks become dashes; other unsafe
// characters are removed. Leading dots are stripped so the result is never
// hidden or a relative path component.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(fileNameReplacer.Replace(strings.TrimSpace(name)))
	return strings.TrimSpace(strings.TrimLeft(name, "."))
}

// SourceStem derives a readable base name (no extension) from a video URL or
// local path, falling back to fallback when nothing usable remains.
func SourceStem(source, fallback string) string {
	source = strings.TrimSpace(source)
	if parsed, err := url.Parse(source); err == nil && parsed.Scheme != "" && parsed.Host != "" {
		source = strings.TrimSuffix(parsed.Path, "/")
		if source == "" {
			return SanitizeFileName(parsed.Hostname())
		}
	}
	base := path.Base(strings.ReplaceAll(source, "\\", "/"))
	if base == "." || base == "/" {
		base = ""
	}
	base = strings.TrimSuffix(base, path.Ext(base))
	if stem := SanitizeFileName(base); stem != "" {
		return stem
	}
	return fallback
}
