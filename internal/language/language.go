package language

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Canonical returns the canonical BCP 47 form of a language tag ("en-us" ->
// "en-US"). Unparseable input is returned trimmed and unchanged.
func Canonical(tag string) string {
	tag = strings.TrimSpace(strings.ReplaceAll(tag, "_", "-"))
	if tag == "" {
		return ""
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	return parsed.String()
}

// Equal reports whether two tags name the same language variant.
func Equal(a, b string) bool {
	ca, cb := Canonical(a), Canonical(b)
	return ca != "" && strings.EqualFold(ca, cb)
}

// Match walks priority in order and returns the first entry of available that
// equals it after canonicalization. The returned value is the available
// spelling so callers can pass it back to the source unchanged.
func Match(priority, available []string) (string, bool) {
	if len(available) == 0 {
		return "", false
	}
	canon := make(map[string]string, len(available))
	for _, tag := range available {
		key := strings.ToLower(Canonical(tag))
		if key == "" {
			continue
		}
		if _, exists := canon[key]; !exists {
			canon[key] = tag
		}
	}
	for _, want := range priority {
		if tag, ok := canon[strings.ToLower(Canonical(want))]; ok {
			return tag, true
		}
	}
	return "", false
}

// ToISO2 returns the two-letter base language of a tag ("en-GB" -> "en").
// Returns empty string for unrecognized input.
func ToISO2(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ""
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return ""
	}
	base, confidence := parsed.Base()
	if confidence == language.No {
		return ""
	}
	code := base.String()
	if len(code) != 2 {
		return ""
	}
	return code
}

// DisplayName returns an English name for the tag, or "Unknown" when empty.
func DisplayName(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return "Unknown"
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return strings.ToUpper(tag)
	}
	if name := display.English.Tags().Name(parsed); name != "" {
		return name
	}
	return strings.ToUpper(tag)
}

// NormalizeList canonicalizes and deduplicates a priority list, preserving
// order.
func NormalizeList(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		canon := Canonical(tag)
		if canon == "" {
			continue
		}
		key := strings.ToLower(canon)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, canon)
	}
	return out
}
