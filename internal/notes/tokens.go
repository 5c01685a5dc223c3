package notes

import (
	"log/slog"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"vidnotes/internal/logging"
)

// DefaultEncoding is the tokenizer used to budget transcript text.
const DefaultEncoding = "cl100k_base"

// NewTokenCounter loads a tiktoken encoding. Loading fetches the BPE ranks on
// first use, so offline hosts fall back to a character heuristic.
func NewTokenCounter(encoding string, logger *slog.Logger) TokenCounter {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		logging.WarnWithContext(logger, "token encoding unavailable; using heuristic counter", "token_encoding_fallback",
			logging.String("encoding", encoding),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "allow network access once or set TIKTOKEN_CACHE_DIR to a populated cache"),
			logging.String(logging.FieldImpact, "transcript budget is approximate"),
		)
		return HeuristicCounter{}
	}
	return &tiktokenCounter{encoding: enc}
}

type tiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

func (t *tiktokenCounter) Count(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}

func (t *tiktokenCounter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	tokens := t.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return t.encoding.Decode(tokens[:maxTokens])
}

// HeuristicCounter approximates one token per four characters.
type HeuristicCounter struct{}

const charsPerToken = 4

func (HeuristicCounter) Count(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + charsPerToken - 1) / charsPerToken
}

func (HeuristicCounter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	limit := maxTokens * charsPerToken
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit])
}
