package parsers

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/support-router/server/internal/agent/graph/prompts"
	logx "github.com/support-router/server/pkg/logger"
)

// Sentiment labels.
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 16 * 1024
	maxTupleLen   = 1024
)

// Sentiment is the parsed outcome of a sentiment completion.
type Sentiment struct {
	Label      string
	Confidence float64
	// Structured is false when the label came from a keyword scan.
	Structured bool
}

type rawTuple struct {
	Type  string
	Parts []string
}

func parseRawTuple(s string) (*rawTuple, error) {
	if s == "" {
		return nil, fmt.Errorf("empty tuple")
	}
	if len(s) > maxTupleLen {
		return nil, fmt.Errorf("tuple too large")
	}

	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return nil, fmt.Errorf("invalid tuple parens")
	}
	inner := s[1 : len(s)-1]
	parts := strings.SplitN(inner, prompts.TupleDelim, 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid tuple parts")
	}
	return &rawTuple{Type: strings.TrimSpace(parts[0]), Parts: parts}, nil
}

func parseFloatInRange(s, name string, min, max float64) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse: %w", name, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s invalid number", name)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("%s out of range", name)
	}
	return v, nil
}

func normalizeLabel(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case SentimentPositive:
		return SentimentPositive, true
	case SentimentNeutral:
		return SentimentNeutral, true
	case SentimentNegative:
		return SentimentNegative, true
	}
	return "", false
}

// ParseSentiment reads a (sentiment<||>label<||>confidence) record from a
// completion. Replies that ignore the format are scanned for a label keyword;
// anything else is neutral.
func ParseSentiment(content string) Sentiment {
	if len(content) > maxContentLen {
		logx.Warn().
			Str("component", "sentiment_parser").
			Int("max_len", maxContentLen).
			Int("orig_len", len(content)).
			Msg("content truncated due to size limit")
		content = content[:maxContentLen]
	}
	if !utf8.ValidString(content) {
		content = strings.ToValidUTF8(content, "")
	}
	if idx := strings.Index(content, prompts.CompleteDelim); idx >= 0 {
		content = content[:idx]
	}
	content = strings.TrimSpace(content)

	if start := strings.Index(content, "("); start >= 0 {
		if end := strings.LastIndex(content, ")"); end > start {
			if rt, err := parseRawTuple(content[start : end+1]); err == nil && rt.Type == "sentiment" {
				if label, ok := normalizeLabel(rt.Parts[1]); ok {
					out := Sentiment{Label: label, Confidence: 1, Structured: true}
					if len(rt.Parts) == 3 {
						if c, err := parseFloatInRange(rt.Parts[2], "sentiment.confidence", 0, 1); err == nil {
							out.Confidence = c
						}
					}
					return out
				}
			}
		}
	}

	lower := strings.ToLower(content)
	// negative first so "not positive" style replies lean cautious
	for _, label := range []string{SentimentNegative, SentimentPositive, SentimentNeutral} {
		if strings.Contains(lower, label) {
			return Sentiment{Label: label, Confidence: 0.5}
		}
	}
	return Sentiment{Label: SentimentNeutral, Confidence: 0}
}

// PriorityFor maps a sentiment label to a ticket priority.
func PriorityFor(label string) string {
	if label == SentimentNegative {
		return "high"
	}
	return "normal"
}
