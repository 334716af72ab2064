package memory

import (
	"slices"
	"strings"

	"github.com/support-router/server/internal/agent/model"
)

const (
	// MaxSimilarIssues caps FindSimilarPastIssues results.
	MaxSimilarIssues = 3
	// minWordOverlap is the word overlap an issue needs when no category matches.
	minWordOverlap = 2
)

func wordSet(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func categorySet(categories []string) map[string]struct{} {
	set := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		set[c] = struct{}{}
	}
	return set
}

func overlap(a, b map[string]struct{}) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

// ScoreIssue scores a past conversation against a query and category set.
// ok is false when the issue is too dissimilar to be returned at all.
func ScoreIssue(query string, categories []string, issue model.ConversationSummary) (score int, ok bool) {
	catOverlap := overlap(categorySet(categories), categorySet(issue.Categories))
	wordOverlap := overlap(wordSet(query), wordSet(issue.Query))
	if catOverlap == 0 && wordOverlap <= minWordOverlap {
		return 0, false
	}
	return 2*catOverlap + wordOverlap, true
}

// RankSimilar returns up to limit qualifying issues by descending score.
// Equal scores keep chronological order.
func RankSimilar(query string, categories []string, history []model.ConversationSummary, limit int) []model.HistoricalIssue {
	ranked := make([]model.HistoricalIssue, 0, len(history))
	for _, h := range history {
		score, ok := ScoreIssue(query, categories, h)
		if !ok {
			continue
		}
		ranked = append(ranked, model.HistoricalIssue{
			ConversationSummary: h.Clone(),
			SimilarityScore:     score,
		})
	}
	slices.SortStableFunc(ranked, func(a, b model.HistoricalIssue) int {
		return b.SimilarityScore - a.SimilarityScore
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
