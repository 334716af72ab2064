package conversations

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/support-router/server/internal/agent/model"
)

// ContextBuilder turns what the store remembers into prompt context for the
// category handlers.
type ContextBuilder struct {
	maxIssues      int
	maxResolutions int
}

// NewContextBuilder returns a builder; non-positive limits fall back to 2.
func NewContextBuilder(maxIssues, maxResolutions int) *ContextBuilder {
	if maxIssues <= 0 {
		maxIssues = 2
	}
	if maxResolutions <= 0 {
		maxResolutions = 2
	}
	return &ContextBuilder{maxIssues: maxIssues, maxResolutions: maxResolutions}
}

// Build renders the similar past issues and the knowledge base entry of s.
// It returns "" when neither is present.
func (cb *ContextBuilder) Build(s model.ConversationState) string {
	var b strings.Builder

	issues := trimHead(s.SimilarPastIssues, cb.maxIssues)
	if len(issues) > 0 {
		b.WriteString("Similar past issues:\n")
		for _, issue := range issues {
			if issue.Query == "" {
				continue
			}
			fmt.Fprintf(&b, "- Previous: %s -> %s\n", issue.Query, issue.Response)
		}
	}

	if kb := s.KnowledgeEntry; kb != nil {
		fmt.Fprintf(&b, "Knowledge base (%s):\n", strings.Join(kb.Categories, ", "))
		for _, r := range trimHead(kb.Resolutions, cb.maxResolutions) {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}

	return strings.TrimSpace(b.String())
}

// FormatEntities renders entities as sorted key=value pairs.
func FormatEntities(entities map[string]string) string {
	if len(entities) == 0 {
		return ""
	}
	parts := make([]string, 0, len(entities))
	for _, k := range slices.Sorted(maps.Keys(entities)) {
		parts = append(parts, k+"="+entities[k])
	}
	return strings.Join(parts, ", ")
}

func trimHead[T any](s []T, n int) []T {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
