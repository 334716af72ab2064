package nodes

import (
	"context"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/support-router/server/internal/agent/memory"
	"github.com/support-router/server/internal/agent/model"
	logx "github.com/support-router/server/pkg/logger"
)

// Categories with a dedicated handler.
const (
	CategoryBilling   = "billing"
	CategoryTechnical = "technical"
	CategoryReturns   = "returns"
	CategoryGeneral   = "general"
)

var (
	// "order 12345", "order id 98765", "Order #4412"; never "ordering".
	orderIDPattern  = regexp.MustCompile(`(?i)\border(?:\s*id)?\s*#?\s*(\d{3,12})\b`)
	greetingPattern = regexp.MustCompile(`(?i)^\s*(?:hi|hello|hey|good\s+(?:morning|afternoon|evening))\s*[!.?,]*\s*$`)
)

// maxInferredCategories bounds categories inferred from similar issues.
const maxInferredCategories = 2

// ExtractEntities pulls deterministic entities out of a query.
func ExtractEntities(query string) map[string]string {
	entities := map[string]string{}
	if m := orderIDPattern.FindStringSubmatch(query); m != nil {
		entities["order_id"] = m[1]
	}
	return entities
}

// IsGreeting reports whether the whole query is a bare greeting.
func IsGreeting(query string) bool {
	return greetingPattern.MatchString(query)
}

// InferCategories picks the most common categories among the two most
// similar past issues. Ties keep first-occurrence order.
func InferCategories(similar []model.HistoricalIssue) []string {
	if len(similar) > 2 {
		similar = similar[:2]
	}
	counts := map[string]int{}
	var order []string
	for _, issue := range similar {
		for _, c := range issue.Categories {
			if _, seen := counts[c]; !seen {
				order = append(order, c)
			}
			counts[c]++
		}
	}
	slices.SortStableFunc(order, func(a, b string) int {
		return counts[b] - counts[a]
	})
	if len(order) > maxInferredCategories {
		order = order[:maxInferredCategories]
	}
	return order
}

// Classify sets categories and entities and records the user turn.
func (s *Steps) Classify(ctx context.Context, st model.ConversationState) (model.Patch, error) {
	patch := model.Patch{
		History: []model.Message{{Role: model.RoleUser, Content: st.Query}},
	}

	if IsGreeting(st.Query) {
		patch.Categories = []string{CategoryGeneral}
		patch.Entities = map[string]string{}
		logx.Debug().Str("user_id", st.UserID).Msg("greeting detected")
		return patch, nil
	}

	profile := s.store.GetOrCreateProfile(st.UserID)
	similar := s.store.FindSimilarPastIssues(st.UserID, st.Query, nil)

	categories := InferCategories(similar)
	source := "history"
	if len(categories) == 0 {
		categories = slices.Clone(s.defaultCategories)
		source = "default"
	}

	patch.Categories = categories
	patch.Entities = ExtractEntities(st.Query)

	logx.Debug().
		Str("user_id", st.UserID).
		Strs("categories", categories).
		Str("source", source).
		Strs("common_issues", memory.TopCommonIssues(profile, 2)).
		Int("similar_issues", len(similar)).
		Str("entities", strings.Join(slices.Sorted(maps.Keys(patch.Entities)), ",")).
		Msg("query classified")
	return patch, nil
}
