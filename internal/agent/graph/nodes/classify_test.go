package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/support-router/server/internal/agent/model"
)

func TestExtractEntities(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"order id 98765 missing", "98765"},
		{"I have a billing issue with order 12345", "12345"},
		{"Order #4412 never arrived", "4412"},
		{"ORDER 555 is late", "555"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractEntities(tt.query)["order_id"])
		})
	}
}

func TestExtractEntities_NoFalseMatch(t *testing.T) {
	for _, q := range []string{"ordering pizza", "order status please", "reorder 12345", "my order"} {
		assert.NotContains(t, ExtractEntities(q), "order_id", q)
	}
}

func TestIsGreeting(t *testing.T) {
	for _, q := range []string{"hi", "Hello!", "  hey ", "good morning."} {
		assert.True(t, IsGreeting(q), q)
	}
	for _, q := range []string{"hi, my card was charged twice", "highway", "hello there I need a refund"} {
		assert.False(t, IsGreeting(q), q)
	}
}

func TestInferCategories(t *testing.T) {
	issue := func(cats ...string) model.HistoricalIssue {
		return model.HistoricalIssue{ConversationSummary: model.ConversationSummary{Categories: cats}}
	}

	assert.Empty(t, InferCategories(nil))
	assert.Equal(t, []string{"returns"}, InferCategories([]model.HistoricalIssue{issue("returns")}))
	assert.Equal(t,
		[]string{"technical", "billing"},
		InferCategories([]model.HistoricalIssue{issue("billing", "technical"), issue("technical", "returns")}),
	)
	// only the two most similar issues vote
	assert.Equal(t,
		[]string{"billing"},
		InferCategories([]model.HistoricalIssue{issue("billing"), issue("billing"), issue("general")}),
	)
}

func TestClassify_Greeting(t *testing.T) {
	steps, _ := newTestSteps(t, &scripted{})
	p, err := steps.Classify(context.Background(), model.NewConversationState("hello", "u1"))
	require.NoError(t, err)

	assert.Equal(t, []string{CategoryGeneral}, p.Categories)
	assert.Empty(t, p.Entities)
	require.Len(t, p.History, 1)
	assert.Equal(t, model.RoleUser, p.History[0].Role)
}

func TestClassify_DefaultsWithoutHistory(t *testing.T) {
	steps, _ := newTestSteps(t, &scripted{})
	p, err := steps.Classify(context.Background(), model.NewConversationState("I have a billing issue with order 12345", "u1"))
	require.NoError(t, err)

	assert.Equal(t, DefaultCategories, p.Categories)
	assert.Equal(t, map[string]string{"order_id": "12345"}, p.Entities)
}

func TestClassify_InfersFromSimilarHistory(t *testing.T) {
	steps, store := newTestSteps(t, &scripted{})
	ctx := context.Background()
	require.NoError(t, store.SaveConversation(ctx, "u1", model.ConversationSummary{
		Query:      "how do I send back the blue jacket",
		Categories: []string{CategoryReturns},
	}))

	p, err := steps.Classify(ctx, model.NewConversationState("can I send back the jacket I bought", "u1"))
	require.NoError(t, err)
	assert.Equal(t, []string{CategoryReturns}, p.Categories)
}

func TestNewSteps_ConfiguredDefaults(t *testing.T) {
	steps, _ := newTestSteps(t, &scripted{})
	assert.Equal(t, DefaultCategories, steps.defaultCategories)

	custom, err := NewSteps(StepsConfig{
		Store:             steps.store,
		Completer:         &scripted{},
		DefaultCategories: []string{" general ", ""},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"general"}, custom.defaultCategories)

	_, err = NewSteps(StepsConfig{Completer: &scripted{}})
	assert.Error(t, err)
	_, err = NewSteps(StepsConfig{Store: steps.store})
	assert.Error(t, err)
}
