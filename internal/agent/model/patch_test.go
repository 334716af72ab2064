package model

import (
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_OnlyOverlaysPresentFields(t *testing.T) {
	s := NewConversationState("where is my order 123", "u1")
	s.Categories = []string{"billing"}
	s.Sentiment = Ptr("negative")
	s.Attempts = 1

	out := Merge(s, Patch{Response: Ptr("on its way")})

	assert.Equal(t, "on its way", out.ResponseText())
	assert.Equal(t, []string{"billing"}, out.Categories)
	assert.Equal(t, "negative", *out.Sentiment)
	assert.Equal(t, 1, out.Attempts)
	assert.Nil(t, s.Response, "input state must not change")
}

func TestMerge_AppendsHistory(t *testing.T) {
	s := NewConversationState("hi", "u1")
	s = Merge(s, Patch{History: []Message{{Role: RoleUser, Content: "hi"}}})
	s = Merge(s, Patch{History: []Message{{Role: RoleAssistant, Content: "hello"}}})

	require.Len(t, s.History, 2)
	assert.Equal(t, RoleUser, s.History[0].Role)
	assert.Equal(t, "hello", s.History[1].Content)
}

func TestMerge_DoesNotShareBackingArrays(t *testing.T) {
	cats := []string{"billing"}
	entities := map[string]string{"order_id": "1"}
	s := Merge(NewConversationState("q", "u"), Patch{Categories: cats, Entities: entities})

	cats[0] = "changed"
	entities["order_id"] = "2"

	assert.Equal(t, []string{"billing"}, s.Categories)
	assert.Equal(t, "1", s.Entities["order_id"])
}

func TestMerge_EmptySimilarIssuesIsStillApplied(t *testing.T) {
	s := NewConversationState("q", "u")
	s.SimilarPastIssues = []HistoricalIssue{{SimilarityScore: 3}}

	empty := []HistoricalIssue{}
	out := Merge(s, Patch{SimilarPastIssues: &empty})

	assert.Empty(t, out.SimilarPastIssues)
}

func TestPatch_IsEmpty(t *testing.T) {
	assert.True(t, Patch{}.IsEmpty())
	assert.False(t, Patch{Attempts: Ptr(0)}.IsEmpty())
	assert.False(t, Patch{History: []Message{{Role: RoleUser}}}.IsEmpty())
}

func TestPatch_CheckCategoriesWriteOnce(t *testing.T) {
	s := NewConversationState("q", "u")
	require.NoError(t, Patch{Categories: []string{"billing"}}.Check(s))
	assert.Error(t, Patch{Categories: []string{}}.Check(s))

	s.Categories = []string{"billing"}
	assert.NoError(t, Patch{Categories: []string{"billing"}}.Check(s))
	assert.Error(t, Patch{Categories: []string{"technical"}}.Check(s))
	assert.NoError(t, Patch{Response: Ptr("x")}.Check(s))
}

func TestConversationState_Accessors(t *testing.T) {
	s := NewConversationState("q", "u")
	assert.False(t, s.HasResponse())
	assert.False(t, s.IsSatisfactory())
	_, ok := s.OrderID()
	assert.False(t, ok)

	s.Response = Ptr("")
	assert.False(t, s.HasResponse())

	s.Satisfactory = Ptr(true)
	s.Entities["order_id"] = "12345"
	assert.True(t, s.IsSatisfactory())
	id, ok := s.OrderID()
	assert.True(t, ok)
	assert.Equal(t, "12345", id)
}

func TestMemoryDocument_Normalize(t *testing.T) {
	doc := &MemoryDocument{UserProfiles: map[string]*UserProfile{
		"u1":  {},
		"bad": nil,
	}}
	doc.Normalize()

	assert.NotNil(t, doc.SuccessfulPatterns)
	assert.NotNil(t, doc.KnowledgeBase)
	require.Contains(t, doc.UserProfiles, "u1")
	assert.NotContains(t, doc.UserProfiles, "bad")
	assert.Equal(t, "u1", doc.UserProfiles["u1"].UserID)
	assert.NotNil(t, doc.UserProfiles["u1"].CommonIssues)
}

func TestComputeCost(t *testing.T) {
	usage := &schema.TokenUsage{PromptTokens: 1_000_000, CompletionTokens: 500_000}
	in, out, total := ComputeCost(usage, ResolvePricing("gemini-2.5-flash"))
	assert.InDelta(t, 0.30, in, 1e-9)
	assert.InDelta(t, 1.25, out, 1e-9)
	assert.InDelta(t, 1.55, total, 1e-9)

	_, _, total = ComputeCost(usage, ResolvePricing("unknown-model"))
	assert.Zero(t, total)
	_, _, total = ComputeCost(nil, ResolvePricing("gemini-2.5-flash"))
	assert.Zero(t, total)
}
