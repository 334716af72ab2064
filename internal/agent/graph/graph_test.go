package graph

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/support-router/server/internal/agent/graph/nodes"
	"github.com/support-router/server/internal/agent/memory"
	"github.com/support-router/server/internal/agent/model"
	errx "github.com/support-router/server/internal/core/error"
)

type memRepo struct {
	mu  sync.Mutex
	doc []byte
}

func (r *memRepo) Load(ctx context.Context) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.doc == nil {
		return nil, model.ErrDocumentNotFound
	}
	return r.doc, nil
}

func (r *memRepo) Save(ctx context.Context, doc []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc = append([]byte(nil), doc...)
	return nil
}

// nopStore satisfies nodes.MemoryStore with an empty memory.
type nopStore struct{}

func (nopStore) GetOrCreateProfile(userID string) model.UserProfile {
	return model.UserProfile{UserID: userID}
}
func (nopStore) FindSimilarPastIssues(string, string, []string) []model.HistoricalIssue { return nil }
func (nopStore) GetKnowledgeBaseEntry([]string) (*model.KnowledgeBaseEntry, bool)      { return nil, false }
func (nopStore) SaveConversation(context.Context, string, model.ConversationSummary) error {
	return nil
}
func (nopStore) UpdateKnowledgeBase(context.Context, []string, string, string) error { return nil }

// fakeModel answers by prompt kind and counts validation calls.
type fakeModel struct {
	mu        sync.Mutex
	validate  []string
	validates int
}

func (m *fakeModel) Complete(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case strings.HasPrefix(prompt, "Classify the sentiment"):
		return "(sentiment<||>negative<||>0.8)<|COMPLETE|>", nil
	case strings.HasPrefix(prompt, "Does the response below"):
		m.validates++
		reply := m.validate[0]
		if len(m.validate) > 1 {
			m.validate = m.validate[1:]
		}
		return reply, nil
	case strings.Contains(prompt, "billing query"):
		return "Billing reply.", nil
	case strings.Contains(prompt, "technical support query"):
		return "Technical reply.", nil
	case strings.Contains(prompt, "general inquiry"):
		return "Hi there!", nil
	case strings.HasPrefix(prompt, "You are a customer support assistant"):
		return "Regenerated reply.", nil
	}
	return "", errors.New("unexpected prompt")
}

func newRunner(t *testing.T, m model.Completer) (Runner, *memory.Store) {
	t.Helper()
	ctx := context.Background()
	store, err := memory.Open(ctx, &memRepo{})
	require.NoError(t, err)
	runner, err := BuildSupportGraph(ctx, Config{Store: store, Completer: m})
	require.NoError(t, err)
	return runner, store
}

func TestRun_BillingScenarioWithEmptyStore(t *testing.T) {
	m := &fakeModel{validate: []string{"yes"}}
	runner, store := newRunner(t, m)

	out, err := runner.Run(context.Background(),
		model.NewConversationState("I have a billing issue with order 12345", "u1"))
	require.NoError(t, err)

	assert.Equal(t, []string{"billing", "technical"}, out.Categories)
	assert.Equal(t, "12345", out.Entities["order_id"])
	assert.Equal(t, "Billing reply. Technical reply.", out.ResponseText())
	assert.True(t, out.IsSatisfactory())
	assert.False(t, out.EscalationNeeded)
	assert.Equal(t, 0, out.Attempts)
	assert.True(t, out.MemoryLoaded)
	assert.Equal(t, "negative", *out.Sentiment)
	assert.Equal(t, "high", *out.Priority)

	p, ok := store.Profile("u1")
	require.True(t, ok)
	assert.Equal(t, 1, p.TotalInteractions)
	assert.Equal(t, model.Stats{TotalConversations: 1, ResolvedIssues: 1}, store.GetStats())
	_, ok = store.GetKnowledgeBaseEntry([]string{"technical", "billing"})
	assert.True(t, ok)
}

func TestRun_RetryThenSatisfied(t *testing.T) {
	m := &fakeModel{validate: []string{"no", "yes"}}
	runner, store := newRunner(t, m)

	out, err := runner.Run(context.Background(), model.NewConversationState("hello", "u2"))
	require.NoError(t, err)

	assert.Equal(t, []string{"general"}, out.Categories)
	assert.Equal(t, "Regenerated reply.", out.ResponseText())
	assert.Equal(t, 1, out.Attempts)
	assert.True(t, out.IsSatisfactory())
	assert.Equal(t, 2, m.validates)
	assert.Equal(t, 1, store.GetStats().TotalConversations)
}

func TestRun_EscalatesAfterMaxAttempts(t *testing.T) {
	m := &fakeModel{validate: []string{"no"}}
	runner, store := newRunner(t, m)

	out, err := runner.Run(context.Background(), model.NewConversationState("hello", "u3"))
	require.NoError(t, err)

	assert.True(t, out.EscalationNeeded)
	assert.Equal(t, nodes.EscalationResponse, out.ResponseText())
	assert.Equal(t, MaxAttempts, out.Attempts)
	assert.False(t, out.IsSatisfactory())
	assert.Equal(t, MaxAttempts, m.validates)

	// saved exactly once, unresolved
	assert.Equal(t, model.Stats{TotalConversations: 1}, store.GetStats())
	p, _ := store.Profile("u3")
	require.Len(t, p.History, 1)
	assert.Equal(t, nodes.EscalationResponse, p.History[0].Response)
}

func TestRun_SeededAttemptsAtBoundEscalateImmediately(t *testing.T) {
	m := &fakeModel{validate: []string{"no"}}
	runner, _ := newRunner(t, m)

	in := model.NewConversationState("hello", "u4")
	in.Attempts = MaxAttempts - 1
	out, err := runner.Run(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, out.EscalationNeeded)
	assert.Equal(t, 1, m.validates)
}

func TestRun_NegativeAttemptsAreClamped(t *testing.T) {
	m := &fakeModel{validate: []string{"no"}}
	runner, _ := newRunner(t, m)

	in := model.NewConversationState("hello", "u5")
	in.Attempts = -4
	out, err := runner.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, MaxAttempts, m.validates)
	assert.Equal(t, MaxAttempts, out.Attempts)
}

func TestRun_ModelDownStillCompletes(t *testing.T) {
	down := model.CompleterFunc(func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("unavailable")
	})
	runner, store := newRunner(t, down)

	out, err := runner.Run(context.Background(),
		model.NewConversationState("I have a billing issue with order 12345", "u1"))
	require.NoError(t, err)
	assert.Contains(t, out.ResponseText(), "I've checked your order 12345.")
	assert.True(t, out.IsSatisfactory(), "validation fails open")
	assert.Equal(t, 1, store.GetStats().ResolvedIssues)
}

func TestRun_StepErrorPropagates(t *testing.T) {
	ctx := context.Background()
	steps, err := nodes.NewSteps(nodes.StepsConfig{Store: nopStore{}, Completer: &fakeModel{validate: []string{"yes"}}})
	require.NoError(t, err)

	saved := false
	registry := steps.Registry()
	registry[nodes.NodeLoadMemory] = func(ctx context.Context, s model.ConversationState) (model.Patch, error) {
		return model.Patch{}, errors.New("malformed state")
	}
	registry[nodes.NodeSaveMemory] = func(ctx context.Context, s model.ConversationState) (model.Patch, error) {
		saved = true
		return model.Patch{}, nil
	}

	runnable, err := BuildGraph(ctx, registry, Transitions, 0)
	require.NoError(t, err)
	runner := &graphRunner{runnable: runnable}

	_, err = runner.Run(ctx, model.NewConversationState("billing help", "u6"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "malformed state")
	assert.True(t, errx.IsKind(err, errx.KindStep))
	assert.False(t, saved)
}

func TestRun_CategoryRewriteIsRejected(t *testing.T) {
	ctx := context.Background()
	steps, err := nodes.NewSteps(nodes.StepsConfig{Store: nopStore{}, Completer: &fakeModel{validate: []string{"yes"}}})
	require.NoError(t, err)

	registry := steps.Registry()
	registry[nodes.NodeLoadMemory] = func(ctx context.Context, s model.ConversationState) (model.Patch, error) {
		return model.Patch{Categories: []string{"returns"}}, nil
	}
	runnable, err := BuildGraph(ctx, registry, Transitions, 0)
	require.NoError(t, err)

	_, err = (&graphRunner{runnable: runnable}).Run(ctx, model.NewConversationState("billing help", "u7"))
	assert.ErrorContains(t, err, "categories already set")
}

func TestBuildGraph_RejectsBrokenTable(t *testing.T) {
	_, err := BuildGraph(context.Background(), noopSteps(), Transitions[1:], 0)
	assert.Error(t, err)
}

func TestBuildSupportGraph_RequiresCollaborators(t *testing.T) {
	_, err := BuildSupportGraph(context.Background(), Config{Store: nopStore{}})
	assert.Error(t, err)
}
