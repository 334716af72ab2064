package nodes

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/support-router/server/internal/agent/memory"
	"github.com/support-router/server/internal/agent/model"
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

// scripted answers each prompt kind with a canned reply; an empty reply
// with a nil error is turned into a failure.
type scripted struct {
	mu        sync.Mutex
	sentiment string
	validate  []string
	handlers  map[string]string
	generate  string
	fail      bool
	prompts   []string
}

var errModelDown = errors.New("model unavailable")

func (c *scripted) Complete(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)
	if c.fail {
		return "", errModelDown
	}

	var reply string
	switch {
	case strings.HasPrefix(prompt, "Classify the sentiment"):
		reply = c.sentiment
	case strings.HasPrefix(prompt, "Does the response below"):
		if len(c.validate) > 0 {
			reply = c.validate[0]
			if len(c.validate) > 1 {
				c.validate = c.validate[1:]
			}
		}
	case strings.HasPrefix(prompt, "You are a customer support specialist"):
		for marker, r := range c.handlers {
			if strings.Contains(prompt, marker) {
				reply = r
			}
		}
	case strings.HasPrefix(prompt, "You are a customer support assistant"):
		reply = c.generate
	}
	if reply == "" {
		return "", errModelDown
	}
	return reply, nil
}

func (c *scripted) count(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, p := range c.prompts {
		if strings.HasPrefix(p, prefix) {
			n++
		}
	}
	return n
}

func newTestSteps(t *testing.T, c model.Completer) (*Steps, *memory.Store) {
	t.Helper()
	store, err := memory.Open(context.Background(), &memRepo{})
	require.NoError(t, err)
	steps, err := NewSteps(StepsConfig{Store: store, Completer: c, BusinessName: "Acme"})
	require.NoError(t, err)
	return steps, store
}

func classified(query string, categories ...string) model.ConversationState {
	s := model.NewConversationState(query, "u1")
	s.Categories = categories
	s.Entities = ExtractEntities(query)
	return s
}
