package nodes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/support-router/server/internal/agent/graph/conversations"
	"github.com/support-router/server/internal/agent/model"
	errx "github.com/support-router/server/internal/core/error"
	logx "github.com/support-router/server/pkg/logger"
)

// NodeID names a node of the support graph.
type NodeID string

const (
	NodeClassify         NodeID = "classify"
	NodeLoadMemory       NodeID = "load_memory"
	NodeSentiment        NodeID = "sentiment"
	NodeBillingHandler   NodeID = "billing_handler"
	NodeTechnicalHandler NodeID = "technical_handler"
	NodeReturnsHandler   NodeID = "returns_handler"
	NodeGeneralHandler   NodeID = "general_handler"
	NodeCollaboration    NodeID = "collaboration"
	NodeGenerateResponse NodeID = "generate_response"
	NodeValidate         NodeID = "validate"
	NodeEscalate         NodeID = "escalate"
	NodeSaveMemory       NodeID = "save_memory"
)

// Step consumes the running state and returns only the fields it changes.
type Step func(ctx context.Context, s model.ConversationState) (model.Patch, error)

// MemoryStore is the slice of the learning store the steps use.
type MemoryStore interface {
	GetOrCreateProfile(userID string) model.UserProfile
	FindSimilarPastIssues(userID, query string, categories []string) []model.HistoricalIssue
	GetKnowledgeBaseEntry(categories []string) (*model.KnowledgeBaseEntry, bool)
	SaveConversation(ctx context.Context, userID string, summary model.ConversationSummary) error
	UpdateKnowledgeBase(ctx context.Context, categories []string, query, resolution string) error
}

// StepsConfig wires the collaborators the steps depend on.
type StepsConfig struct {
	Store     MemoryStore
	Completer model.Completer
	// DefaultCategories apply when classification finds no similar history.
	DefaultCategories []string
	BusinessName      string
}

// Steps holds every node function of the support graph.
type Steps struct {
	store             MemoryStore
	completer         model.Completer
	contexts          *conversations.ContextBuilder
	defaultCategories []string
	businessName      string
	handlers          map[string]handlerSpec
}

// DefaultCategories is the fallback classification for users without history.
var DefaultCategories = []string{"billing", "technical"}

// NewSteps validates cfg and builds the step set.
func NewSteps(cfg StepsConfig) (*Steps, error) {
	if cfg.Store == nil {
		return nil, errors.New("memory store is nil")
	}
	if cfg.Completer == nil {
		return nil, errors.New("completer is nil")
	}
	defaults := make([]string, 0, len(cfg.DefaultCategories))
	for _, c := range cfg.DefaultCategories {
		if c = strings.TrimSpace(c); c != "" {
			defaults = append(defaults, c)
		}
	}
	if len(defaults) == 0 {
		defaults = append(defaults, DefaultCategories...)
	}

	s := &Steps{
		store:             cfg.Store,
		completer:         cfg.Completer,
		contexts:          conversations.NewContextBuilder(2, 2),
		defaultCategories: defaults,
		businessName:      cfg.BusinessName,
	}
	s.handlers = map[string]handlerSpec{
		CategoryBilling:   billingSpec,
		CategoryTechnical: technicalSpec,
		CategoryReturns:   returnsSpec,
		CategoryGeneral:   generalSpec,
	}
	return s, nil
}

// Registry maps every node to its step function.
func (s *Steps) Registry() map[NodeID]Step {
	return map[NodeID]Step{
		NodeClassify:         s.Classify,
		NodeLoadMemory:       s.LoadMemory,
		NodeSentiment:        s.Sentiment,
		NodeBillingHandler:   s.HandleBilling,
		NodeTechnicalHandler: s.HandleTechnical,
		NodeReturnsHandler:   s.HandleReturns,
		NodeGeneralHandler:   s.HandleGeneral,
		NodeCollaboration:    s.Collaborate,
		NodeGenerateResponse: s.GenerateResponse,
		NodeValidate:         s.Validate,
		NodeEscalate:         s.Escalate,
		NodeSaveMemory:       s.SaveMemory,
	}
}

// complete calls the completer and reports failure as an errx model error.
// An empty reply counts as a failure.
func (s *Steps) complete(ctx context.Context, node NodeID, userID, prompt string) (string, error) {
	text, err := s.completer.Complete(ctx, prompt)
	if err == nil {
		text = strings.TrimSpace(text)
		if text == "" {
			err = fmt.Errorf("empty completion")
		}
	}
	if err != nil {
		if !errx.IsKind(err, errx.KindModel) {
			err = errx.WrapModel(err)
		}
		logx.Warn().
			Err(err).
			Str("node", string(node)).
			Str("user_id", userID).
			Msg("completion failed, using fallback")
		return "", err
	}
	return text, nil
}

func assistant(content string) []model.Message {
	return []model.Message{{Role: model.RoleAssistant, Content: content}}
}
