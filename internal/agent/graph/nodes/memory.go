package nodes

import (
	"context"
	"fmt"

	"github.com/support-router/server/internal/agent/model"
	logx "github.com/support-router/server/pkg/logger"
)

// LoadMemory attaches similar past issues and the knowledge base entry for
// the classified categories.
func (s *Steps) LoadMemory(ctx context.Context, st model.ConversationState) (model.Patch, error) {
	similar := s.store.FindSimilarPastIssues(st.UserID, st.Query, st.Categories)
	patch := model.Patch{
		SimilarPastIssues: &similar,
		MemoryLoaded:      model.Ptr(true),
	}
	kb, ok := s.store.GetKnowledgeBaseEntry(st.Categories)
	if ok {
		patch.KnowledgeEntry = kb
	}

	logx.Debug().
		Str("user_id", st.UserID).
		Int("similar_issues", len(similar)).
		Bool("knowledge_entry", ok).
		Msg("memory loaded")
	return patch, nil
}

// SaveMemory records the finished conversation and, when it was resolved,
// teaches the knowledge base the resolution.
func (s *Steps) SaveMemory(ctx context.Context, st model.ConversationState) (model.Patch, error) {
	summary := model.ConversationSummary{
		Query:      st.Query,
		Categories: st.Categories,
		Resolved:   st.IsSatisfactory(),
		Response:   st.ResponseText(),
		Entities:   st.Entities,
	}
	if err := s.store.SaveConversation(ctx, st.UserID, summary); err != nil {
		return model.Patch{}, fmt.Errorf("save conversation: %w", err)
	}

	if st.IsSatisfactory() && st.HasResponse() {
		if err := s.store.UpdateKnowledgeBase(ctx, st.Categories, st.Query, st.ResponseText()); err != nil {
			return model.Patch{}, fmt.Errorf("update knowledge base: %w", err)
		}
	}

	logx.Info().
		Str("user_id", st.UserID).
		Strs("categories", st.Categories).
		Bool("resolved", summary.Resolved).
		Bool("escalated", st.EscalationNeeded).
		Msg("conversation stored")
	return model.Patch{}, nil
}
