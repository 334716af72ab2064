package agent

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/support-router/server/internal/agent/graph"
	"github.com/support-router/server/internal/agent/model"
	errx "github.com/support-router/server/internal/core/error"
	logx "github.com/support-router/server/pkg/logger"
)

// Service turns inbound support requests into graph runs.
type Service struct {
	runner graph.Runner
	now    func() time.Time
}

func NewService(runner graph.Runner) (*Service, error) {
	if runner == nil {
		return nil, errors.New("graph runner is nil")
	}
	return &Service{runner: runner, now: time.Now}, nil
}

// NewUserID assigns an identifier to anonymous callers.
func NewUserID() string {
	return "user_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// NewConversationID identifies one processed request.
func NewConversationID() string {
	return "conv_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Handle runs one request from a fresh state with zero attempts.
func (s *Service) Handle(ctx context.Context, in model.QueryInput) (model.QueryResult, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return model.QueryResult{}, errx.NewValidation("query must not be empty")
	}
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		userID = NewUserID()
	}

	started := s.now()
	final, err := s.runner.Run(ctx, model.NewConversationState(query, userID))
	if err != nil {
		return model.QueryResult{}, err
	}
	elapsed := s.now().Sub(started)

	result := model.QueryResult{
		ConversationID:   NewConversationID(),
		UserID:           userID,
		Query:            query,
		Response:         final.ResponseText(),
		Categories:       final.Categories,
		Satisfactory:     final.IsSatisfactory(),
		EscalationNeeded: final.EscalationNeeded,
		ProcessingTime:   math.Round(elapsed.Seconds()*100) / 100,
		Timestamp:        s.now(),
	}
	if result.Response == "" {
		result.Response = "I'm sorry, I couldn't process your request at this time."
	}
	if result.Categories == nil {
		result.Categories = []string{}
	}

	logx.Info().
		Str("conversation_id", result.ConversationID).
		Str("user_id", userID).
		Int("query_length", len(query)).
		Int("categories_count", len(result.Categories)).
		Float64("processing_time", result.ProcessingTime).
		Bool("satisfactory", result.Satisfactory).
		Bool("escalation_needed", result.EscalationNeeded).
		Int("metadata_keys", len(in.Metadata)).
		Msg("query processed")
	return result, nil
}
