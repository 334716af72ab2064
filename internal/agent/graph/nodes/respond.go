package nodes

import (
	"context"
	"strings"

	"github.com/support-router/server/internal/agent/graph/parsers"
	"github.com/support-router/server/internal/agent/graph/prompts"
	"github.com/support-router/server/internal/agent/model"
	logx "github.com/support-router/server/pkg/logger"
)

const (
	// FallbackResponse is used when the generic completion fails.
	FallbackResponse = "I'm sorry, I couldn't process your request at this time."
	// EscalationResponse is the reply once retries are exhausted.
	EscalationResponse = "Escalating to human agent."
)

// Sentiment labels the query and derives a priority. Failures fall back to
// neutral/normal.
func (s *Steps) Sentiment(ctx context.Context, st model.ConversationState) (model.Patch, error) {
	prompt, err := prompts.RenderSentiment(ctx, st.Query)
	if err != nil {
		return model.Patch{}, err
	}

	label := parsers.SentimentNeutral
	if reply, err := s.complete(ctx, NodeSentiment, st.UserID, prompt); err == nil {
		label = parsers.ParseSentiment(reply).Label
	}
	priority := parsers.PriorityFor(label)

	logx.Debug().Str("user_id", st.UserID).Str("sentiment", label).Str("priority", priority).Msg("sentiment analysed")
	return model.Patch{
		Sentiment: model.Ptr(label),
		Priority:  model.Ptr(priority),
	}, nil
}

// GenerateResponse writes a generic reply when no handler produced one. It is
// also the retry target after an unsatisfactory validation.
func (s *Steps) GenerateResponse(ctx context.Context, st model.ConversationState) (model.Patch, error) {
	if st.HasResponse() {
		return model.Patch{}, nil
	}

	prompt, err := prompts.RenderGenerate(ctx, s.businessName, st.Query, st.Categories)
	if err != nil {
		return model.Patch{}, err
	}
	text, err := s.complete(ctx, NodeGenerateResponse, st.UserID, prompt)
	if err != nil {
		text = FallbackResponse
	}
	return model.Patch{
		Response: model.Ptr(text),
		History:  assistant(text),
	}, nil
}

// Validate asks whether the response answers the query. A failed check opens
// a new attempt: the counter goes up and the response is cleared so
// GenerateResponse writes a fresh one. Completion failures count as satisfactory.
func (s *Steps) Validate(ctx context.Context, st model.ConversationState) (model.Patch, error) {
	prompt, err := prompts.RenderValidate(ctx, st.Query, st.ResponseText())
	if err != nil {
		return model.Patch{}, err
	}

	satisfactory := true
	if reply, err := s.complete(ctx, NodeValidate, st.UserID, prompt); err == nil {
		satisfactory = strings.Contains(strings.ToLower(reply), "yes")
	}

	patch := model.Patch{Satisfactory: model.Ptr(satisfactory)}
	if !satisfactory {
		patch.Attempts = model.Ptr(st.Attempts + 1)
		patch.Response = model.Ptr("")
	}

	logx.Debug().
		Str("user_id", st.UserID).
		Bool("satisfactory", satisfactory).
		Int("attempts", st.Attempts).
		Msg("response validated")
	return patch, nil
}

// Escalate hands the conversation to a human.
func (s *Steps) Escalate(ctx context.Context, st model.ConversationState) (model.Patch, error) {
	logx.Warn().
		Str("user_id", st.UserID).
		Int("attempts", st.Attempts).
		Strs("categories", st.Categories).
		Msg("escalating to human agent")
	return model.Patch{
		EscalationNeeded: model.Ptr(true),
		Response:         model.Ptr(EscalationResponse),
		History:          assistant(EscalationResponse),
	}, nil
}
