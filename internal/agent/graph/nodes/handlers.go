package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/support-router/server/internal/agent/graph/conversations"
	"github.com/support-router/server/internal/agent/graph/prompts"
	"github.com/support-router/server/internal/agent/model"
	logx "github.com/support-router/server/pkg/logger"
)

// handlerSpec describes one category specialist.
type handlerSpec struct {
	node        NodeID
	instruction string
	// fallback renders the reply used when the completion fails; orderID may be "".
	fallback func(orderID string) string
}

var billingSpec = handlerSpec{
	node:        NodeBillingHandler,
	instruction: "Handle this billing query. Explain charges, payments or refunds clearly and say what the customer should do next.",
	fallback: func(orderID string) string {
		if orderID != "" {
			return fmt.Sprintf("I've checked your order %s. It seems there might be a billing issue. Can you provide more details?", orderID)
		}
		return "I can help with your billing question. Could you share your order number and the charge in question?"
	},
}

var technicalSpec = handlerSpec{
	node:        NodeTechnicalHandler,
	instruction: "Handle this technical support query. Provide clear troubleshooting steps.",
	fallback: func(orderID string) string {
		if orderID != "" {
			return fmt.Sprintf("Sorry about the trouble with order %s. Please restart the device or app, check for updates and let us know if the problem continues.", orderID)
		}
		return "Sorry about the trouble. Please restart the device or app, check for updates and let us know if the problem continues."
	},
}

var returnsSpec = handlerSpec{
	node:        NodeReturnsHandler,
	instruction: "Handle this returns query. Explain how to process the return request.",
	fallback: func(orderID string) string {
		if orderID != "" {
			return fmt.Sprintf("I can help you return order %s. Please confirm the item and the reason for the return.", orderID)
		}
		return "I can help with your return. Please share your order number and the reason for the return."
	},
}

var generalSpec = handlerSpec{
	node:        NodeGeneralHandler,
	instruction: "Handle this general inquiry. Provide a helpful response.",
	fallback: func(orderID string) string {
		if orderID != "" {
			return fmt.Sprintf("Thanks for reaching out about order %s. How can I help you today?", orderID)
		}
		return "Thanks for reaching out! How can I help you today?"
	},
}

func (s *Steps) HandleBilling(ctx context.Context, st model.ConversationState) (model.Patch, error) {
	return s.handle(ctx, billingSpec, st)
}

func (s *Steps) HandleTechnical(ctx context.Context, st model.ConversationState) (model.Patch, error) {
	return s.handle(ctx, technicalSpec, st)
}

func (s *Steps) HandleReturns(ctx context.Context, st model.ConversationState) (model.Patch, error) {
	return s.handle(ctx, returnsSpec, st)
}

func (s *Steps) HandleGeneral(ctx context.Context, st model.ConversationState) (model.Patch, error) {
	return s.handle(ctx, generalSpec, st)
}

func (s *Steps) handle(ctx context.Context, spec handlerSpec, st model.ConversationState) (model.Patch, error) {
	prompt, err := prompts.RenderHandler(ctx, prompts.HandlerInput{
		BusinessName:  s.businessName,
		Instruction:   spec.instruction,
		Query:         st.Query,
		Entities:      conversations.FormatEntities(st.Entities),
		MemoryContext: s.contexts.Build(st),
	})
	if err != nil {
		return model.Patch{}, err
	}

	text, err := s.complete(ctx, spec.node, st.UserID, prompt)
	if err != nil {
		orderID, _ := st.OrderID()
		text = spec.fallback(orderID)
	}

	return model.Patch{
		Response: model.Ptr(text),
		History:  assistant(text),
	}, nil
}

// Collaborate runs each category's handler in category order and joins their
// replies. Each handler's history entry is kept and the combined reply is
// appended once more.
func (s *Steps) Collaborate(ctx context.Context, st model.ConversationState) (model.Patch, error) {
	running := st
	var (
		history   []model.Message
		responses []string
	)
	for _, category := range st.Categories {
		spec, ok := s.handlers[category]
		if !ok {
			logx.Debug().Str("category", category).Msg("no handler for category, skipping")
			continue
		}
		p, err := s.handle(ctx, spec, running)
		if err != nil {
			return model.Patch{}, err
		}
		running = model.Merge(running, p)
		history = append(history, p.History...)
		responses = append(responses, *p.Response)
	}

	combined := strings.Join(responses, " ")
	history = append(history, model.Message{Role: model.RoleAssistant, Content: combined})

	logx.Debug().
		Str("user_id", st.UserID).
		Strs("categories", st.Categories).
		Int("responses", len(responses)).
		Msg("collaboration finished")

	return model.Patch{
		Response: model.Ptr(combined),
		History:  history,
	}, nil
}
