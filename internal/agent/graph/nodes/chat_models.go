package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/support-router/server/internal/agent/model"
	errx "github.com/support-router/server/internal/core/error"
	logx "github.com/support-router/server/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	APIKey  string
	BaseURL string
	Model   *model.CompletionModelConfig
}

// ChatCompleter adapts an eino chat model to model.Completer: one user
// message in, the reply content out.
type ChatCompleter struct {
	chat      einomodel.BaseChatModel
	modelName string
}

// NewChatCompleter wraps any eino chat model.
func NewChatCompleter(chat einomodel.BaseChatModel, modelName string) *ChatCompleter {
	return &ChatCompleter{chat: chat, modelName: modelName}
}

// NewGeminiCompleter creates a Gemini-backed completer.
func NewGeminiCompleter(ctx context.Context, config ChatModelConfig) (*ChatCompleter, error) {
	if config.Model == nil {
		return nil, fmt.Errorf("completion model config is nil")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	geminiCfg := &gemini.Config{
		Client:      client,
		Model:       config.Model.Model,
		Temperature: &config.Model.Temperature,
		MaxTokens:   &config.Model.MaxTokens,
	}
	if config.Model.ThinkingBudget > 0 {
		geminiCfg.ThinkingConfig = &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(config.Model.ThinkingBudget),
		}
	}

	chat, err := gemini.NewChatModel(ctx, geminiCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating completion model")
		return nil, fmt.Errorf("error creating completion model: %w", err)
	}

	return NewChatCompleter(chat, config.Model.Model), nil
}

// Complete implements model.Completer.
func (c *ChatCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	out, err := c.chat.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", errx.WrapModel(err)
	}
	if out == nil {
		return "", errx.WrapModel(fmt.Errorf("nil completion message"))
	}
	c.logUsage(out)
	return strings.TrimSpace(out.Content), nil
}

func (c *ChatCompleter) logUsage(out *schema.Message) {
	if out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		return
	}
	usage := out.ResponseMeta.Usage
	inC, outC, totalC := model.ComputeCost(usage, model.ResolvePricing(c.modelName))
	logx.Debug().
		Str("model", c.modelName).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Int("total_tokens", usage.TotalTokens).
		Float64("input_cost_usd", inC).
		Float64("output_cost_usd", outC).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")
}

var _ model.Completer = (*ChatCompleter)(nil)
