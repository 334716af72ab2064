package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// Record delimiters shared with parsers.ParseSentiment.
const (
	TupleDelim    = "<||>"
	CompleteDelim = "<|COMPLETE|>"
)

var (
	//go:embed template/handler_prompt.txt
	handlerPrompt string
	//go:embed template/generate_prompt.txt
	generatePrompt string
	//go:embed template/validate_prompt.txt
	validatePrompt string
	//go:embed template/sentiment_prompt.txt
	sentimentPrompt string
)

// DefaultBusinessName is used when the caller leaves BusinessName empty.
const DefaultBusinessName = "our store"

// HandlerInput feeds a category handler prompt.
type HandlerInput struct {
	BusinessName  string
	Instruction   string
	Query         string
	Entities      string
	MemoryContext string
}

// RenderHandler renders a category handler prompt.
func RenderHandler(ctx context.Context, in HandlerInput) (string, error) {
	return render(ctx, "handler", handlerPrompt, map[string]any{
		"BusinessName":  businessName(in.BusinessName),
		"Instruction":   in.Instruction,
		"Query":         in.Query,
		"Entities":      in.Entities,
		"MemoryContext": in.MemoryContext,
	})
}

// RenderGenerate renders the generic response prompt.
func RenderGenerate(ctx context.Context, businessNameOverride, query string, categories []string) (string, error) {
	return render(ctx, "generate", generatePrompt, map[string]any{
		"BusinessName": businessName(businessNameOverride),
		"Query":        query,
		"Categories":   strings.Join(categories, ", "),
	})
}

// RenderValidate renders the yes/no adequacy check.
func RenderValidate(ctx context.Context, query, response string) (string, error) {
	return render(ctx, "validate", validatePrompt, map[string]any{
		"Query":    query,
		"Response": response,
	})
}

// RenderSentiment renders the sentiment classification prompt.
func RenderSentiment(ctx context.Context, query string) (string, error) {
	// delimiters are substituted before templating so they never collide with template syntax
	content := strings.NewReplacer(
		"{TD}", TupleDelim,
		"{CD}", CompleteDelim,
	).Replace(sentimentPrompt)
	return render(ctx, "sentiment", content, map[string]any{"Query": query})
}

// render formats through the eino prompt component so prompt callbacks fire.
func render(ctx context.Context, name, tmpl string, vars map[string]any) (string, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.UserMessage(tmpl),
	)
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("%s prompt render: %w", name, err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("%s prompt render: empty result", name)
	}
	return strings.TrimSpace(msgs[0].Content), nil
}

func businessName(v string) string {
	if strings.TrimSpace(v) == "" {
		return DefaultBusinessName
	}
	return v
}
