package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"
	contactx "github.com/tanpawarit/goal-agent/agent/contact"
	contractx "github.com/tanpawarit/goal-agent/agent/contract"
	openrouterx "github.com/tanpawarit/goal-agent/pkg/openrouter"
)

var _ contractx.Classifier = (*Classifier)(nil)

// Classifier labels reply bodies with a single chat completion.
type Classifier struct {
	client       *openaisdk.Client
	model        string
	maxTokens    int64
	temperature  float64
	systemPrompt string
}

func New(client *openaisdk.Client, cfg openrouterx.Config, systemPrompt string) (*Classifier, error) {
	if client == nil {
		return nil, errors.New("openai client is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("%w: classifier model is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: classifier prompt is empty", contractx.ErrValidation)
	}

	maxTokens := int64(5)
	if cfg.MaxCompletionToken != nil && *cfg.MaxCompletionToken > 0 {
		maxTokens = int64(*cfg.MaxCompletionToken)
	}

	return &Classifier{
		client:       client,
		model:        model,
		maxTokens:    maxTokens,
		temperature:  float64(cfg.Temperature),
		systemPrompt: systemPrompt,
	}, nil
}

// Classify returns CategoryOther for empty text or any label it cannot read.
// Only transport failures are reported as errors.
func (c *Classifier) Classify(ctx context.Context, text string) (contactx.Category, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return contactx.CategoryOther, nil
	}

	resp, err := c.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(c.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(c.systemPrompt),
			openaisdk.UserMessage(userPrompt(text)),
		},
		MaxTokens:   openaisdk.Int(c.maxTokens),
		Temperature: openaisdk.Float(c.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("%w: classify reply: %v", contractx.ErrCollaborator, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return contactx.CategoryOther, nil
	}
	return contactx.ParseCategory(resp.Choices[0].Message.Content), nil
}

func userPrompt(text string) string {
	return "Classify this email strictly as one of ACCEPTED, DECLINED, NOT_NOW, BOUNCE, OTHER:\n\n" + text
}
