package drafter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	contactx "github.com/tanpawarit/goal-agent/agent/contact"
	contractx "github.com/tanpawarit/goal-agent/agent/contract"
)

var _ contractx.NudgeDrafter = (*Drafter)(nil)

// maxRepliesInContext caps how much conversation is sent to the model.
const maxRepliesInContext = 5

type Drafter struct {
	runner compose.Runnable[map[string]any, *schema.Message]
}

func New(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*Drafter, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("%w: chat model is required", contractx.ErrValidation)
	}
	runner, err := compileDraftGraph(ctx, chatModel, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: compile drafter graph: %v", contractx.ErrCollaborator, err)
	}
	return &Drafter{runner: runner}, nil
}

func (d *Drafter) Draft(ctx context.Context, rec *contactx.Record) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("%w: contact record is nil", contractx.ErrValidation)
	}

	input, err := json.Marshal(summarizeContact(rec))
	if err != nil {
		return "", fmt.Errorf("%w: marshal drafter payload: %v", contractx.ErrValidation, err)
	}

	msg, err := d.runner.Invoke(ctx, map[string]any{
		"input": string(input),
	})
	if err != nil {
		return "", fmt.Errorf("%w: drafter invoke: %v", contractx.ErrCollaborator, err)
	}
	if msg == nil {
		return "", fmt.Errorf("%w: empty drafter response", contractx.ErrMalformedResponse)
	}

	body := strings.TrimSpace(msg.Content)
	if body == "" {
		return "", fmt.Errorf("%w: drafter returned empty body", contractx.ErrMalformedResponse)
	}
	return body, nil
}

func summarizeContact(rec *contactx.Record) map[string]any {
	replies := rec.Replies
	if len(replies) > maxRepliesInContext {
		replies = replies[len(replies)-maxRepliesInContext:]
	}
	return map[string]any{
		"name":             rec.Identity.Name,
		"company":          rec.Identity.Company,
		"role":             rec.Identity.Role,
		"follow_ups_sent":  rec.FollowUpCount,
		"previous_message": rec.LastMessage,
		"replies":          replies,
	}
}

func compileDraftGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
) (compose.Runnable[map[string]any, *schema.Message], error) {
	template := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.UserMessage("{input}"),
	)

	graph := compose.NewGraph[map[string]any, *schema.Message]()
	if err := graph.AddChatTemplateNode("prompt", template); err != nil {
		return nil, fmt.Errorf("add drafter prompt node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add drafter model node: %w", err)
	}
	if err := graph.AddEdge(compose.START, "prompt"); err != nil {
		return nil, fmt.Errorf("add drafter edge start->prompt: %w", err)
	}
	if err := graph.AddEdge("prompt", "model"); err != nil {
		return nil, fmt.Errorf("add drafter edge prompt->model: %w", err)
	}
	if err := graph.AddEdge("model", compose.END); err != nil {
		return nil, fmt.Errorf("add drafter edge model->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("drafter.nudge_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile drafter graph: %w", err)
	}
	return runner, nil
}
