package providers

import (
	"context"
	"encoding/json"
	"fmt"

	anthropic "github.com/liushuangls/go-anthropic/v2"

	"github.com/ChamsBouzaiene/hearth/internal/engine"
	"github.com/ChamsBouzaiene/hearth/internal/tools"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicClient creates a client. An empty baseURL means the public API.
func NewAnthropicClient(apiKey, modelName, baseURL string) *AnthropicClient {
	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}
	return &AnthropicClient{
		client: anthropic.NewClient(apiKey, opts...),
		model:  modelName,
	}
}

// Complete implements Client.
func (c *AnthropicClient) Complete(ctx context.Context, r Request) (Reply, error) {
	var anthropicMsgs []anthropic.Message
	for _, msg := range r.Messages {
		switch msg.Role {
		case RoleUser:
			anthropicMsgs = append(anthropicMsgs, anthropic.Message{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(msg.Content)},
			})
		case RoleAssistant:
			var content []anthropic.MessageContent
			if msg.Content != "" {
				content = append(content, anthropic.NewTextMessageContent(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				argsJSON, _ := json.Marshal(tc.Args)
				content = append(content, anthropic.NewToolUseMessageContent(tc.ID, tc.Name, json.RawMessage(argsJSON)))
			}
			anthropicMsgs = append(anthropicMsgs, anthropic.Message{
				Role:    anthropic.RoleAssistant,
				Content: content,
			})
		case RoleTool:
			content := msg.Content
			if content == "" {
				content = "{}"
			}
			result := anthropic.NewToolResultMessageContent(msg.ToolCallID, content, msg.IsError)
			// Consecutive tool results share one user turn.
			if n := len(anthropicMsgs); n > 0 && anthropicMsgs[n-1].Role == anthropic.RoleUser &&
				isToolResultTurn(anthropicMsgs[n-1]) {
				anthropicMsgs[n-1].Content = append(anthropicMsgs[n-1].Content, result)
				continue
			}
			anthropicMsgs = append(anthropicMsgs, anthropic.Message{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{result},
			})
		}
	}

	maxTokens := defaultAnthropicMaxTokens
	if r.MaxTokens > 0 {
		maxTokens = r.MaxTokens
	}
	req := anthropic.MessagesRequest{
		Model:     anthropic.Model(c.model),
		Messages:  anthropicMsgs,
		MaxTokens: maxTokens,
	}
	if r.System != "" {
		req.MultiSystem = []anthropic.MessageSystemPart{{Type: "text", Text: r.System}}
	}
	if r.Temperature > 0 {
		temperature := r.Temperature
		req.Temperature = &temperature
	}
	if len(r.Tools) > 0 {
		toolDefs, err := tools.AnthropicTools(r.Tools)
		if err != nil {
			return Reply{}, err
		}
		req.Tools = toolDefs
	}

	resp, err := c.client.CreateMessages(ctx, req)
	if err != nil {
		return Reply{}, classifyProviderError("anthropic.messages", err)
	}

	reply := Reply{Truncated: resp.StopReason == "max_tokens"}
	for _, block := range resp.Content {
		switch block.Type {
		case anthropic.MessagesContentTypeText:
			if block.Text != nil {
				reply.Content += *block.Text
			}
		case "tool_use":
			if block.MessageContentToolUse == nil || block.ID == "" || block.Name == "" {
				continue
			}
			args := make(map[string]any)
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &args); err != nil {
					return Reply{}, engine.NewError(engine.KindMalformedJSON, "anthropic.messages",
						fmt.Errorf("input of %s: %w", block.Name, err))
				}
			}
			reply.ToolCalls = append(reply.ToolCalls, engine.ToolCall{
				ID:   block.ID,
				Name: block.Name,
				Args: args,
			})
		}
	}
	return reply, nil
}

func isToolResultTurn(m anthropic.Message) bool {
	for _, c := range m.Content {
		if c.Type != "tool_result" {
			return false
		}
	}
	return len(m.Content) > 0
}
