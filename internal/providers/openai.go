package providers

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/ChamsBouzaiene/hearth/internal/engine"
	"github.com/ChamsBouzaiene/hearth/internal/tools"
)

// OpenAIClient calls any OpenAI-compatible chat completions endpoint, which
// includes local servers such as Ollama, llama.cpp and LM Studio.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a client. An empty baseURL means api.openai.com.
func NewOpenAIClient(apiKey, modelName, baseURL string) *OpenAIClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		model:  modelName,
	}
}

// Complete implements Client.
func (c *OpenAIClient) Complete(ctx context.Context, r Request) (Reply, error) {
	openaiMsgs := make([]openai.ChatCompletionMessage, 0, len(r.Messages)+1)
	if r.System != "" {
		openaiMsgs = append(openaiMsgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: r.System,
		})
	}

	for _, msg := range r.Messages {
		switch msg.Role {
		case RoleUser:
			openaiMsgs = append(openaiMsgs, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
			})
		case RoleAssistant:
			// Some servers reject a null content next to tool calls.
			content := msg.Content
			if content == "" {
				content = " "
			}
			var toolCalls []openai.ToolCall
			for _, tc := range msg.ToolCalls {
				argsJSON, _ := json.Marshal(tc.Args)
				toolCalls = append(toolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(argsJSON),
					},
				})
			}
			openaiMsgs = append(openaiMsgs, openai.ChatCompletionMessage{
				Role:      openai.ChatMessageRoleAssistant,
				Content:   content,
				ToolCalls: toolCalls,
			})
		case RoleTool:
			content := msg.Content
			if content == "" {
				content = "{}"
			}
			openaiMsgs = append(openaiMsgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: msg.ToolCallID,
				Content:    content,
			})
		}
	}

	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: openaiMsgs,
	}
	if len(r.Tools) > 0 {
		toolDefs, err := tools.OpenAITools(r.Tools)
		if err != nil {
			return Reply{}, err
		}
		req.Tools = toolDefs
		req.ToolChoice = "auto"
	}
	if r.MaxTokens > 0 {
		req.MaxTokens = r.MaxTokens
	}
	if r.Temperature > 0 {
		temperature := r.Temperature
		req.Temperature = &temperature
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Reply{}, classifyProviderError("openai.chat", err)
	}
	if len(resp.Choices) == 0 {
		return Reply{}, engine.Errorf(engine.KindAPI, "openai.chat", "empty response from %s", c.model)
	}

	choice := resp.Choices[0]
	reply := Reply{
		Content:   choice.Message.Content,
		Truncated: choice.FinishReason == openai.FinishReasonLength,
	}
	for _, tc := range choice.Message.ToolCalls {
		args := make(map[string]any)
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return Reply{}, engine.NewError(engine.KindMalformedJSON, "openai.chat",
					fmt.Errorf("arguments of %s: %w", tc.Function.Name, err))
			}
		}
		reply.ToolCalls = append(reply.ToolCalls, engine.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	return reply, nil
}
