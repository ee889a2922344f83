package tools

import (
	"encoding/json"
	"fmt"

	anthropic "github.com/liushuangls/go-anthropic/v2"
	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/ChamsBouzaiene/hearth/internal/engine"
)

func schemaObject(ts engine.ToolSchema) (map[string]any, error) {
	var schemaObj map[string]any
	if err := json.Unmarshal(ts.Parameters, &schemaObj); err != nil {
		return nil, fmt.Errorf("invalid tool schema JSON for %s: %w", ts.Name, err)
	}
	return schemaObj, nil
}

// OpenAITools converts schemas to OpenAI-compatible function tools, as
// accepted by OpenAI, Ollama, llama.cpp and LM Studio endpoints.
func OpenAITools(schemas []engine.ToolSchema) ([]openai.Tool, error) {
	tools := make([]openai.Tool, 0, len(schemas))
	for _, ts := range schemas {
		schemaObj, err := schemaObject(ts)
		if err != nil {
			return nil, err
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ts.Name,
				Description: ts.Description,
				Parameters:  schemaObj,
			},
		})
	}
	return tools, nil
}

// AnthropicTools converts schemas to Anthropic tool definitions.
func AnthropicTools(schemas []engine.ToolSchema) ([]anthropic.ToolDefinition, error) {
	toolDefs := make([]anthropic.ToolDefinition, 0, len(schemas))
	for _, ts := range schemas {
		schemaObj, err := schemaObject(ts)
		if err != nil {
			return nil, err
		}
		toolDefs = append(toolDefs, anthropic.ToolDefinition{
			Name:        ts.Name,
			Description: ts.Description,
			InputSchema: schemaObj,
		})
	}
	return toolDefs, nil
}
