package providers

import (
	"fmt"
	"strings"

	"github.com/ChamsBouzaiene/hearth/internal/config"
	"github.com/ChamsBouzaiene/hearth/internal/engine"
)

const defaultAnthropicModel = "claude-3-5-sonnet-latest"

// NewClient creates a Client for the configured endpoint. A key is only
// required for hosted endpoints; local OpenAI-compatible servers (Ollama,
// llama.cpp) usually accept anything.
func NewClient(ep config.EndpointConfig) (Client, error) {
	switch strings.ToLower(ep.Provider) {
	case "", config.ProviderOpenAI:
		if ep.APIKey == "" && ep.BaseURL == "" {
			return nil, engine.Errorf(engine.KindConfig, "providers", "OPENAI_API_KEY not set and no base_url configured")
		}
		key := ep.APIKey
		if key == "" {
			key = "local"
		}
		return NewOpenAIClient(key, ep.Model, ep.BaseURL), nil

	case config.ProviderAnthropic:
		if ep.APIKey == "" {
			return nil, engine.Errorf(engine.KindConfig, "providers", "ANTHROPIC_API_KEY not set")
		}
		model := ep.Model
		if model == "" || strings.HasPrefix(model, "gpt-") {
			model = defaultAnthropicModel
		}
		return NewAnthropicClient(ep.APIKey, model, ep.BaseURL), nil
	}
	return nil, engine.NewError(engine.KindConfig, "providers", fmt.Errorf("unsupported provider %q", ep.Provider))
}
