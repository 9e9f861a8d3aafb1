package llms

import (
	"fmt"
	"log/slog"

	"github.com/utenadev/familiar-ai/pkg/config"
)

// New builds the Provider selected by PLATFORM.
//
// openai quirks mirror long-standing behavior: when BASE_URL was not set
// explicitly the real OpenAI endpoint is used, and when TOOLS_MODE was
// not set native tool calling is assumed (the prompt default exists for
// local servers).
func New(cfg config.BackendConfig) (Provider, error) {
	model := cfg.DefaultModel()

	switch cfg.Platform {
	case config.PlatformAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("API_KEY is required for the anthropic platform")
		}
		slog.Info("using anthropic backend", "model", model)
		return NewAnthropicProvider(cfg.APIKey, model), nil

	case config.PlatformGemini:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("API_KEY is required for the gemini platform")
		}
		slog.Info("using gemini backend", "model", model)
		return NewGeminiProvider(cfg.APIKey, model), nil

	case config.PlatformOpenAI:
		baseURL := cfg.BaseURL
		if !cfg.BaseURLSet {
			baseURL = "https://api.openai.com/v1"
		}
		toolsMode := cfg.ToolsMode
		if !cfg.ToolsModeSet {
			toolsMode = config.ToolsNative
		}
		slog.Info("using openai backend", "model", model, "base_url", baseURL, "tools", toolsMode)
		provider := NewOpenAIProvider(cfg.APIKey, model, baseURL)
		if toolsMode == config.ToolsPrompt {
			return WithPromptTooling(provider), nil
		}
		return provider, nil

	case config.PlatformKimi:
		baseURL := cfg.BaseURL
		if !cfg.BaseURLSet {
			baseURL = "https://api.moonshot.ai/v1"
		}
		slog.Info("using kimi backend", "model", model, "base_url", baseURL)
		return NewKimiProvider(cfg.APIKey, model, baseURL), nil

	case config.PlatformCLI:
		if cfg.Model == "" {
			return nil, fmt.Errorf("MODEL must name a shell command for the cli platform")
		}
		slog.Info("using cli backend", "command", cfg.Model)
		return WithPromptTooling(NewCLIProvider(cfg.Model)), nil

	default:
		return nil, fmt.Errorf("unknown platform: %s", cfg.Platform)
	}
}
