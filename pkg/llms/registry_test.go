package llms

import (
	"strings"
	"testing"

	"github.com/utenadev/familiar-ai/pkg/config"
)

func TestNewAnthropicRequiresAPIKey(t *testing.T) {
	_, err := New(config.BackendConfig{Platform: config.PlatformAnthropic})
	if err == nil || !strings.Contains(err.Error(), "API_KEY") {
		t.Errorf("err = %v", err)
	}
}

func TestNewGeminiRequiresAPIKey(t *testing.T) {
	_, err := New(config.BackendConfig{Platform: config.PlatformGemini})
	if err == nil || !strings.Contains(err.Error(), "API_KEY") {
		t.Errorf("err = %v", err)
	}
}

func TestNewOpenAIDefaults(t *testing.T) {
	// BASE_URL unset means the real OpenAI endpoint; TOOLS_MODE unset
	// means native function calling, so no prompt-tooling wrapper.
	p, err := New(config.BackendConfig{Platform: config.PlatformOpenAI, APIKey: "k", Model: "gpt-test"})
	if err != nil {
		t.Fatal(err)
	}
	oai, ok := p.(*OpenAIProvider)
	if !ok {
		t.Fatalf("provider is %T, want *OpenAIProvider", p)
	}
	if !oai.useCompletionTokens() {
		t.Errorf("baseURL = %q, want api.openai.com default", oai.baseURL)
	}
}

func TestNewOpenAIExplicitLocalServer(t *testing.T) {
	p, err := New(config.BackendConfig{
		Platform:     config.PlatformOpenAI,
		Model:        "qwen",
		BaseURL:      "http://localhost:11434/v1",
		BaseURLSet:   true,
		ToolsMode:    config.ToolsPrompt,
		ToolsModeSet: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*PromptToolingProvider); !ok {
		t.Fatalf("provider is %T, want prompt-tooling wrapper", p)
	}
}

func TestNewKimiUsesReasoningProvider(t *testing.T) {
	p, err := New(config.BackendConfig{Platform: config.PlatformKimi, APIKey: "k", Model: "kimi-k2"})
	if err != nil {
		t.Fatal(err)
	}
	oai, ok := p.(*OpenAIProvider)
	if !ok {
		t.Fatalf("provider is %T", p)
	}
	if !oai.reasoning {
		t.Error("kimi backend must enable reasoning round-trip")
	}
	if !strings.Contains(oai.baseURL, "moonshot.ai") {
		t.Errorf("baseURL = %q", oai.baseURL)
	}
}

func TestNewCLIRequiresModel(t *testing.T) {
	_, err := New(config.BackendConfig{Platform: config.PlatformCLI})
	if err == nil || !strings.Contains(err.Error(), "MODEL") {
		t.Errorf("err = %v", err)
	}

	p, err := New(config.BackendConfig{Platform: config.PlatformCLI, Model: "cat"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*PromptToolingProvider); !ok {
		t.Errorf("cli backend is %T, want prompt-tooling wrapper", p)
	}
}

func TestNewUnknownPlatform(t *testing.T) {
	_, err := New(config.BackendConfig{Platform: "carrier-pigeon"})
	if err == nil || !strings.Contains(err.Error(), "unknown platform") {
		t.Errorf("err = %v", err)
	}
}
