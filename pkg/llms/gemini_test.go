package llms

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/utenadev/familiar-ai/pkg/protocol"
	"github.com/utenadev/familiar-ai/pkg/tool"
)

func geminiTestServer(t *testing.T, chunks []string) *GeminiProvider {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
	}))
	t.Cleanup(srv.Close)
	p := NewGeminiProvider("key", "gemini-test")
	p.host = srv.URL
	return p
}

func TestGeminiStreamTurnSynthesizesCallIDs(t *testing.T) {
	p := geminiTestServer(t, []string{
		`{"candidates":[{"content":{"role":"model","parts":[{"text":"Taking a look. "}]}}]}`,
		`{"candidates":[{"content":{"role":"model","parts":[{"functionCall":{"name":"see","args":{"direction":"front"}}},{"functionCall":{"name":"say","args":{}}}]}}]}`,
	})

	var streamed strings.Builder
	result, err := p.StreamTurn(context.Background(), TurnRequest{
		Messages:  []*protocol.Message{protocol.NewUserMessage("look")},
		MaxTokens: 100,
	}, func(s string) { streamed.WriteString(s) })
	if err != nil {
		t.Fatal(err)
	}
	if result.Text != "Taking a look. " {
		t.Errorf("text = %q", result.Text)
	}
	if result.StopReason != protocol.StopToolUse {
		t.Errorf("stop = %q", result.StopReason)
	}
	if len(result.ToolCalls) != 2 {
		t.Fatalf("got %d calls", len(result.ToolCalls))
	}
	// The wire carries no call ids; each synthesized id must be unique.
	a, b := result.ToolCalls[0], result.ToolCalls[1]
	if a.ID == "" || b.ID == "" || a.ID == b.ID {
		t.Errorf("ids = %q, %q", a.ID, b.ID)
	}
	if a.Name != "see" || a.Args["direction"] != "front" {
		t.Errorf("first call = %+v", a)
	}
	if b.Args == nil {
		t.Error("empty args should decode to an empty map")
	}
	// Raw keeps the provider-native parts for replay.
	raw, ok := result.Assistant.Raw.(geminiContent)
	if !ok || raw.Role != "model" || len(raw.Parts) != 3 {
		t.Errorf("raw = %#v", result.Assistant.Raw)
	}
}

func TestGeminiBuildRequestPinsThinkingBudget(t *testing.T) {
	p := NewGeminiProvider("key", "gemini-test")
	req := p.buildRequest(TurnRequest{
		SystemStable:   "persona",
		SystemVariable: "state",
		MaxTokens:      200,
	})
	if req.GenerationConfig == nil || req.GenerationConfig.ThinkingConfig == nil {
		t.Fatal("thinking config missing")
	}
	if req.GenerationConfig.ThinkingConfig.ThinkingBudget != 0 {
		t.Errorf("thinkingBudget = %d, want 0", req.GenerationConfig.ThinkingConfig.ThinkingBudget)
	}
	if req.SystemInstruction == nil || !strings.Contains(req.SystemInstruction.Parts[0].Text, "persona") {
		t.Errorf("system instruction = %#v", req.SystemInstruction)
	}
}

func TestGeminiBuildContentsRoleMapping(t *testing.T) {
	p := NewGeminiProvider("key", "gemini-test")
	contents := p.buildContents([]*protocol.Message{
		protocol.NewUserMessage("hello"),
		protocol.NewAssistantMessage("hi there"),
		protocol.NewToolResultMessage([]*protocol.ToolResult{{
			ToolCallID: "c1",
			Name:       "see",
			Content:    "a desk",
			ImageData:  "aW1n",
		}}),
	})
	if len(contents) != 3 {
		t.Fatalf("got %d contents", len(contents))
	}
	if contents[0].Role != "user" || contents[1].Role != "model" || contents[2].Role != "user" {
		t.Errorf("roles = %s, %s, %s", contents[0].Role, contents[1].Role, contents[2].Role)
	}
	// Tool results become functionResponse parts with the image inline.
	parts := contents[2].Parts
	if len(parts) != 2 {
		t.Fatalf("tool content has %d parts", len(parts))
	}
	fr := parts[0].FunctionResponse
	if fr == nil || fr.Name != "see" || fr.Response["result"] != "a desk" {
		t.Errorf("functionResponse = %+v", fr)
	}
	if parts[1].InlineData == nil || parts[1].InlineData.Data != "aW1n" {
		t.Errorf("inline image = %+v", parts[1].InlineData)
	}
}

func TestGeminiRawAssistantReplay(t *testing.T) {
	p := NewGeminiProvider("key", "gemini-test")
	raw := geminiContent{Role: "model", Parts: []geminiPart{
		{Text: "checking"},
		{FunctionCall: &geminiFunctionCall{Name: "see", Args: map[string]any{}}},
	}}
	contents := p.buildContents([]*protocol.Message{
		{Role: protocol.RoleAssistant, Parts: []protocol.Part{{Type: protocol.PartTypeText, Text: "checking"}}, Raw: raw},
	})
	if len(contents) != 1 || len(contents[0].Parts) != 2 || contents[0].Parts[1].FunctionCall == nil {
		t.Errorf("raw content not replayed: %#v", contents)
	}
}

func TestGeminiToolsSuppressedWhenDisabled(t *testing.T) {
	p := NewGeminiProvider("key", "gemini-test")
	tools := []tool.Definition{{Name: "see", InputSchema: map[string]any{"type": "object"}}}
	req := p.buildRequest(TurnRequest{Tools: tools, DisableTools: true, MaxTokens: 10})
	if len(req.Tools) != 0 {
		t.Error("DisableTools should suppress function declarations")
	}
}

func TestGeminiComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			t.Errorf("path = %q, want the non-streaming method", r.URL.Path)
		}
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":" curious "}]}}]}`)
	}))
	defer srv.Close()

	p := NewGeminiProvider("key", "gemini-test")
	p.host = srv.URL
	got, err := p.Complete(context.Background(), "one word", 10)
	if err != nil {
		t.Fatal(err)
	}
	if got != "curious" {
		t.Errorf("Complete() = %q", got)
	}
}

func TestGeminiStreamError(t *testing.T) {
	p := geminiTestServer(t, []string{`{"error":{"message":"quota exceeded"}}`})
	_, err := p.StreamTurn(context.Background(), TurnRequest{
		Messages:  []*protocol.Message{protocol.NewUserMessage("hi")},
		MaxTokens: 10,
	}, nil)
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("err = %v", err)
	}
}
