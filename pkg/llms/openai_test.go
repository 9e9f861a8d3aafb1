package llms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/utenadev/familiar-ai/pkg/protocol"
	"github.com/utenadev/familiar-ai/pkg/tool"
)

// sseServer replays the given data payloads as an SSE stream and records
// the request body for assertions.
func sseServer(t *testing.T, payloads []string, lastBody *[]byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if lastBody != nil {
			*lastBody = body
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, p := range payloads {
			fmt.Fprintf(w, "data: %s\n\n", p)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func contentChunk(text string) string {
	return fmt.Sprintf(`{"choices":[{"delta":{"content":%q}}]}`, text)
}

func TestOpenAIStreamTurnText(t *testing.T) {
	var body []byte
	srv := sseServer(t, []string{
		contentChunk("Hello"),
		contentChunk(", world"),
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
	}, &body)
	defer srv.Close()

	p := NewOpenAIProvider("key", "gpt-test", srv.URL)
	var streamed strings.Builder
	result, err := p.StreamTurn(context.Background(), TurnRequest{
		SystemStable:   "stable",
		SystemVariable: "variable",
		Messages:       []*protocol.Message{protocol.NewUserMessage("hi")},
		MaxTokens:      256,
	}, func(s string) { streamed.WriteString(s) })
	if err != nil {
		t.Fatal(err)
	}
	if result.Text != "Hello, world" {
		t.Errorf("text = %q", result.Text)
	}
	if streamed.String() != "Hello, world" {
		t.Errorf("streamed = %q", streamed.String())
	}
	if result.StopReason != protocol.StopEndTurn {
		t.Errorf("stop = %q", result.StopReason)
	}

	var req openaiRequest
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatal(err)
	}
	// Both system halves join into one system message.
	if req.Messages[0].Role != "system" {
		t.Fatalf("first message role = %q", req.Messages[0].Role)
	}
	sys, _ := req.Messages[0].Content.(string)
	if !strings.Contains(sys, "stable") || !strings.Contains(sys, "variable") {
		t.Errorf("system = %q", sys)
	}
	// Non-OpenAI endpoints use max_tokens.
	if req.MaxTokens != 256 || req.MaxCompletionTokens != 0 {
		t.Errorf("max_tokens=%d max_completion_tokens=%d", req.MaxTokens, req.MaxCompletionTokens)
	}
}

func TestOpenAIFinishReasonWithoutCallsEndsTurn(t *testing.T) {
	// finish_reason=tool_calls but no tool-call deltas ever arrive.
	srv := sseServer(t, []string{
		contentChunk("let me check"),
		`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
	}, nil)
	defer srv.Close()

	p := NewOpenAIProvider("key", "gpt-test", srv.URL)
	result, err := p.StreamTurn(context.Background(), TurnRequest{
		Messages: []*protocol.Message{protocol.NewUserMessage("look")},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.StopReason != protocol.StopEndTurn {
		t.Errorf("stop = %q with zero tool calls", result.StopReason)
	}
	if len(result.ToolCalls) != 0 {
		t.Errorf("calls = %+v", result.ToolCalls)
	}
}

func TestOpenAIStreamTurnToolCallDeltas(t *testing.T) {
	srv := sseServer(t, []string{
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_a","function":{"name":"see","arguments":""}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"direc"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"tion\":\"front\"}"}},{"index":1,"id":"call_b","function":{"name":"say","arguments":"{\"text\":\"hi\"}"}}]}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
	}, nil)
	defer srv.Close()

	p := NewOpenAIProvider("key", "gpt-test", srv.URL)
	result, err := p.StreamTurn(context.Background(), TurnRequest{
		Messages: []*protocol.Message{protocol.NewUserMessage("look")},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.StopReason != protocol.StopToolUse {
		t.Errorf("stop = %q", result.StopReason)
	}
	if len(result.ToolCalls) != 2 {
		t.Fatalf("got %d calls", len(result.ToolCalls))
	}
	first := result.ToolCalls[0]
	if first.ID != "call_a" || first.Name != "see" || first.Args["direction"] != "front" {
		t.Errorf("first call = %+v args=%v", first, first.Args)
	}
	second := result.ToolCalls[1]
	if second.Name != "say" || second.Args["text"] != "hi" {
		t.Errorf("second call = %+v args=%v", second, second.Args)
	}
}

func TestOpenAIStreamTurnMalformedArguments(t *testing.T) {
	srv := sseServer(t, []string{
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"c","function":{"name":"see","arguments":"{broken"}}]}}]}`,
	}, nil)
	defer srv.Close()

	p := NewOpenAIProvider("key", "m", srv.URL)
	result, err := p.StreamTurn(context.Background(), TurnRequest{
		Messages: []*protocol.Message{protocol.NewUserMessage("x")},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.ToolCalls) != 1 {
		t.Fatalf("got %d calls", len(result.ToolCalls))
	}
	if len(result.ToolCalls[0].Args) != 0 {
		t.Errorf("malformed args should decode to empty object, got %v", result.ToolCalls[0].Args)
	}
}

func TestOpenAIStreamTurnFiltersThoughtPreamble(t *testing.T) {
	srv := sseServer(t, []string{
		contentChunk("THOUGHT: the user greeted me"),
		contentChunk("\n\nHello!"),
	}, nil)
	defer srv.Close()

	p := NewOpenAIProvider("key", "m", srv.URL)
	var streamed strings.Builder
	result, err := p.StreamTurn(context.Background(), TurnRequest{
		Messages: []*protocol.Message{protocol.NewUserMessage("hi")},
	}, func(s string) { streamed.WriteString(s) })
	if err != nil {
		t.Fatal(err)
	}
	if result.Text != "Hello!" {
		t.Errorf("text = %q", result.Text)
	}
	if streamed.String() != "Hello!" {
		t.Errorf("streamed = %q", streamed.String())
	}
}

func TestOpenAIStreamTurnAPIError(t *testing.T) {
	srv := sseServer(t, []string{`{"error":{"message":"model overloaded"}}`}, nil)
	defer srv.Close()

	p := NewOpenAIProvider("key", "m", srv.URL)
	_, err := p.StreamTurn(context.Background(), TurnRequest{
		Messages: []*protocol.Message{protocol.NewUserMessage("hi")},
	}, nil)
	if err == nil || !strings.Contains(err.Error(), "model overloaded") {
		t.Errorf("err = %v", err)
	}
}

func TestKimiReasoningRoundTrip(t *testing.T) {
	var body []byte
	srv := sseServer(t, []string{
		`{"choices":[{"delta":{"reasoning_content":"thinking "}}]}`,
		`{"choices":[{"delta":{"reasoning_content":"hard"}}]}`,
		contentChunk("Done."),
	}, &body)
	defer srv.Close()

	p := NewKimiProvider("key", "kimi-test", srv.URL)
	result, err := p.StreamTurn(context.Background(), TurnRequest{
		Messages: []*protocol.Message{protocol.NewUserMessage("hi")},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	raw, ok := result.Assistant.Raw.(openaiMessage)
	if !ok {
		t.Fatalf("Raw is %T", result.Assistant.Raw)
	}
	if raw.ReasoningContent != "thinking hard" {
		t.Errorf("reasoning = %q", raw.ReasoningContent)
	}

	// The raw payload is replayed verbatim on the next request.
	srv2 := sseServer(t, []string{contentChunk("ok")}, &body)
	defer srv2.Close()
	p2 := NewKimiProvider("key", "kimi-test", srv2.URL)
	_, err = p2.StreamTurn(context.Background(), TurnRequest{
		Messages: []*protocol.Message{protocol.NewUserMessage("hi"), result.Assistant},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), `"reasoning_content":"thinking hard"`) {
		t.Errorf("replayed request lost reasoning_content:\n%s", body)
	}
}

func TestOpenAIMaxCompletionTokensForOpenAIDotCom(t *testing.T) {
	p := NewOpenAIProvider("key", "gpt-test", "https://api.openai.com/v1")
	req := p.buildRequest(TurnRequest{MaxTokens: 128}, true)
	if req.MaxCompletionTokens != 128 || req.MaxTokens != 0 {
		t.Errorf("max_tokens=%d max_completion_tokens=%d", req.MaxTokens, req.MaxCompletionTokens)
	}
}

func TestOpenAIBuildRequestTools(t *testing.T) {
	p := NewOpenAIProvider("key", "m", "http://localhost:11434/v1")
	tools := []tool.Definition{{Name: "see", Description: "camera", InputSchema: map[string]any{"type": "object"}}}

	req := p.buildRequest(TurnRequest{Tools: tools}, true)
	if len(req.Tools) != 1 || req.Tools[0].Function.Name != "see" {
		t.Errorf("tools = %+v", req.Tools)
	}
	req = p.buildRequest(TurnRequest{Tools: tools, DisableTools: true}, true)
	if len(req.Tools) != 0 {
		t.Error("DisableTools should suppress the tools array")
	}
}

func TestOpenAIBuildMessagesToolResultWithImage(t *testing.T) {
	p := NewOpenAIProvider("key", "m", "http://localhost:11434/v1")
	msgs := p.buildMessages([]*protocol.Message{
		protocol.NewToolResultMessage([]*protocol.ToolResult{{
			ToolCallID: "c1",
			Name:       "see",
			Content:    "a cat",
			ImageData:  "aW1n",
		}}),
	})
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want tool + follow-up user", len(msgs))
	}
	if msgs[0].Role != "tool" || msgs[0].ToolCallID != "c1" {
		t.Errorf("tool message = %+v", msgs[0])
	}
	parts, ok := msgs[1].Content.([]openaiContentPart)
	if msgs[1].Role != "user" || !ok {
		t.Fatalf("follow-up = %+v", msgs[1])
	}
	foundImage := false
	for _, part := range parts {
		if part.Type == "image_url" && strings.Contains(part.ImageURL.URL, "base64,aW1n") {
			foundImage = true
		}
	}
	if !foundImage {
		t.Error("image part missing from follow-up user message")
	}
}

func TestOpenAIComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"  forty-two  "}}]}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("key", "m", srv.URL)
	got, err := p.Complete(context.Background(), "meaning of life?", 50)
	if err != nil {
		t.Fatal(err)
	}
	if got != "forty-two" {
		t.Errorf("Complete() = %q", got)
	}
}

func TestOpenAICompleteHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such model", http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("key", "m", srv.URL)
	_, err := p.Complete(context.Background(), "hi", 50)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("err = %v", err)
	}
}

func TestThoughtFilter(t *testing.T) {
	collect := func(feeds []string) string {
		var f thoughtFilter
		var out strings.Builder
		emit := func(s string) { out.WriteString(s) }
		for _, chunk := range feeds {
			f.Feed(chunk, emit)
		}
		f.Flush(emit)
		return out.String()
	}

	tests := []struct {
		name  string
		feeds []string
		want  string
	}{
		{"plain text passes through", []string{"Hello", " there"}, "Hello there"},
		{"preamble dropped", []string{"THOUGHT: hmm\n\nanswer"}, "answer"},
		{"preamble split across chunks", []string{"THO", "UGHT: hm", "m\n\nan", "swer"}, "answer"},
		{"short non-preamble flushed", []string{"Hi"}, "Hi"},
		{"unterminated preamble dropped", []string{"THOUGHT: never ends"}, ""},
		{"THOUGH prefix but not THOUGHT", []string{"THOUGH it rained, we walked"}, "THOUGH it rained, we walked"},
	}
	for _, tt := range tests {
		if got := collect(tt.feeds); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}
