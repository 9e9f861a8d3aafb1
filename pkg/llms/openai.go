package llms

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/utenadev/familiar-ai/pkg/httpclient"
	"github.com/utenadev/familiar-ai/pkg/protocol"
)

// OpenAIProvider speaks the chat-completions wire protocol. It serves
// three platforms: real OpenAI, any OpenAI-compatible server (Ollama,
// vllm, lm-studio), and Kimi, whose streamed chunks carry a
// reasoning_content side-channel that must be round-tripped.
type OpenAIProvider struct {
	apiKey  string
	model   string
	baseURL string
	// reasoning enables reasoning_content accumulation and round-trip.
	reasoning  bool
	httpClient *httpclient.Client
}

// openaiMessage is the wire message; it also serves as the raw assistant
// payload stored on protocol.Message.Raw for verbatim reinjection.
type openaiMessage struct {
	Role             string           `json:"role"`
	Content          any              `json:"content"`
	ToolCallID       string           `json:"tool_call_id,omitempty"`
	ToolCalls        []openaiToolCall `json:"tool_calls,omitempty"`
	ReasoningContent string           `json:"reasoning_content,omitempty"`
}

type openaiToolCall struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Function openaiFunction `json:"function"`
}

type openaiFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openaiTool struct {
	Type     string            `json:"type"`
	Function openaiFunctionDef `json:"function"`
}

type openaiFunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type openaiContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openaiImageURL `json:"image_url,omitempty"`
}

type openaiImageURL struct {
	URL string `json:"url"`
}

type openaiRequest struct {
	Model    string          `json:"model"`
	Messages []openaiMessage `json:"messages"`
	// Strict OpenAI endpoints require max_completion_tokens; everything
	// else still takes max_tokens. Exactly one is set.
	MaxTokens           int          `json:"max_tokens,omitempty"`
	MaxCompletionTokens int          `json:"max_completion_tokens,omitempty"`
	Stream              bool         `json:"stream,omitempty"`
	Tools               []openaiTool `json:"tools,omitempty"`
}

type openaiStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
			ToolCalls        []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *openaiError `json:"error,omitempty"`
}

type openaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *openaiError `json:"error,omitempty"`
}

type openaiError struct {
	Message string `json:"message"`
}

func NewOpenAIProvider(apiKey, model, baseURL string) *OpenAIProvider {
	if apiKey == "" {
		apiKey = "local"
	}
	return &OpenAIProvider{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 120 * time.Second}),
			httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
		),
	}
}

// NewKimiProvider returns an OpenAI-wire provider with reasoning_content
// round-trip enabled. Kimi rejects follow-up tool calls when the
// reasoning side-channel is dropped from the replayed assistant message.
func NewKimiProvider(apiKey, model, baseURL string) *OpenAIProvider {
	p := NewOpenAIProvider(apiKey, model, baseURL)
	p.reasoning = true
	return p
}

func (p *OpenAIProvider) GetModelName() string { return p.model }

func (p *OpenAIProvider) Close() error { return nil }

func (p *OpenAIProvider) useCompletionTokens() bool {
	return strings.Contains(p.baseURL, "api.openai.com")
}

func (p *OpenAIProvider) StreamTurn(ctx context.Context, req TurnRequest, onText func(string)) (*protocol.TurnResult, error) {
	request := p.buildRequest(req, true)
	resp, err := p.post(ctx, request)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var (
		textBuf      strings.Builder
		reasoningBuf strings.Builder
		rawCalls     = make(map[int]*openaiToolCall)
		argBuffers   = make(map[int]string)
		filter       thoughtFilter
	)
	emit := func(s string) {
		textBuf.WriteString(s)
		if onText != nil {
			onText(s)
		}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := line[len("data: "):]
		if data == "[DONE]" {
			break
		}
		var chunk openaiStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil, fmt.Errorf("failed to decode stream chunk: %w", err)
		}
		if chunk.Error != nil {
			return nil, fmt.Errorf("API error: %s", chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.Delta.ReasoningContent != "" {
			reasoningBuf.WriteString(choice.Delta.ReasoningContent)
		}
		if choice.Delta.Content != "" {
			filter.Feed(choice.Delta.Content, emit)
		}
		for _, tc := range choice.Delta.ToolCalls {
			entry, ok := rawCalls[tc.Index]
			if !ok {
				entry = &openaiToolCall{Type: "function"}
				rawCalls[tc.Index] = entry
			}
			if tc.ID != "" {
				entry.ID = tc.ID
			}
			if tc.Function.Name != "" {
				entry.Function.Name = tc.Function.Name
			}
			argBuffers[tc.Index] += tc.Function.Arguments
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}
	filter.Flush(emit)

	indexes := make([]int, 0, len(rawCalls))
	for i := range rawCalls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	text := textBuf.String()
	var (
		calls     []*protocol.ToolCall
		wireCalls []openaiToolCall
	)
	for _, i := range indexes {
		entry := rawCalls[i]
		args := map[string]any{}
		// Each argument object decodes independently so one malformed
		// call does not poison the rest.
		if buf := argBuffers[i]; buf != "" {
			if err := json.Unmarshal([]byte(buf), &args); err != nil {
				slog.Warn("malformed tool-call arguments", "tool", entry.Function.Name, "error", err)
				args = map[string]any{}
			}
		}
		calls = append(calls, &protocol.ToolCall{ID: entry.ID, Name: entry.Function.Name, Args: args})
		argJSON, _ := json.Marshal(args)
		wireCalls = append(wireCalls, openaiToolCall{
			ID:   entry.ID,
			Type: "function",
			Function: openaiFunction{
				Name:      entry.Function.Name,
				Arguments: string(argJSON),
			},
		})
	}

	// Some servers report finish_reason=tool_calls without ever sending a
	// tool-call delta; tool_use without calls would wedge the turn loop.
	stop := protocol.StopEndTurn
	if len(calls) > 0 {
		stop = protocol.StopToolUse
	}

	raw := openaiMessage{Role: "assistant", ToolCalls: wireCalls}
	if text != "" {
		raw.Content = text
	}
	if p.reasoning {
		raw.ReasoningContent = reasoningBuf.String()
	}

	parts := []protocol.Part{}
	if text != "" {
		parts = append(parts, protocol.Part{Type: protocol.PartTypeText, Text: text})
	}
	for _, tc := range calls {
		parts = append(parts, protocol.Part{Type: protocol.PartTypeToolCall, ToolCall: tc})
	}

	return &protocol.TurnResult{
		StopReason: stop,
		Text:       text,
		ToolCalls:  calls,
		Assistant:  &protocol.Message{Role: protocol.RoleAssistant, Parts: parts, Raw: raw},
	}, nil
}

func (p *OpenAIProvider) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	request := openaiRequest{
		Model:    p.model,
		Messages: []openaiMessage{{Role: "user", Content: prompt}},
	}
	p.setMaxTokens(&request, maxTokens)

	resp, err := p.post(ctx, request)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	var response openaiResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if response.Error != nil {
		return "", fmt.Errorf("API error: %s", response.Error.Message)
	}
	if len(response.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

func (p *OpenAIProvider) buildRequest(req TurnRequest, stream bool) openaiRequest {
	messages := []openaiMessage{{Role: "system", Content: joinSystem(req.SystemStable, req.SystemVariable)}}
	messages = append(messages, p.buildMessages(req.Messages)...)

	request := openaiRequest{
		Model:    p.model,
		Messages: messages,
		Stream:   stream,
	}
	p.setMaxTokens(&request, req.MaxTokens)
	if len(req.Tools) > 0 && !req.DisableTools {
		request.Tools = make([]openaiTool, len(req.Tools))
		for i, t := range req.Tools {
			request.Tools[i] = openaiTool{
				Type: "function",
				Function: openaiFunctionDef{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.InputSchema,
				},
			}
		}
	}
	return request
}

func (p *OpenAIProvider) setMaxTokens(request *openaiRequest, maxTokens int) {
	if p.useCompletionTokens() {
		request.MaxCompletionTokens = maxTokens
	} else {
		request.MaxTokens = maxTokens
	}
}

func (p *OpenAIProvider) buildMessages(messages []*protocol.Message) []openaiMessage {
	var out []openaiMessage
	for _, msg := range messages {
		switch msg.Role {
		case protocol.RoleUser:
			out = append(out, openaiUserMessage(msg))

		case protocol.RoleAssistant:
			if raw, ok := msg.Raw.(openaiMessage); ok {
				out = append(out, raw)
				continue
			}
			out = append(out, openaiMessage{Role: "assistant", Content: protocol.ExtractText(msg)})

		case protocol.RoleTool:
			// Tool messages carry text only; images travel in a separate
			// user message because many servers reject image parts inside
			// role=tool messages.
			for _, r := range protocol.GetToolResults(msg) {
				out = append(out, openaiMessage{Role: "tool", ToolCallID: r.ToolCallID, Content: r.Content})
				if r.ImageData != "" {
					out = append(out, openaiMessage{
						Role: "user",
						Content: []openaiContentPart{
							{Type: "text", Text: "(camera image attached)"},
							{Type: "image_url", ImageURL: &openaiImageURL{
								URL: "data:image/jpeg;base64," + r.ImageData,
							}},
						},
					})
				}
			}
		}
	}
	return out
}

func openaiUserMessage(msg *protocol.Message) openaiMessage {
	hasImage := false
	for _, part := range msg.Parts {
		if part.Type == protocol.PartTypeImage {
			hasImage = true
			break
		}
	}
	if !hasImage {
		return openaiMessage{Role: "user", Content: protocol.ExtractText(msg)}
	}
	var parts []openaiContentPart
	for _, part := range msg.Parts {
		switch part.Type {
		case protocol.PartTypeText:
			parts = append(parts, openaiContentPart{Type: "text", Text: part.Text})
		case protocol.PartTypeImage:
			mediaType := part.MediaType
			if mediaType == "" {
				mediaType = "image/jpeg"
			}
			parts = append(parts, openaiContentPart{
				Type:     "image_url",
				ImageURL: &openaiImageURL{URL: "data:" + mediaType + ";base64," + part.Data},
			})
		}
	}
	return openaiMessage{Role: "user", Content: parts}
}

func (p *OpenAIProvider) post(ctx context.Context, request openaiRequest) (*http.Response, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(jsonData)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}
	return resp, nil
}

// thoughtFilter suppresses a thinking preamble some servers leak into the
// text stream: a literal "THOUGHT" opener running until the first blank
// line. Text is buffered until the first seven characters decide whether
// a preamble is present.
type thoughtFilter struct {
	buf     string
	state   int // 0 undecided, 1 inside preamble, 2 passthrough
}

func (f *thoughtFilter) Feed(chunk string, emit func(string)) {
	switch f.state {
	case 0:
		f.buf += chunk
		if strings.HasPrefix(f.buf, "THOUGHT") {
			f.state = 1
			f.drainPreamble(emit)
			return
		}
		if len(f.buf) >= len("THOUGHT") && !strings.HasPrefix("THOUGHT", f.buf) {
			f.state = 2
			emit(f.buf)
			f.buf = ""
		}
	case 1:
		f.buf += chunk
		f.drainPreamble(emit)
	default:
		emit(chunk)
	}
}

func (f *thoughtFilter) drainPreamble(emit func(string)) {
	if idx := strings.Index(f.buf, "\n\n"); idx != -1 {
		rest := f.buf[idx+2:]
		f.buf = ""
		f.state = 2
		if rest != "" {
			emit(rest)
		}
	}
}

// Flush releases any undecided buffer at end of stream. A fully buffered
// preamble with no terminator is dropped.
func (f *thoughtFilter) Flush(emit func(string)) {
	if f.state == 0 && f.buf != "" {
		emit(f.buf)
	}
	f.buf = ""
}
