package llms

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/utenadev/familiar-ai/pkg/httpclient"
	"github.com/utenadev/familiar-ai/pkg/protocol"
)

const anthropicVersion = "2023-06-01"

// AnthropicProvider speaks the Anthropic Messages API. The stable half of
// the system prompt is sent as a cacheable block.
type AnthropicProvider struct {
	apiKey     string
	model      string
	host       string
	httpClient *httpclient.Client
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicCacheControl struct {
	Type string `json:"type"`
}

type anthropicSystemBlock struct {
	Type         string                 `json:"type"`
	Text         string                 `json:"text"`
	CacheControl *anthropicCacheControl `json:"cache_control,omitempty"`
}

type anthropicRequest struct {
	Model     string                 `json:"model"`
	Messages  []anthropicMessage     `json:"messages"`
	MaxTokens int                    `json:"max_tokens"`
	Stream    bool                   `json:"stream,omitempty"`
	System    []anthropicSystemBlock `json:"system,omitempty"`
	Tools     []anthropicTool        `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role string `json:"role"`
	// Content is either a string or []anthropicContent.
	Content any `json:"content"`
}

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicContent struct {
	Type string `json:"type"`

	Text   string                `json:"text,omitempty"`
	Source *anthropicImageSource `json:"source,omitempty"`

	// tool_use fields
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input *map[string]any `json:"input,omitempty"`

	// tool_result fields; Content nests []anthropicContent.
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   any    `json:"content,omitempty"`
}

type anthropicResponse struct {
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Error      *anthropicError    `json:"error,omitempty"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type anthropicStreamEvent struct {
	Type         string             `json:"type"`
	Index        int                `json:"index,omitempty"`
	Delta        *anthropicDelta    `json:"delta,omitempty"`
	ContentBlock *anthropicContent  `json:"content_block,omitempty"`
	Error        *anthropicError    `json:"error,omitempty"`
	Message      *anthropicResponse `json:"message,omitempty"`
}

type anthropicDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	return &AnthropicProvider{
		apiKey: apiKey,
		model:  model,
		host:   "https://api.anthropic.com",
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 120 * time.Second}),
			httpclient.WithHeaderParser(httpclient.ParseAnthropicHeaders),
		),
	}
}

func (p *AnthropicProvider) GetModelName() string { return p.model }

func (p *AnthropicProvider) Close() error { return nil }

func (p *AnthropicProvider) StreamTurn(ctx context.Context, req TurnRequest, onText func(string)) (*protocol.TurnResult, error) {
	request := p.buildRequest(req, true)
	resp, err := p.post(ctx, request)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var (
		blocks      []anthropicContent
		textBlocks  = make(map[int]string)
		toolCalls   = make(map[int]*protocol.ToolCall)
		jsonBuffers = make(map[int]string)
		stopReason  = protocol.StopEndTurn
	)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event anthropicStreamEvent
		if err := json.Unmarshal([]byte(line[len("data: "):]), &event); err != nil {
			return nil, fmt.Errorf("failed to decode stream event: %w", err)
		}

		switch event.Type {
		case "error":
			if event.Error != nil {
				return nil, fmt.Errorf("anthropic API error: %s", event.Error.Message)
			}
		case "content_block_start":
			if event.ContentBlock != nil && event.ContentBlock.Type == "tool_use" {
				toolCalls[event.Index] = &protocol.ToolCall{
					ID:   event.ContentBlock.ID,
					Name: event.ContentBlock.Name,
					Args: map[string]any{},
				}
			}
		case "content_block_delta":
			if event.Delta == nil {
				continue
			}
			if event.Delta.Text != "" {
				textBlocks[event.Index] += event.Delta.Text
				if onText != nil {
					onText(event.Delta.Text)
				}
			}
			if event.Delta.Type == "input_json_delta" && event.Delta.PartialJSON != "" {
				jsonBuffers[event.Index] += event.Delta.PartialJSON
			}
		case "message_delta":
			if event.Delta != nil && event.Delta.StopReason != "" {
				if event.Delta.StopReason == "tool_use" {
					stopReason = protocol.StopToolUse
				} else {
					stopReason = protocol.StopEndTurn
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}

	// Reassemble blocks in index order so the raw assistant payload
	// mirrors what the server produced.
	indexes := make([]int, 0, len(textBlocks)+len(toolCalls))
	for i := range textBlocks {
		indexes = append(indexes, i)
	}
	for i := range toolCalls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	var (
		text  string
		calls []*protocol.ToolCall
		parts []protocol.Part
	)
	seen := make(map[int]bool)
	for _, i := range indexes {
		if seen[i] {
			continue
		}
		seen[i] = true
		if t, ok := textBlocks[i]; ok {
			text += t
			parts = append(parts, protocol.Part{Type: protocol.PartTypeText, Text: t})
			blocks = append(blocks, anthropicContent{Type: "text", Text: t})
		}
		if tc, ok := toolCalls[i]; ok {
			if buf := jsonBuffers[i]; buf != "" {
				var args map[string]any
				if err := json.Unmarshal([]byte(buf), &args); err == nil {
					tc.Args = args
				}
			}
			calls = append(calls, tc)
			parts = append(parts, protocol.Part{Type: protocol.PartTypeToolCall, ToolCall: tc})
			input := tc.Args
			blocks = append(blocks, anthropicContent{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: &input})
		}
	}

	return &protocol.TurnResult{
		StopReason: stopReason,
		Text:       text,
		ToolCalls:  calls,
		Assistant:  &protocol.Message{Role: protocol.RoleAssistant, Parts: parts, Raw: blocks},
	}, nil
}

func (p *AnthropicProvider) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	request := anthropicRequest{
		Model:     p.model,
		MaxTokens: maxTokens,
		Messages: []anthropicMessage{
			{Role: "user", Content: prompt},
		},
	}
	resp, err := p.post(ctx, request)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	var response anthropicResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if response.Error != nil {
		return "", fmt.Errorf("anthropic API error: %s", response.Error.Message)
	}
	var text string
	for _, block := range response.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}

func (p *AnthropicProvider) buildRequest(req TurnRequest, stream bool) anthropicRequest {
	var system []anthropicSystemBlock
	if req.SystemStable != "" {
		system = append(system, anthropicSystemBlock{
			Type:         "text",
			Text:         req.SystemStable,
			CacheControl: &anthropicCacheControl{Type: "ephemeral"},
		})
	}
	if req.SystemVariable != "" {
		system = append(system, anthropicSystemBlock{Type: "text", Text: req.SystemVariable})
	}

	request := anthropicRequest{
		Model:     p.model,
		Messages:  p.buildMessages(req.Messages),
		MaxTokens: req.MaxTokens,
		Stream:    stream,
		System:    system,
	}
	if len(req.Tools) > 0 && !req.DisableTools {
		request.Tools = make([]anthropicTool, len(req.Tools))
		for i, t := range req.Tools {
			request.Tools[i] = anthropicTool{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: t.InputSchema,
			}
		}
	}
	return request
}

func (p *AnthropicProvider) buildMessages(messages []*protocol.Message) []anthropicMessage {
	out := make([]anthropicMessage, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case protocol.RoleUser:
			out = append(out, anthropicMessage{Role: "user", Content: userContent(msg)})

		case protocol.RoleAssistant:
			if blocks, ok := msg.Raw.([]anthropicContent); ok {
				out = append(out, anthropicMessage{Role: "assistant", Content: blocks})
				continue
			}
			var blocks []anthropicContent
			for _, part := range msg.Parts {
				switch part.Type {
				case protocol.PartTypeText:
					if part.Text != "" {
						blocks = append(blocks, anthropicContent{Type: "text", Text: part.Text})
					}
				case protocol.PartTypeToolCall:
					input := part.ToolCall.Args
					if input == nil {
						input = map[string]any{}
					}
					blocks = append(blocks, anthropicContent{
						Type: "tool_use", ID: part.ToolCall.ID, Name: part.ToolCall.Name, Input: &input,
					})
				}
			}
			out = append(out, anthropicMessage{Role: "assistant", Content: blocks})

		case protocol.RoleTool:
			var blocks []anthropicContent
			for _, r := range protocol.GetToolResults(msg) {
				nested := []anthropicContent{{Type: "text", Text: r.Content}}
				if r.ImageData != "" {
					mediaType := r.MediaType
					if mediaType == "" {
						mediaType = "image/jpeg"
					}
					nested = append(nested, anthropicContent{
						Type:   "image",
						Source: &anthropicImageSource{Type: "base64", MediaType: mediaType, Data: r.ImageData},
					})
				}
				blocks = append(blocks, anthropicContent{
					Type:      "tool_result",
					ToolUseID: r.ToolCallID,
					Content:   nested,
				})
			}
			out = append(out, anthropicMessage{Role: "user", Content: blocks})
		}
	}
	return out
}

func userContent(msg *protocol.Message) []anthropicContent {
	var blocks []anthropicContent
	for _, part := range msg.Parts {
		switch part.Type {
		case protocol.PartTypeText:
			blocks = append(blocks, anthropicContent{Type: "text", Text: part.Text})
		case protocol.PartTypeImage:
			mediaType := part.MediaType
			if mediaType == "" {
				mediaType = "image/jpeg"
			}
			blocks = append(blocks, anthropicContent{
				Type:   "image",
				Source: &anthropicImageSource{Type: "base64", MediaType: mediaType, Data: part.Data},
			})
		}
	}
	return blocks
}

func (p *AnthropicProvider) post(ctx context.Context, request anthropicRequest) (*http.Response, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/v1/messages", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(jsonData)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

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
