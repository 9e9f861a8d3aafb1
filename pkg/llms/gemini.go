package llms

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/utenadev/familiar-ai/pkg/httpclient"
	"github.com/utenadev/familiar-ai/pkg/protocol"
)

// GeminiProvider speaks the generativelanguage.googleapis.com wire
// protocol: function declarations for tools, inline base64 images,
// function_response parts for tool results. Thinking budget is pinned to
// zero so reasoning tokens never leak into the text stream.
type GeminiProvider struct {
	apiKey     string
	model      string
	host       string
	httpClient *httpclient.Client
}

type geminiRequest struct {
	SystemInstruction *geminiContent   `json:"system_instruction,omitempty"`
	Contents          []geminiContent  `json:"contents"`
	Tools             []geminiTool     `json:"tools,omitempty"`
	GenerationConfig  *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text             string              `json:"text,omitempty"`
	InlineData       *geminiInlineData   `json:"inlineData,omitempty"`
	FunctionCall     *geminiFunctionCall `json:"functionCall,omitempty"`
	FunctionResponse *geminiFuncResponse `json:"functionResponse,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type geminiFuncResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDecl `json:"function_declarations"`
}

type geminiFunctionDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type geminiGenConfig struct {
	MaxOutputTokens int                   `json:"maxOutputTokens,omitempty"`
	ThinkingConfig  *geminiThinkingConfig `json:"thinkingConfig,omitempty"`
}

type geminiThinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *geminiError `json:"error,omitempty"`
}

type geminiError struct {
	Message string `json:"message"`
}

func NewGeminiProvider(apiKey, model string) *GeminiProvider {
	return &GeminiProvider{
		apiKey: apiKey,
		model:  model,
		host:   "https://generativelanguage.googleapis.com",
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 120 * time.Second}),
			httpclient.WithHeaderParser(httpclient.ParseGeminiHeaders),
		),
	}
}

func (p *GeminiProvider) GetModelName() string { return p.model }

func (p *GeminiProvider) Close() error { return nil }

func (p *GeminiProvider) StreamTurn(ctx context.Context, req TurnRequest, onText func(string)) (*protocol.TurnResult, error) {
	request := p.buildRequest(req)
	resp, err := p.post(ctx, request, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var (
		text     strings.Builder
		calls    []*protocol.ToolCall
		rawParts []geminiPart
	)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var chunk geminiResponse
		if err := json.Unmarshal([]byte(line[len("data: "):]), &chunk); err != nil {
			return nil, fmt.Errorf("failed to decode stream chunk: %w", err)
		}
		if chunk.Error != nil {
			return nil, fmt.Errorf("gemini API error: %s", chunk.Error.Message)
		}
		if len(chunk.Candidates) == 0 {
			continue
		}
		for _, part := range chunk.Candidates[0].Content.Parts {
			rawParts = append(rawParts, part)
			if part.Text != "" {
				text.WriteString(part.Text)
				if onText != nil {
					onText(part.Text)
				}
			}
			if part.FunctionCall != nil {
				args := part.FunctionCall.Args
				if args == nil {
					args = map[string]any{}
				}
				// Gemini issues no call ids; synthesize one per call.
				calls = append(calls, &protocol.ToolCall{
					ID:   newCallID(),
					Name: part.FunctionCall.Name,
					Args: args,
				})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}

	parts := []protocol.Part{}
	if text.Len() > 0 {
		parts = append(parts, protocol.Part{Type: protocol.PartTypeText, Text: text.String()})
	}
	for _, tc := range calls {
		parts = append(parts, protocol.Part{Type: protocol.PartTypeToolCall, ToolCall: tc})
	}

	return &protocol.TurnResult{
		StopReason: stopReasonFor(calls),
		Text:       text.String(),
		ToolCalls:  calls,
		Assistant: &protocol.Message{
			Role:  protocol.RoleAssistant,
			Parts: parts,
			Raw:   geminiContent{Role: "model", Parts: rawParts},
		},
	}, nil
}

func (p *GeminiProvider) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	request := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: &geminiGenConfig{
			MaxOutputTokens: maxTokens,
			ThinkingConfig:  &geminiThinkingConfig{ThinkingBudget: 0},
		},
	}
	resp, err := p.post(ctx, request, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	var response geminiResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if response.Error != nil {
		return "", fmt.Errorf("gemini API error: %s", response.Error.Message)
	}
	var text string
	if len(response.Candidates) > 0 {
		for _, part := range response.Candidates[0].Content.Parts {
			text += part.Text
		}
	}
	return strings.TrimSpace(text), nil
}

func (p *GeminiProvider) buildRequest(req TurnRequest) geminiRequest {
	request := geminiRequest{
		Contents: p.buildContents(req.Messages),
		GenerationConfig: &geminiGenConfig{
			MaxOutputTokens: req.MaxTokens,
			ThinkingConfig:  &geminiThinkingConfig{ThinkingBudget: 0},
		},
	}
	if system := joinSystem(req.SystemStable, req.SystemVariable); system != "" {
		request.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	if len(req.Tools) > 0 && !req.DisableTools {
		decls := make([]geminiFunctionDecl, len(req.Tools))
		for i, t := range req.Tools {
			decls[i] = geminiFunctionDecl{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			}
		}
		request.Tools = []geminiTool{{FunctionDeclarations: decls}}
	}
	return request
}

func (p *GeminiProvider) buildContents(messages []*protocol.Message) []geminiContent {
	var out []geminiContent
	for _, msg := range messages {
		switch msg.Role {
		case protocol.RoleUser:
			var parts []geminiPart
			for _, part := range msg.Parts {
				switch part.Type {
				case protocol.PartTypeText:
					parts = append(parts, geminiPart{Text: part.Text})
				case protocol.PartTypeImage:
					mimeType := part.MediaType
					if mimeType == "" {
						mimeType = "image/jpeg"
					}
					parts = append(parts, geminiPart{
						InlineData: &geminiInlineData{MimeType: mimeType, Data: part.Data},
					})
				}
			}
			out = append(out, geminiContent{Role: "user", Parts: parts})

		case protocol.RoleAssistant:
			if raw, ok := msg.Raw.(geminiContent); ok {
				out = append(out, raw)
				continue
			}
			var parts []geminiPart
			for _, part := range msg.Parts {
				switch part.Type {
				case protocol.PartTypeText:
					if part.Text != "" {
						parts = append(parts, geminiPart{Text: part.Text})
					}
				case protocol.PartTypeToolCall:
					parts = append(parts, geminiPart{
						FunctionCall: &geminiFunctionCall{Name: part.ToolCall.Name, Args: part.ToolCall.Args},
					})
				}
			}
			out = append(out, geminiContent{Role: "model", Parts: parts})

		case protocol.RoleTool:
			var parts []geminiPart
			for _, r := range protocol.GetToolResults(msg) {
				parts = append(parts, geminiPart{
					FunctionResponse: &geminiFuncResponse{
						Name:     r.Name,
						Response: map[string]any{"result": r.Content},
					},
				})
				if r.ImageData != "" {
					mimeType := r.MediaType
					if mimeType == "" {
						mimeType = "image/jpeg"
					}
					parts = append(parts, geminiPart{
						InlineData: &geminiInlineData{MimeType: mimeType, Data: r.ImageData},
					})
				}
			}
			out = append(out, geminiContent{Role: "user", Parts: parts})
		}
	}
	return out
}

func (p *GeminiProvider) post(ctx context.Context, request geminiRequest, stream bool) (*http.Response, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	method := "generateContent"
	query := ""
	if stream {
		method = "streamGenerateContent"
		query = "?alt=sse"
	}
	url := fmt.Sprintf("%s/v1beta/models/%s:%s%s", p.host, p.model, method, query)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(jsonData)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.apiKey)

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
