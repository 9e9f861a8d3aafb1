package llms

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/utenadev/familiar-ai/pkg/protocol"
	"github.com/utenadev/familiar-ai/pkg/tool"
)

// Prompt-based tool calling for models without native function calling
// (most local VLMs, plus the cli flavor). Tool schemas are injected into
// the system prompt; the model answers with <tool_call> JSON blocks that
// are parsed back out of the completion text.

const toolsPromptHeader = `

---
[USING TOOLS]
You MUST use tools by outputting a <tool_call> block. This is the ONLY way to take actions.

RULE: When you want to use a tool, output EXACTLY this pattern and nothing after it:
<tool_call>{"name": "...", "input": {...}}</tool_call>

Then STOP. Do not write anything after the closing tag. The result will be given to you next.

CONCRETE EXAMPLES:
%s

Available tools:
%s
[/USING TOOLS]
`

var toolCallRe = regexp.MustCompile(`(?s)<tool_call>(.*?)</tool_call>`)

// PromptToolingProvider decorates any text-capable Provider with
// prompt-based tool calling.
type PromptToolingProvider struct {
	inner Provider
}

func WithPromptTooling(inner Provider) *PromptToolingProvider {
	return &PromptToolingProvider{inner: inner}
}

func (p *PromptToolingProvider) GetModelName() string { return p.inner.GetModelName() }

func (p *PromptToolingProvider) Close() error { return p.inner.Close() }

func (p *PromptToolingProvider) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return p.inner.Complete(ctx, prompt, maxTokens)
}

func (p *PromptToolingProvider) StreamTurn(ctx context.Context, req TurnRequest, onText func(string)) (*protocol.TurnResult, error) {
	inner := TurnRequest{
		// The tooling block is stable across turns, so it rides with the
		// cacheable half of the system prompt.
		SystemStable:   req.SystemStable + BuildToolingBlock(req.Tools),
		SystemVariable: req.SystemVariable,
		Messages:       rewriteToolMessages(req.Messages),
		MaxTokens:      req.MaxTokens,
		DisableTools:   true,
	}

	result, err := p.inner.StreamTurn(ctx, inner, onText)
	if err != nil {
		return nil, err
	}

	fullText := result.Text
	calls := ParseToolCalls(fullText)
	cleanText := strings.TrimSpace(toolCallRe.ReplaceAllString(fullText, ""))

	parts := []protocol.Part{}
	if fullText != "" {
		// The assistant message keeps the tags so the model sees its own
		// calls when the transcript is replayed.
		parts = append(parts, protocol.Part{Type: protocol.PartTypeText, Text: fullText})
	}
	for _, tc := range calls {
		parts = append(parts, protocol.Part{Type: protocol.PartTypeToolCall, ToolCall: tc})
	}

	return &protocol.TurnResult{
		StopReason: stopReasonFor(calls),
		Text:       cleanText,
		ToolCalls:  calls,
		Assistant:  &protocol.Message{Role: protocol.RoleAssistant, Parts: parts},
	}, nil
}

// rewriteToolMessages converts tool-result messages into plain user
// messages with bracketed result blocks, the only shape a tool-less wire
// can carry. Images ride along as inline parts.
func rewriteToolMessages(messages []*protocol.Message) []*protocol.Message {
	out := make([]*protocol.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role != protocol.RoleTool {
			out = append(out, msg)
			continue
		}
		rewritten := &protocol.Message{Role: protocol.RoleUser}
		for _, r := range protocol.GetToolResults(msg) {
			rewritten.Parts = append(rewritten.Parts, protocol.Part{
				Type: protocol.PartTypeText,
				Text: fmt.Sprintf("[Tool result: %s]\n%s", r.Name, r.Content),
			})
			if r.ImageData != "" {
				mediaType := r.MediaType
				if mediaType == "" {
					mediaType = "image/jpeg"
				}
				rewritten.Parts = append(rewritten.Parts, protocol.Part{
					Type:      protocol.PartTypeImage,
					MediaType: mediaType,
					Data:      r.ImageData,
				})
			}
		}
		out = append(out, rewritten)
	}
	return out
}

// BuildToolingBlock renders the system-prompt section describing the
// tools, with one concrete example per tool synthesized from its schema:
// enum fields use their first value, numeric fields their default, and
// everything else a <name> placeholder.
func BuildToolingBlock(tools []tool.Definition) string {
	if len(tools) == 0 {
		return ""
	}
	var descLines, exampleLines []string
	for _, t := range tools {
		descLines = append(descLines, fmt.Sprintf("- %s: %s", t.Name, t.Description))

		example := map[string]any{}
		props, _ := t.InputSchema["properties"].(map[string]any)
		required, _ := t.InputSchema["required"].([]any)
		var keys []string
		for _, k := range required {
			if s, ok := k.(string); ok {
				keys = append(keys, s)
			}
		}
		if req, ok := t.InputSchema["required"].([]string); ok {
			keys = req
		}
		for _, k := range keys {
			prop, _ := props[k].(map[string]any)
			if enum, ok := prop["enum"].([]any); ok && len(enum) > 0 {
				example[k] = enum[0]
				continue
			}
			if ptype, _ := prop["type"].(string); ptype == "integer" || ptype == "number" {
				if def, ok := prop["default"]; ok {
					example[k] = def
				} else {
					example[k] = 30
				}
				continue
			}
			example[k] = fmt.Sprintf("<%s>", k)
		}
		exampleJSON, _ := json.Marshal(map[string]any{"name": t.Name, "input": example})
		exampleLines = append(exampleLines, fmt.Sprintf("<tool_call>%s</tool_call>", exampleJSON))
	}
	return fmt.Sprintf(toolsPromptHeader, strings.Join(exampleLines, "\n"), strings.Join(descLines, "\n"))
}

// ParseToolCalls extracts every <tool_call> JSON block from model output.
// Malformed blocks are logged and skipped; each surviving call gets a
// fresh synthesized id.
func ParseToolCalls(text string) []*protocol.ToolCall {
	var calls []*protocol.ToolCall
	for _, match := range toolCallRe.FindAllStringSubmatch(text, -1) {
		var data struct {
			Name  string         `json:"name"`
			Input map[string]any `json:"input"`
		}
		if err := json.Unmarshal([]byte(strings.TrimSpace(match[1])), &data); err != nil || data.Name == "" {
			slog.Warn("failed to parse tool_call block", "block", match[1])
			continue
		}
		input := data.Input
		if input == nil {
			input = map[string]any{}
		}
		calls = append(calls, &protocol.ToolCall{ID: newCallID(), Name: data.Name, Args: input})
	}
	return calls
}
