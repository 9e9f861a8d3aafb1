// Package protocol defines the provider-neutral conversation types shared
// by the backends, the tool registry, and the turn engine.
package protocol

import "github.com/google/uuid"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleTool marks a message carrying a batch of tool results.
	RoleTool Role = "tool"
)

type PartType string

const (
	PartTypeText       PartType = "text"
	PartTypeImage      PartType = "image"
	PartTypeToolCall   PartType = "tool_call"
	PartTypeToolResult PartType = "tool_result"
)

// Part is one content element of a Message.
type Part struct {
	Type PartType

	Text string

	// MediaType and Data carry inline images (Data is base64).
	MediaType string
	Data      string

	ToolCall   *ToolCall
	ToolResult *ToolResult
}

// ToolCall is an LLM's request to invoke a tool. The ID is stable within
// a turn so results can be correlated.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult is the outcome of one tool invocation.
type ToolResult struct {
	ToolCallID string
	Name       string
	Content    string

	// ImageData is an optional base64 JPEG payload produced by the tool.
	ImageData string
	MediaType string
}

// Message is one record of the conversation transcript.
//
// Raw holds the provider-native assistant payload so it can be reinjected
// verbatim on the next turn. Some servers (Kimi) reject follow-up tool
// calls when their reasoning side-channel is not round-tripped.
type Message struct {
	Role  Role
	Parts []Part
	Raw   any
}

type StopReason string

const (
	StopEndTurn StopReason = "end_turn"
	StopToolUse StopReason = "tool_use"
)

// TurnResult is the normalized outcome of one streamed assistant response.
type TurnResult struct {
	StopReason StopReason
	Text       string
	ToolCalls  []*ToolCall

	// Assistant is the provider-native assistant message, ready to append
	// to the transcript.
	Assistant *Message
}

// NewID returns a fresh identifier for synthesized tool calls and records.
func NewID() string {
	return uuid.New().String()
}

// NewUserMessage builds a plain-text user message.
func NewUserMessage(text string) *Message {
	return &Message{
		Role:  RoleUser,
		Parts: []Part{{Type: PartTypeText, Text: text}},
	}
}

// NewAssistantMessage builds a plain-text assistant message.
func NewAssistantMessage(text string) *Message {
	return &Message{
		Role:  RoleAssistant,
		Parts: []Part{{Type: PartTypeText, Text: text}},
	}
}

// NewToolResultMessage batches tool results into a single message, in the
// order the calls were issued.
func NewToolResultMessage(results []*ToolResult) *Message {
	msg := &Message{Role: RoleTool}
	for _, r := range results {
		msg.Parts = append(msg.Parts, Part{Type: PartTypeToolResult, ToolResult: r})
	}
	return msg
}

// ExtractText concatenates all text parts of a message.
func ExtractText(msg *Message) string {
	var text string
	for _, part := range msg.Parts {
		if part.Type == PartTypeText {
			text += part.Text
		}
	}
	return text
}

// GetToolCalls returns the tool-call parts of a message, in order.
func GetToolCalls(msg *Message) []*ToolCall {
	var calls []*ToolCall
	for _, part := range msg.Parts {
		if part.Type == PartTypeToolCall && part.ToolCall != nil {
			calls = append(calls, part.ToolCall)
		}
	}
	return calls
}

// GetToolResults returns the tool-result parts of a message, in order.
func GetToolResults(msg *Message) []*ToolResult {
	var results []*ToolResult
	for _, part := range msg.Parts {
		if part.Type == PartTypeToolResult && part.ToolResult != nil {
			results = append(results, part.ToolResult)
		}
	}
	return results
}
