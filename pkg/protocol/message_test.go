package protocol

import "testing"

func TestExtractTextConcatenates(t *testing.T) {
	msg := &Message{Role: RoleAssistant, Parts: []Part{
		{Type: PartTypeText, Text: "hello "},
		{Type: PartTypeToolCall, ToolCall: &ToolCall{ID: "c1", Name: "see"}},
		{Type: PartTypeText, Text: "world"},
	}}
	if got := ExtractText(msg); got != "hello world" {
		t.Errorf("ExtractText = %q", got)
	}
}

func TestGetToolCallsOrdered(t *testing.T) {
	msg := &Message{Role: RoleAssistant, Parts: []Part{
		{Type: PartTypeToolCall, ToolCall: &ToolCall{ID: "c1", Name: "see"}},
		{Type: PartTypeText, Text: "then"},
		{Type: PartTypeToolCall, ToolCall: &ToolCall{ID: "c2", Name: "say"}},
		{Type: PartTypeToolCall}, // nil call, skipped
	}}
	calls := GetToolCalls(msg)
	if len(calls) != 2 || calls[0].ID != "c1" || calls[1].ID != "c2" {
		t.Errorf("GetToolCalls = %+v", calls)
	}
}

func TestNewToolResultMessage(t *testing.T) {
	msg := NewToolResultMessage([]*ToolResult{
		{ToolCallID: "c1", Name: "see", Content: "a cat"},
		{ToolCallID: "c2", Name: "say", Content: "Said: hi"},
	})
	if msg.Role != RoleTool {
		t.Errorf("role = %q", msg.Role)
	}
	results := GetToolResults(msg)
	if len(results) != 2 || results[0].ToolCallID != "c1" || results[1].ToolCallID != "c2" {
		t.Errorf("GetToolResults = %+v", results)
	}
}

func TestNewIDUnique(t *testing.T) {
	if NewID() == NewID() {
		t.Error("ids collide")
	}
}
