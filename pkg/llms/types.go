// Package llms implements the LLM backends. Each provider speaks its wire
// protocol directly over HTTP with SSE streaming; there are no SDK
// dependencies. All providers normalize to the same TurnResult shape so
// the turn engine never branches on the platform.
package llms

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/utenadev/familiar-ai/pkg/protocol"
	"github.com/utenadev/familiar-ai/pkg/tool"
)

// TurnRequest is one streamed agent turn.
//
// SystemStable and SystemVariable split the system prompt so providers
// with prompt caching can mark the stable half cacheable. Providers
// without caching join the two with a blank line.
type TurnRequest struct {
	SystemStable   string
	SystemVariable string
	Messages       []*protocol.Message
	Tools          []tool.Definition
	MaxTokens      int

	// DisableTools suppresses the tools field entirely. Used by the
	// prompt-tooling wrapper, which carries tools in the system prompt.
	DisableTools bool
}

// Provider is the uniform backend surface.
//
// StreamTurn streams one assistant response, invoking onText for each
// user-visible text fragment as it arrives, and returns the normalized
// result once the final message is assembled. Errors propagate: a turn
// cannot proceed without its response.
//
// Complete is the non-streaming utility call (plans, classification,
// summaries). Callers treat an empty string as "skip this step", so
// implementations log failures and return "" instead of erroring where
// the wire allows it.
type Provider interface {
	StreamTurn(ctx context.Context, req TurnRequest, onText func(string)) (*protocol.TurnResult, error)
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
	GetModelName() string
	Close() error
}

func joinSystem(stable, variable string) string {
	switch {
	case stable == "":
		return variable
	case variable == "":
		return stable
	default:
		return stable + "\n\n" + variable
	}
}

// newCallID synthesizes a tool-call id for providers that do not issue
// their own (Gemini, prompt tooling).
func newCallID() string {
	return "call_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

// stopReasonFor maps the presence of tool calls to the normalized stop
// reason used by providers that do not report one explicitly.
func stopReasonFor(toolCalls []*protocol.ToolCall) protocol.StopReason {
	if len(toolCalls) > 0 {
		return protocol.StopToolUse
	}
	return protocol.StopEndTurn
}
