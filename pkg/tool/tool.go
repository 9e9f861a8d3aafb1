// Package tool defines the tool abstraction shared by the built-in device,
// memory, and coding tools and by external MCP servers. The turn engine
// sees only the registry: a flat list of definitions and one dispatch
// entry point.
package tool

import (
	"context"
	"fmt"
	"log/slog"
)

// Definition describes one callable tool in the neutral shape every
// backend can consume.
type Definition struct {
	Name        string
	Description string
	// InputSchema is a JSON-schema object ({"type":"object",...}).
	InputSchema map[string]any
}

// Result is the outcome of one tool call. ImageData, when set, is a
// base64-encoded JPEG.
type Result struct {
	Text      string
	ImageData string
}

// Tool is a provider of one or more tool definitions. A single Tool may
// serve several names (a camera serves both see and look).
type Tool interface {
	Definitions() []Definition
	Call(ctx context.Context, name string, args map[string]any) (*Result, error)
}

// Closer is implemented by tools holding external resources (MCP
// sessions, subprocesses).
type Closer interface {
	Close() error
}

// Registry routes tool calls by name. Registration order is preserved in
// List; on a name collision the first registration wins.
type Registry struct {
	order  []string
	byName map[string]Tool
	tools  []Tool
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Tool)}
}

// Register adds every definition the tool serves. Names already taken are
// dropped with a warning.
func (r *Registry) Register(t Tool) {
	r.tools = append(r.tools, t)
	for _, def := range t.Definitions() {
		if _, exists := r.byName[def.Name]; exists {
			slog.Warn("tool name collision, keeping first registration", "tool", def.Name)
			continue
		}
		r.byName[def.Name] = t
		r.order = append(r.order, def.Name)
	}
}

// Has reports whether a tool name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// List returns all registered definitions in registration order.
func (r *Registry) List() []Definition {
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		for _, def := range r.byName[name].Definitions() {
			if def.Name == name {
				defs = append(defs, def)
				break
			}
		}
	}
	return defs
}

// Dispatch routes one call. It never returns an error to the caller: an
// unknown name or a failing tool is reported in the result text so the
// model can react.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) *Result {
	t, ok := r.byName[name]
	if !ok {
		return &Result{Text: fmt.Sprintf("Tool %s not available", name)}
	}
	res, err := t.Call(ctx, name, args)
	if err != nil {
		slog.Warn("tool call failed", "tool", name, "error", err)
		return &Result{Text: fmt.Sprintf("Tool error: %v", err)}
	}
	if res == nil {
		res = &Result{}
	}
	return res
}

// Close tears down tools in reverse registration order, mirroring a
// nested cleanup stack.
func (r *Registry) Close() {
	for i := len(r.tools) - 1; i >= 0; i-- {
		if c, ok := r.tools[i].(Closer); ok {
			if err := c.Close(); err != nil {
				slog.Warn("tool close failed", "error", err)
			}
		}
	}
}

// String helpers shared by tool implementations.

// StringArg extracts a string argument, returning def when absent or not
// a string.
func StringArg(args map[string]any, key, def string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// IntArg extracts an integer argument. JSON numbers arrive as float64.
func IntArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

// BoolArg extracts a boolean argument.
func BoolArg(args map[string]any, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}

// FloatArg extracts a float argument.
func FloatArg(args map[string]any, key string, def float64) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}
