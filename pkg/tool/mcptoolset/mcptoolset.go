// Package mcptoolset connects external MCP servers and exposes their
// tools to the agent. Servers are declared in a JSON config file and
// connected at startup; each server becomes one Toolset.
package mcptoolset

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/utenadev/familiar-ai/pkg/tool"
)

const protocolVersion = "2024-11-05"

// ServerConfig describes one MCP server entry.
type ServerConfig struct {
	// Type is "stdio" (default) or "sse".
	Type    string            `json:"type,omitempty"`
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`
}

// File is the on-disk MCP configuration.
type File struct {
	MCPServers map[string]ServerConfig `json:"mcpServers"`
}

// LoadFile reads the MCP config. A missing file is an empty config.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &File{MCPServers: map[string]ServerConfig{}}, nil
		}
		return nil, err
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse MCP config %s: %w", path, err)
	}
	if f.MCPServers == nil {
		f.MCPServers = map[string]ServerConfig{}
	}
	return &f, nil
}

// Save writes the config back with stable formatting.
func (f *File) Save(path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// Names returns the configured server names in sorted order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.MCPServers))
	for name := range f.MCPServers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Toolset is one connected MCP server exposed as a tool.Tool.
type Toolset struct {
	name   string
	client *client.Client
	defs   []tool.Definition
}

// Connect loads the config file and connects every declared server.
// A server that fails to connect is skipped with a warning so one bad
// entry cannot take the whole agent down.
func Connect(ctx context.Context, path string) []*Toolset {
	cfg, err := LoadFile(path)
	if err != nil {
		slog.Warn("Failed to load MCP config", "path", path, "error", err)
		return nil
	}

	var toolsets []*Toolset
	for _, name := range cfg.Names() {
		server := cfg.MCPServers[name]
		ts, err := NewToolset(ctx, name, server)
		if err != nil {
			slog.Warn("Skipping MCP server", "name", name, "error", err)
			continue
		}
		toolsets = append(toolsets, ts)
	}
	return toolsets
}

// NewToolset connects one server, initializes the session, and lists
// its tools.
func NewToolset(ctx context.Context, name string, cfg ServerConfig) (*Toolset, error) {
	serverType := cfg.Type
	if serverType == "" {
		serverType = "stdio"
	}

	var (
		mcpClient *client.Client
		err       error
	)
	switch serverType {
	case "stdio":
		if cfg.Command == "" {
			return nil, fmt.Errorf("stdio server requires a command")
		}
		mcpClient, err = client.NewStdioMCPClient(cfg.Command, envSlice(cfg.Env), cfg.Args...)
	case "sse":
		if cfg.URL == "" {
			return nil, fmt.Errorf("sse server requires a url")
		}
		mcpClient, err = client.NewSSEMCPClient(cfg.URL)
	default:
		return nil, fmt.Errorf("unknown server type %q", serverType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client: %w", err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start MCP client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "familiar-ai", Version: "0.1.0"}
	initReq.Params.ProtocolVersion = protocolVersion
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("failed to initialize MCP: %w", err)
	}

	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	defs := make([]tool.Definition, 0, len(listResp.Tools))
	for _, t := range listResp.Tools {
		defs = append(defs, tool.Definition{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schemaMap(t.InputSchema),
		})
	}

	slog.Info("Connected to MCP server",
		"name", name, "type", serverType, "tools", len(defs))
	return &Toolset{name: name, client: mcpClient, defs: defs}, nil
}

func (t *Toolset) Name() string { return t.name }

func (t *Toolset) Definitions() []tool.Definition { return t.defs }

func (t *Toolset) Call(ctx context.Context, name string, args map[string]any) (*tool.Result, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	resp, err := t.client.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("MCP call failed: %w", err)
	}

	result := &tool.Result{}
	var texts []string
	for _, content := range resp.Content {
		switch c := content.(type) {
		case mcp.TextContent:
			texts = append(texts, c.Text)
		case mcp.ImageContent:
			if result.ImageData == "" {
				result.ImageData = c.Data
			}
		}
	}
	result.Text = joinTexts(texts)
	if resp.IsError {
		result.Text = "Tool error: " + result.Text
	}
	return result, nil
}

// Close tears down the server session.
func (t *Toolset) Close() error {
	return t.client.Close()
}

func joinTexts(texts []string) string {
	if len(texts) == 0 {
		return "(no output)"
	}
	out := texts[0]
	for _, t := range texts[1:] {
		out += "\n" + t
	}
	return out
}

func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

func schemaMap(schema mcp.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}

var _ tool.Tool = (*Toolset)(nil)
var _ tool.Closer = (*Toolset)(nil)
