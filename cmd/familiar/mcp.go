package main

import (
	"fmt"
	"strings"

	"github.com/utenadev/familiar-ai/pkg/config"
	"github.com/utenadev/familiar-ai/pkg/tool/mcptoolset"
)

// MCPCmd edits the MCP server config file in place.
type MCPCmd struct {
	Add    MCPAddCmd    `cmd:"" help:"Add an MCP server."`
	Remove MCPRemoveCmd `cmd:"" help:"Remove an MCP server."`
	List   MCPListCmd   `cmd:"" help:"List configured MCP servers."`
}

func mcpConfigPath() (string, error) {
	config.LoadDotenv()
	paths, err := config.NewPaths(config.Load())
	if err != nil {
		return "", err
	}
	return paths.MCPConfig, nil
}

type MCPAddCmd struct {
	Name    string   `arg:"" help:"Server name."`
	Command []string `arg:"" optional:"" help:"Command and arguments (stdio servers)."`
	Type    string   `help:"Server type." enum:"stdio,sse" default:"stdio"`
	URL     string   `help:"Server URL (sse servers)."`
	Env     []string `help:"KEY=VALUE environment entries." name:"env"`
}

func (c *MCPAddCmd) Run() error {
	path, err := mcpConfigPath()
	if err != nil {
		return err
	}
	file, err := mcptoolset.LoadFile(path)
	if err != nil {
		return err
	}

	server := mcptoolset.ServerConfig{Type: c.Type, URL: c.URL}
	if len(c.Command) > 0 {
		server.Command = c.Command[0]
		server.Args = c.Command[1:]
	}
	if c.Type == "stdio" && server.Command == "" {
		return fmt.Errorf("stdio server %q requires a command", c.Name)
	}
	if c.Type == "sse" && server.URL == "" {
		return fmt.Errorf("sse server %q requires --url", c.Name)
	}
	if len(c.Env) > 0 {
		server.Env = make(map[string]string, len(c.Env))
		for _, kv := range c.Env {
			key, value, ok := strings.Cut(kv, "=")
			if !ok {
				return fmt.Errorf("invalid --env entry %q (want KEY=VALUE)", kv)
			}
			server.Env[key] = value
		}
	}

	file.MCPServers[c.Name] = server
	if err := file.Save(path); err != nil {
		return err
	}
	fmt.Printf("Added MCP server %q (%s)\n", c.Name, c.Type)
	return nil
}

type MCPRemoveCmd struct {
	Name string `arg:"" help:"Server name."`
}

func (c *MCPRemoveCmd) Run() error {
	path, err := mcpConfigPath()
	if err != nil {
		return err
	}
	file, err := mcptoolset.LoadFile(path)
	if err != nil {
		return err
	}
	if _, ok := file.MCPServers[c.Name]; !ok {
		return fmt.Errorf("no MCP server named %q", c.Name)
	}
	delete(file.MCPServers, c.Name)
	if err := file.Save(path); err != nil {
		return err
	}
	fmt.Printf("Removed MCP server %q\n", c.Name)
	return nil
}

type MCPListCmd struct{}

func (c *MCPListCmd) Run() error {
	path, err := mcpConfigPath()
	if err != nil {
		return err
	}
	file, err := mcptoolset.LoadFile(path)
	if err != nil {
		return err
	}
	if len(file.MCPServers) == 0 {
		fmt.Println("No MCP servers configured.")
		return nil
	}
	for _, name := range file.Names() {
		server := file.MCPServers[name]
		serverType := server.Type
		if serverType == "" {
			serverType = "stdio"
		}
		switch serverType {
		case "sse":
			fmt.Printf("%-20s sse    %s\n", name, server.URL)
		default:
			fmt.Printf("%-20s stdio  %s %s\n", name, server.Command, strings.Join(server.Args, " "))
		}
	}
	return nil
}
