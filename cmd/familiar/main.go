// familiar is an embodied conversational agent: a persistent companion
// with eyes (PTZ camera), legs (robot vacuum), a voice (TTS through the
// camera speaker), long-term memory, and desires of its own.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
)

var version = "0.1.0"

type CLI struct {
	Run     RunCmd     `cmd:"" default:"1" help:"Run the agent (default)."`
	MCP     MCPCmd     `cmd:"" help:"Manage MCP tool servers."`
	Version VersionCmd `cmd:"" help:"Print version."`
}

type VersionCmd struct{}

func (v *VersionCmd) Run() error {
	fmt.Println("familiar-ai " + version)
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("familiar"),
		kong.Description("familiar-ai - AI that lives alongside you"),
		kong.UsageOnError(),
	)
	if err := ctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
