package llms

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/utenadev/familiar-ai/pkg/protocol"
)

// CLIProvider runs a local command as the model. The whole conversation
// is serialized to a single prompt; the command receives it on stdin, or
// substituted for a literal {} placeholder in the command line. Always
// wrapped in prompt tooling, since a pipe has no function-calling API.
type CLIProvider struct {
	command string
}

func NewCLIProvider(command string) *CLIProvider {
	return &CLIProvider{command: command}
}

func (p *CLIProvider) GetModelName() string { return p.command }

func (p *CLIProvider) Close() error { return nil }

func (p *CLIProvider) StreamTurn(ctx context.Context, req TurnRequest, onText func(string)) (*protocol.TurnResult, error) {
	prompt := serializeConversation(joinSystem(req.SystemStable, req.SystemVariable), req.Messages)
	out, err := p.run(ctx, prompt)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(out)
	if onText != nil && text != "" {
		onText(text)
	}
	return &protocol.TurnResult{
		StopReason: protocol.StopEndTurn,
		Text:       text,
		Assistant:  protocol.NewAssistantMessage(text),
	}, nil
}

func (p *CLIProvider) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	out, err := p.run(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (p *CLIProvider) run(ctx context.Context, prompt string) (string, error) {
	var cmd *exec.Cmd
	if strings.Contains(p.command, "{}") {
		line := strings.ReplaceAll(p.command, "{}", shellQuote(prompt))
		cmd = exec.CommandContext(ctx, "sh", "-c", line)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", p.command)
		cmd.Stdin = strings.NewReader(prompt)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("cli backend failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func serializeConversation(system string, messages []*protocol.Message) string {
	var b strings.Builder
	if system != "" {
		b.WriteString(system)
		b.WriteString("\n\n")
	}
	for _, msg := range messages {
		switch msg.Role {
		case protocol.RoleUser:
			b.WriteString("User: ")
			b.WriteString(protocol.ExtractText(msg))
		case protocol.RoleAssistant:
			b.WriteString("Assistant: ")
			b.WriteString(protocol.ExtractText(msg))
		case protocol.RoleTool:
			for _, r := range protocol.GetToolResults(msg) {
				fmt.Fprintf(&b, "[Tool result: %s]\n%s", r.Name, r.Content)
			}
		}
		b.WriteString("\n\n")
	}
	b.WriteString("Assistant:")
	return b.String()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
