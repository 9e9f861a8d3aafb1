// Package scheduler decides what the agent does next: answer a user
// line, act on an inner desire, or stay quiet. One turn runs at a time;
// the stdin reader and the desire clock run alongside it.
package scheduler

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/utenadev/familiar-ai/pkg/agent"
	"github.com/utenadev/familiar-ai/pkg/desire"
	"github.com/utenadev/familiar-ai/pkg/i18n"
	"github.com/utenadev/familiar-ai/pkg/tool"
)

const (
	// IdleCheckInterval is how often the desire clock fires when the
	// agent is otherwise idle.
	IdleCheckInterval = 10 * time.Second

	// DesireCooldown holds autonomous behavior back for a while after
	// the last user interaction.
	DesireCooldown = 90 * time.Second
)

// Options wires a Scheduler.
type Options struct {
	Agent     *agent.Agent
	Desires   *desire.State
	Registry  *tool.Registry
	Locale    i18n.Locale
	AgentName string

	// In is the user input stream, Out the UI stream.
	In  io.Reader
	Out io.Writer

	// ChatLogPath receives a plain-text transcript, one session header
	// per run. Empty disables logging.
	ChatLogPath string
}

type Scheduler struct {
	agent     *agent.Agent
	desires   *desire.State
	registry  *tool.Registry
	locale    i18n.Locale
	agentName string

	in  io.Reader
	out io.Writer

	queue           *inputQueue
	lastInteraction time.Time
	chatLog         *os.File

	// Clock seams for tests.
	now          func() time.Time
	idleInterval time.Duration
	cooldown     time.Duration
}

func New(opts Options) *Scheduler {
	s := &Scheduler{
		agent:           opts.Agent,
		desires:         opts.Desires,
		registry:        opts.Registry,
		locale:          opts.Locale,
		agentName:       opts.AgentName,
		in:              opts.In,
		out:             opts.Out,
		queue:           newInputQueue(),
		lastInteraction: time.Now(),
		now:             time.Now,
		idleInterval:    IdleCheckInterval,
		cooldown:        DesireCooldown,
	}
	if opts.ChatLogPath != "" {
		s.openChatLog(opts.ChatLogPath)
	}
	return s
}

// Run drives the loop until /quit, EOF, or context cancellation. On
// return, external tool sessions are closed via the registry.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.shutdown()

	go s.readLines()

	ticker := time.NewTicker(s.idleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-s.queue.out:
			if !ok {
				return nil
			}
			if s.handleLine(ctx, line) {
				return nil
			}
		case <-ticker.C:
			if s.desireTick(ctx) {
				return nil
			}
		}
	}
}

func (s *Scheduler) readLines() {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		s.queue.push(line)
	}
	s.queue.closeInput()
}

// handleLine dispatches one input line and reports whether the loop
// should stop.
func (s *Scheduler) handleLine(ctx context.Context, line string) (quit bool) {
	switch line {
	case "/quit":
		return true
	case "/clear":
		s.agent.ClearHistory()
		s.printSystem("history cleared")
	default:
		s.runUserTurn(ctx, line)
	}
	return false
}

func (s *Scheduler) runUserTurn(ctx context.Context, line string) {
	s.lastInteraction = s.now()
	s.logLine(fmt.Sprintf("> %s", line))

	if _, err := s.agent.RunTurn(ctx, line, "", s.callbacks()); err != nil {
		s.printSystem(fmt.Sprintf("error: %v", err))
		slog.Error("Turn failed", "error", err)
	}
	fmt.Fprintln(s.out)
}

// desireTick fires an autonomous turn when the agent has been left alone
// long enough and some desire crossed its threshold. Reports whether a
// /quit arrived while it ran.
func (s *Scheduler) desireTick(ctx context.Context) (quit bool) {
	if s.now().Sub(s.lastInteraction) < s.cooldown {
		s.desires.Tick()
		return false
	}

	name, prompt, ok := s.desires.DominantPrompt()
	if !ok {
		return false
	}

	s.printSystem(i18n.T(s.locale, "murmur."+name))

	// A user line may have landed while we were deciding. Fold it into
	// the impulse as a parenthetical instead of running a second turn;
	// commands still dispatch as commands.
	select {
	case line, chOpen := <-s.queue.out:
		if chOpen && line != "" {
			if strings.HasPrefix(line, "/") {
				if s.handleLine(ctx, line) {
					return true
				}
			} else {
				prompt = fmt.Sprintf("（%s）%s", line, prompt)
			}
		}
	default:
	}

	// Reset the cooldown so the desire does not refire immediately.
	s.lastInteraction = s.now()

	if _, err := s.agent.RunTurn(ctx, "", prompt, s.callbacks()); err != nil {
		s.printSystem(fmt.Sprintf("error: %v", err))
		slog.Error("Desire turn failed", "error", err)
	}
	fmt.Fprintln(s.out)

	s.desires.Satisfy(name)
	s.desires.ClearCuriosityTarget()

	// Inputs that piled up during the desire turn dispatch normally, so a
	// /quit or /clear typed mid-turn is not lost.
	for {
		select {
		case line, chOpen := <-s.queue.out:
			if !chOpen {
				return false
			}
			if s.handleLine(ctx, line) {
				return true
			}
		default:
			return false
		}
	}
}

func (s *Scheduler) callbacks() agent.Callbacks {
	return agent.Callbacks{
		OnText: func(chunk string) {
			fmt.Fprint(s.out, chunk)
			s.logChunk(chunk)
		},
		OnAction: func(name string, args map[string]any) {
			line := formatAction(name, args)
			fmt.Fprintf(s.out, "\n  %s\n", line)
			s.logLine("  " + line)
		},
		Interrupts: s.queue.out,
	}
}

func formatAction(name string, args map[string]any) string {
	switch name {
	case "see":
		return "[see] looking..."
	case "look":
		return fmt.Sprintf("[look] %v %v°", args["direction"], args["degrees"])
	case "walk":
		if d, ok := args["duration"]; ok {
			return fmt.Sprintf("[walk] %v for %vs", args["direction"], d)
		}
		return fmt.Sprintf("[walk] %v", args["direction"])
	case "say":
		text, _ := args["text"].(string)
		if r := []rune(text); len(r) > 50 {
			text = string(r[:50]) + "..."
		}
		return fmt.Sprintf("[say] %q", text)
	default:
		return fmt.Sprintf("[%s]", name)
	}
}

func (s *Scheduler) printSystem(text string) {
	fmt.Fprintf(s.out, "%s\n", text)
	s.logLine(text)
}

func (s *Scheduler) openChatLog(path string) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Warn("Could not open chat log", "path", path, "error", err)
		return
	}
	fmt.Fprintf(f, "\n%s\n[%s] session start\n",
		strings.Repeat("─", 60), time.Now().Format("2006-01-02 15:04:05"))
	s.chatLog = f
}

func (s *Scheduler) logLine(line string) {
	if s.chatLog != nil {
		fmt.Fprintln(s.chatLog, line)
	}
}

func (s *Scheduler) logChunk(chunk string) {
	if s.chatLog != nil {
		fmt.Fprint(s.chatLog, chunk)
	}
}

func (s *Scheduler) shutdown() {
	s.registry.Close()
	if s.chatLog != nil {
		s.chatLog.Close()
	}
}

// inputQueue is an unbounded FIFO fed by the reader goroutine. A pump
// goroutine buffers pushed lines so the reader never blocks on a slow
// turn, and out closes once input ends and the buffer drains.
type inputQueue struct {
	in  chan string
	out chan string
}

func newInputQueue() *inputQueue {
	q := &inputQueue{in: make(chan string), out: make(chan string)}
	go q.pump()
	return q
}

func (q *inputQueue) push(line string) { q.in <- line }

func (q *inputQueue) closeInput() { close(q.in) }

func (q *inputQueue) pump() {
	var buf []string
	in := q.in
	for {
		if in == nil && len(buf) == 0 {
			close(q.out)
			return
		}
		var out chan string
		var next string
		if len(buf) > 0 {
			out = q.out
			next = buf[0]
		}
		select {
		case line, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			buf = append(buf, line)
		case out <- next:
			buf = buf[1:]
		}
	}
}
