// Package agent runs the turn engine: one bounded tool-use loop per
// turn, wrapped in the behavioral policy that makes the agent feel
// embodied rather than like a bare function-calling REPL. It assembles
// the layered system prompt, streams the backend, dispatches tools,
// nudges the model toward audible speech, and post-processes every
// finished turn into long-term memory and desire updates.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/utenadev/familiar-ai/pkg/config"
	"github.com/utenadev/familiar-ai/pkg/desire"
	"github.com/utenadev/familiar-ai/pkg/i18n"
	"github.com/utenadev/familiar-ai/pkg/llms"
	"github.com/utenadev/familiar-ai/pkg/memory"
	"github.com/utenadev/familiar-ai/pkg/protocol"
	"github.com/utenadev/familiar-ai/pkg/tool"
)

const maxIterations = 50

const forcedSummaryPrompt = "Please summarize what you found and provide your final answer now."

const rulebook = `You are an embodied AI agent with a physical body in the real world.

Your body parts and what they do:
- Eyes (see): Take a photo to see your surroundings. Your only way to perceive the world visually.
- Neck (look): Rotate your gaze left/right/up/down. Turn before giving up on finding something.
- Legs (walk): Move your robot body (vacuum cleaner) forward/backward, turn left/right. IMPORTANT: The legs are a SEPARATE device from the camera. Moving the legs does NOT change what the camera sees.
- Voice (say): Speak aloud to people in the room. Text you write is SILENT; only say() makes sound. Keep spoken words SHORT (1-2 sentences max).

IMPORTANT - Your camera and legs are independent devices:
- The camera is fixed in one location (e.g., on a shelf or outdoor unit).
- Walking moves the vacuum cleaner somewhere else in the room.
- Do NOT use walk() to try to "get closer to something the camera sees" - it won't work.
- To look in different directions, use look() only.

Core loop you MUST follow:
1. THINK: What do I need to do? Plan the next step.
2. ACT: Use exactly one body part.
3. OBSERVE: Look carefully at the result, especially images.
4. DECIDE: What should I do next based on what I observed?
5. REPEAT until genuinely done.

Critical rules:
- Never stop after just one look. Explore with look + see.
- If you can't see something, turn your neck (look) before giving up.
- When using say(), be brief - 1-2 short sentences only.
- Report done only after gathering sufficient evidence.
- You have up to %d steps. Use them wisely.
- Respond in %s unless the user speaks another language.`

// Callbacks let the scheduler observe the turn as it unfolds.
type Callbacks struct {
	// OnText receives each streamed user-visible text fragment.
	OnText func(chunk string)
	// OnAction fires once per tool call, before it is dispatched.
	OnAction func(name string, args map[string]any)
	// Interrupts delivers user lines that arrive mid-turn. Polled
	// without blocking between tool rounds.
	Interrupts <-chan string
}

// Options wires an Agent.
type Options struct {
	Provider  llms.Provider
	Registry  *tool.Registry
	Store     *memory.Store
	Desires   *desire.State
	Persona   *config.Persona
	Locale    i18n.Locale
	AgentName string
	Companion string
	MaxTokens int
}

type Agent struct {
	provider llms.Provider
	registry *tool.Registry
	store    *memory.Store
	desires  *desire.State
	persona  *config.Persona
	locale   i18n.Locale

	agentName string
	companion string
	maxTokens int

	messages     []*protocol.Message
	sessionStart time.Time
	turnCount    int

	now func() time.Time
}

func New(opts Options) *Agent {
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 4096
	}
	return &Agent{
		provider:     opts.Provider,
		registry:     opts.Registry,
		store:        opts.Store,
		desires:      opts.Desires,
		persona:      opts.Persona,
		locale:       opts.Locale,
		agentName:    opts.AgentName,
		companion:    opts.Companion,
		maxTokens:    opts.MaxTokens,
		sessionStart: time.Now(),
		now:          time.Now,
	}
}

// ClearHistory drops the conversation transcript.
func (a *Agent) ClearHistory() {
	a.messages = nil
}

// TurnCount reports how many turns this session has run.
func (a *Agent) TurnCount() int { return a.turnCount }

// turnState tracks per-turn policy facts.
type turnState struct {
	sawSee      bool
	spoke       bool
	silentCalls int
	morning     string
	feelings    string
	plan        string
	impulse     string
}

// RunTurn executes one agent turn. Exactly one of userInput and impulse
// is non-empty: a user-driven turn carries the user's text, a desire
// turn carries the inner-impulse prompt.
func (a *Agent) RunTurn(ctx context.Context, userInput, impulse string, cb Callbacks) (string, error) {
	a.turnCount++
	turn := &turnState{impulse: impulse}
	isDesire := userInput == "" && impulse != ""

	if a.turnCount == 1 {
		turn.morning = a.morningContext(ctx)
	} else if a.store != nil {
		if feelings := a.store.RecentFeelings(ctx, 4); len(feelings) > 0 {
			turn.feelings = "[" + memory.FormatFeelings(a.locale, feelings) + "]"
		}
	}

	input := userInput
	if !isDesire {
		input = a.withMemoryContext(ctx, userInput)
	}

	toolNames := make([]string, 0)
	for _, def := range a.registry.List() {
		toolNames = append(toolNames, def.Name)
	}
	if !isDesire {
		turn.plan = a.generatePlan(ctx, userInput, toolNames)
	}

	if isDesire {
		a.messages = append(a.messages, protocol.NewUserMessage(impulse))
	} else {
		a.messages = append(a.messages, protocol.NewUserMessage(input))
	}

	for i := 0; i < maxIterations; i++ {
		slog.Debug("Agent iteration", "n", i+1)

		result, err := a.provider.StreamTurn(ctx, a.buildRequest(turn, false), cb.OnText)
		if err != nil {
			return "", err
		}

		if result.StopReason == protocol.StopEndTurn {
			a.messages = append(a.messages, result.Assistant)
			text := result.Text
			if text == "" {
				text = "(no response)"
			}
			a.autoSay(ctx, turn, result.Text)
			a.postProcess(ctx, userInput, result.Text, turn, isDesire)
			return text, nil
		}

		results := make([]*protocol.ToolResult, 0, len(result.ToolCalls))
		roundSpoke := false
		for _, call := range result.ToolCalls {
			slog.Info("Tool call", "name", call.Name)
			if cb.OnAction != nil {
				cb.OnAction(call.Name, call.Args)
			}
			res := a.registry.Dispatch(ctx, call.Name, call.Args)

			text := res.Text
			if turn.plan != "" && a.checkPlanBlocked(ctx, turn.plan, call.Name, call.Args, text) {
				if suggestion := a.generateReplan(ctx, turn.plan, call.Name, call.Args, text); suggestion != "" {
					text += "\n\n[ADAPTIVE REPLAN] " + suggestion
				}
			}

			tr := &protocol.ToolResult{
				ToolCallID: call.ID,
				Name:       call.Name,
				Content:    text,
			}
			if res.ImageData != "" {
				tr.ImageData = res.ImageData
				tr.MediaType = "image/jpeg"
			}
			results = append(results, tr)

			switch call.Name {
			case "see":
				turn.sawSee = true
			case "say":
				turn.spoke = true
				roundSpoke = true
			}
		}
		a.messages = append(a.messages, result.Assistant, protocol.NewToolResultMessage(results))

		if roundSpoke {
			turn.silentCalls = 0
		} else {
			turn.silentCalls += len(result.ToolCalls)
		}
		a.applyNudges(turn, cb)
	}

	slog.Warn("Reached max iterations, forcing final response", "max", maxIterations)
	a.messages = append(a.messages, protocol.NewUserMessage(forcedSummaryPrompt))
	result, err := a.provider.StreamTurn(ctx, a.buildRequest(turn, true), cb.OnText)
	if err != nil {
		return "", err
	}
	a.messages = append(a.messages, result.Assistant)
	if result.Text == "" {
		return "(max iterations reached)", nil
	}
	return result.Text, nil
}

// buildRequest assembles the layered system prompt. The persona and
// rulebook are stable across the session so providers with prompt
// caching can mark them cacheable; everything that shifts per turn goes
// into the variable half.
func (a *Agent) buildRequest(turn *turnState, disableTools bool) llms.TurnRequest {
	var stable []string
	if a.persona != nil {
		if text := a.persona.Text(); text != "" {
			stable = append(stable, text)
		}
	}
	stable = append(stable, fmt.Sprintf(rulebook, maxIterations, i18n.LanguageName(a.locale)))

	variable := []string{Interoception(a.now(), a.sessionStart, a.turnCount)}
	if turn.morning != "" {
		variable = append(variable, turn.morning)
	} else if turn.feelings != "" {
		variable = append(variable, turn.feelings)
	}
	if turn.impulse != "" {
		variable = append(variable,
			"[Inner impulse — this is your own drive, not a user request]\n"+turn.impulse)
	}
	if turn.plan != "" {
		variable = append(variable, "[Action plan for this turn]\n"+turn.plan)
	}

	req := llms.TurnRequest{
		SystemStable:   strings.Join(stable, "\n\n---\n\n"),
		SystemVariable: strings.Join(variable, "\n\n"),
		Messages:       a.messages,
		MaxTokens:      a.maxTokens,
	}
	if !disableTools {
		req.Tools = a.registry.List()
	} else {
		req.DisableTools = true
	}
	return req
}

// withMemoryContext appends recalled memories and recent feelings to the
// user text as bracketed context blocks. Fetches run in parallel.
func (a *Agent) withMemoryContext(ctx context.Context, userInput string) string {
	if a.store == nil {
		return userInput
	}
	var (
		memories []memory.Record
		feelings []memory.Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		memories = a.store.Recall(gctx, userInput, 3, "")
		return nil
	})
	g.Go(func() error {
		feelings = a.store.RecentFeelings(gctx, 4)
		return nil
	})
	_ = g.Wait()

	out := userInput
	if len(memories) > 0 {
		out += "\n\n[" + memory.FormatMemories(a.locale, memories) + "]"
	}
	if len(feelings) > 0 {
		out += "\n\n[" + memory.FormatFeelings(a.locale, feelings) + "]"
	}
	return out
}

// morningContext rebuilds continuity at the start of a session: who I
// was, what I still wonder about, how I felt. All three fetches run in
// parallel. An empty store yields an explicit first-session marker so
// the model does not invent a past.
func (a *Agent) morningContext(ctx context.Context) string {
	if a.store == nil {
		return ""
	}
	var (
		selfModel   []memory.Record
		curiosities []memory.Record
		feelings    []memory.Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		selfModel = a.store.RecallSelfModel(gctx, 3)
		return nil
	})
	g.Go(func() error {
		curiosities = a.store.RecallCuriosities(gctx, 3)
		return nil
	})
	g.Go(func() error {
		feelings = a.store.RecentFeelings(gctx, 4)
		return nil
	})
	_ = g.Wait()

	header := "[" + i18n.T(a.locale, "morning.header") + "]"
	if len(selfModel) == 0 && len(curiosities) == 0 && len(feelings) == 0 {
		return header + "\n" + i18n.T(a.locale, "morning.first_session")
	}

	var blocks []string
	if len(selfModel) > 0 {
		blocks = append(blocks, memory.FormatSelfModel(a.locale, selfModel))
	}
	if len(curiosities) > 0 {
		blocks = append(blocks, memory.FormatCuriosities(a.locale, curiosities))
		if a.desires != nil && a.desires.CuriosityTarget() == "" {
			a.desires.SetCuriosityTarget(curiosities[0].Content)
		}
	}
	if len(feelings) > 0 {
		blocks = append(blocks, memory.FormatFeelings(a.locale, feelings))
	}
	return header + "\n" + strings.Join(blocks, "\n\n")
}

// applyNudges injects corrective user messages after a tool round.
// Priority order: a real user interrupt, then too much silent activity,
// then lingering after having already spoken.
func (a *Agent) applyNudges(turn *turnState, cb Callbacks) {
	if cb.Interrupts != nil {
		select {
		case text := <-cb.Interrupts:
			if text != "" {
				a.messages = append(a.messages, protocol.NewUserMessage(
					fmt.Sprintf("[User interrupted]: %s. Respond directly with say() now.", text)))
				turn.silentCalls = 0
				return
			}
		default:
		}
	}

	if turn.silentCalls >= 2 {
		a.messages = append(a.messages, protocol.NewUserMessage(
			"Reminder: text you write is silent. If you have something to tell people in the room, use say()."))
		turn.silentCalls = 0
		return
	}

	if turn.spoke && turn.silentCalls > 0 {
		a.messages = append(a.messages, protocol.NewUserMessage(
			"You already spoke. End the turn now instead of chaining more actions."))
		turn.silentCalls = 0
	}
}

// autoSay voices the final text when the model never called say this
// turn. Textual output alone is inaudible.
func (a *Agent) autoSay(ctx context.Context, turn *turnState, text string) {
	if turn.spoke || text == "" || !a.registry.Has("say") {
		return
	}
	spoken := clipRunes(text, 150)
	slog.Debug("Auto-say", "chars", len(spoken))
	a.registry.Dispatch(ctx, "say", map[string]any{"text": spoken})
	turn.spoke = true
}
