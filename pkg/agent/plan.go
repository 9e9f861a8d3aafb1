package agent

// Upfront planning and adaptive replanning, following the TAPE recipe
// (arxiv:2602.19633): generate one short plan to anchor the loop, then
// after each tool call ask whether the observation blocks the plan and,
// if so, ask for a revised next step. The trigger is an observation that
// contradicts the plan's assumptions, not a technical tool failure.

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const planPrompt = `You are helping an embodied AI agent plan its actions for ONE turn.
Given the request and available tools, write a numbered list of 2-4 concrete steps.
Each step must name which tool to call and why. One sentence per step.
Write in the same language as the request. No headers, no explanations — just the list.

Available tools: %s
Request: %s

Action plan:`

const planBlockedPrompt = `An embodied AI agent has an action plan and just executed one step.
Decide whether the observation BLOCKS further progress on the plan.

"Blocked" means: the observation contradicts a key assumption in the plan,
or makes the next planned step impossible/pointless.
"NOT blocked" means: the step succeeded or partially succeeded and the plan can continue.

Plan:
%s

Step executed: %s(%s)
Observation received: %s

Reply with exactly one word: "blocked" or "ok".`

const replanPrompt = `An embodied AI agent's plan was blocked by an unexpected observation.
Suggest a revised next step in ONE sentence.
Write in the same language as the goal. Be concrete (name the tool if relevant).

Original plan:
%s

Step that got blocked: %s(%s)
Observation: %s

Revised next step:`

// generatePlan produces a short numbered plan before the tool loop
// starts, or "" when planning is not possible. Failures are non-critical.
func (a *Agent) generatePlan(ctx context.Context, userInput string, toolNames []string) string {
	if strings.TrimSpace(userInput) == "" || len(toolNames) == 0 {
		return ""
	}
	prompt := fmt.Sprintf(planPrompt, strings.Join(toolNames, ", "), clipRunes(userInput, 300))
	plan, err := a.provider.Complete(ctx, prompt, 150)
	if err != nil {
		slog.Debug("Plan generation failed", "error", err)
		return ""
	}
	return strings.TrimSpace(plan)
}

// checkPlanBlocked asks whether the observation contradicts the plan.
// Returns false on any backend failure so the loop never stalls on it.
func (a *Agent) checkPlanBlocked(ctx context.Context, plan, toolName string, args map[string]any, result string) bool {
	if plan == "" {
		return false
	}
	prompt := fmt.Sprintf(planBlockedPrompt,
		clipRunes(plan, 400), toolName, summarizeArgs(args), clipRunes(result, 300))
	answer, err := a.provider.Complete(ctx, prompt, 5)
	if err != nil {
		slog.Debug("Plan-blocked check failed", "error", err)
		return false
	}
	return strings.ToLower(strings.TrimSpace(answer)) == "blocked"
}

// generateReplan suggests a one-sentence course correction after a
// blocked observation.
func (a *Agent) generateReplan(ctx context.Context, plan, toolName string, args map[string]any, result string) string {
	prompt := fmt.Sprintf(replanPrompt,
		clipRunes(plan, 400), toolName, summarizeArgs(args), clipRunes(result, 300))
	suggestion, err := a.provider.Complete(ctx, prompt, 80)
	if err != nil {
		slog.Debug("Replan generation failed", "error", err)
		return ""
	}
	return strings.TrimSpace(suggestion)
}

// summarizeArgs renders up to three arguments for the replanning prompts.
func summarizeArgs(args map[string]any) string {
	if len(args) == 0 {
		return "no args"
	}
	parts := make([]string, 0, 3)
	for k, v := range args {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		if len(parts) == 3 {
			break
		}
	}
	return strings.Join(parts, ", ")
}

func clipRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
