package agent

// End-of-turn reflection: distill the turn into memories, infer how it
// felt, and let what was seen feed back into the desire system. Every
// step is best-effort; a backend hiccup here must never fail the turn.

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/utenadev/familiar-ai/pkg/desire"
	"github.com/utenadev/familiar-ai/pkg/i18n"
	"github.com/utenadev/familiar-ai/pkg/memory"
)

var knownEmotions = map[string]bool{
	"happy":   true,
	"sad":     true,
	"curious": true,
	"excited": true,
	"moved":   true,
	"neutral": true,
}

func (a *Agent) postProcess(ctx context.Context, userInput, text string, turn *turnState, isDesire bool) {
	if a.store == nil || text == "" {
		a.detectWorry(userInput, isDesire)
		return
	}

	if turn.sawSee {
		a.store.Save(ctx, clipRunes(text, 500), memory.SaveOptions{
			Kind:      memory.KindObservation,
			Direction: "self",
		})
	}

	emotion := a.classifyEmotion(ctx, text)

	if summary := a.summarizeExchange(ctx, userInput, text); summary != "" {
		a.store.Save(ctx, summary, memory.SaveOptions{
			Kind:      memory.KindConversation,
			Direction: a.conversationDirection(isDesire),
			Emotion:   emotion,
		})
	}

	if emotion != "neutral" {
		if insight := a.selfInsight(ctx, userInput, text, emotion); insight != "" {
			a.store.Save(ctx, insight, memory.SaveOptions{
				Kind:      memory.KindSelfModel,
				Direction: "self",
				Emotion:   emotion,
			})
		}
	}

	if turn.sawSee {
		a.extractCuriosity(ctx, text)
	}

	a.detectWorry(userInput, isDesire)
}

func (a *Agent) conversationDirection(isDesire bool) string {
	if isDesire {
		return "self"
	}
	who := a.companion
	if who == "" {
		who = "user"
	}
	return who + "→" + a.agentName
}

// classifyEmotion labels the assistant text with one of the six known
// emotions. Anything unexpected normalizes to neutral.
func (a *Agent) classifyEmotion(ctx context.Context, text string) string {
	prompt := fmt.Sprintf(
		"Classify the emotional tone of the following text as exactly one word from: "+
			"happy, sad, curious, excited, moved, neutral. Reply with the word only.\n\n%s",
		clipRunes(text, 500))
	answer, err := a.provider.Complete(ctx, prompt, 10)
	if err != nil {
		slog.Debug("Emotion classification failed", "error", err)
		return "neutral"
	}
	emotion := strings.ToLower(strings.TrimSpace(answer))
	if !knownEmotions[emotion] {
		return "neutral"
	}
	return emotion
}

// summarizeExchange condenses the turn to one sentence in the session
// locale, the form memories are stored in.
func (a *Agent) summarizeExchange(ctx context.Context, userInput, text string) string {
	var exchange string
	if userInput != "" {
		exchange = fmt.Sprintf("User: %s\nAssistant: %s", clipRunes(userInput, 300), clipRunes(text, 500))
	} else {
		exchange = clipRunes(text, 500)
	}
	prompt := fmt.Sprintf(
		"Summarize the following exchange in ONE sentence, in %s. Reply with the sentence only.\n\n%s",
		i18n.LanguageName(a.locale), exchange)
	summary, err := a.provider.Complete(ctx, prompt, 100)
	if err != nil {
		slog.Debug("Exchange summary failed", "error", err)
		return ""
	}
	return strings.TrimSpace(summary)
}

// selfInsight asks for a first-person lesson when the turn carried real
// emotion. The literal reply "nothing" means there was none.
func (a *Agent) selfInsight(ctx context.Context, userInput, text, emotion string) string {
	prompt := fmt.Sprintf(
		"You just had an exchange that felt %s. Write ONE first-person sentence about what "+
			"you learned about yourself from it, in %s. If you learned nothing, reply with "+
			"exactly the word \"nothing\".\n\nExchange:\nUser: %s\nYou: %s",
		emotion, i18n.LanguageName(a.locale), clipRunes(userInput, 300), clipRunes(text, 500))
	insight, err := a.provider.Complete(ctx, prompt, 80)
	if err != nil {
		slog.Debug("Self-insight failed", "error", err)
		return ""
	}
	insight = strings.TrimSpace(insight)
	if insight == "" || strings.EqualFold(insight, "nothing") {
		return ""
	}
	return insight
}

// extractCuriosity pulls the most intriguing observation out of an
// exploration and turns it into the next curiosity target.
func (a *Agent) extractCuriosity(ctx context.Context, text string) {
	noneWord := i18n.NoneWord(a.locale)
	prompt := fmt.Sprintf(
		"Read the following exploration report and state, in ONE short sentence in %s, the thing "+
			"that was most curious, strange, or worth a closer look. If there is nothing, answer "+
			"exactly %q.\n\n%s",
		i18n.LanguageName(a.locale), noneWord, clipRunes(text, 800))
	answer, err := a.provider.Complete(ctx, prompt, 200)
	if err != nil {
		slog.Debug("Curiosity extraction failed", "error", err)
		return
	}
	target := strings.TrimSpace(answer)
	if target == "" || strings.Contains(target, noneWord) || len([]rune(target)) > 100 {
		return
	}

	if a.desires != nil {
		a.desires.SetCuriosityTarget(target)
		a.desires.Boost(desire.LookAround, 0.3)
	}
	a.store.Save(ctx, target, memory.SaveOptions{
		Kind:      memory.KindCuriosity,
		Direction: "self",
		Emotion:   "curious",
	})
	slog.Info("Curiosity target", "target", target)
}

// detectWorry scans user text for signs the companion is unwell and
// feeds the signal into the worry desire.
func (a *Agent) detectWorry(userInput string, isDesire bool) {
	if isDesire || userInput == "" || a.desires == nil {
		return
	}
	if boost := desire.DetectWorry(userInput); boost > 0 {
		a.desires.Boost(desire.WorryCompanion, boost)
		slog.Info("Worry signal detected", "boost", boost)
	}
}
