package memory

import (
	"fmt"
	"strings"

	"github.com/utenadev/familiar-ai/pkg/i18n"
)

// Context formatters render recalled records as compact bracketed blocks
// for prompt injection. Content is clipped to 120 runes per bullet so a
// handful of memories never dominates the window.

const clipLen = 120

// FormatMemories renders general recall results.
func FormatMemories(loc i18n.Locale, records []Record) string {
	if len(records) == 0 {
		return ""
	}
	lines := []string{"[" + i18n.T(loc, "memories.header") + "]"}
	for _, r := range records {
		score := ""
		if r.HasScore {
			score = fmt.Sprintf("(%.2f)", r.Score)
		}
		emotion := ""
		if r.Emotion != "" && r.Emotion != "neutral" {
			emotion = "[" + r.Emotion + "]"
		}
		direction := r.Direction
		if direction == "" {
			direction = "?"
		}
		lines = append(lines, fmt.Sprintf("- %s %s (%s)%s%s: %s",
			r.Date, r.Time, direction, score, emotion, clip(r.Content, clipLen)))
	}
	return strings.Join(lines, "\n")
}

// FormatFeelings renders recent emotional memories.
func FormatFeelings(loc i18n.Locale, records []Record) string {
	if len(records) == 0 {
		return ""
	}
	lines := []string{"[" + i18n.T(loc, "feelings.header") + "]"}
	for _, r := range records {
		emotion := ""
		if r.Emotion != "" && r.Emotion != "neutral" {
			emotion = "[" + r.Emotion + "] "
		}
		lines = append(lines, fmt.Sprintf("- %s %s %s%s", r.Date, r.Time, emotion, clip(r.Content, clipLen)))
	}
	return strings.Join(lines, "\n")
}

// FormatSelfModel renders accumulated self-model insights.
func FormatSelfModel(loc i18n.Locale, records []Record) string {
	if len(records) == 0 {
		return ""
	}
	lines := []string{"[" + i18n.T(loc, "selfmodel.header") + "]"}
	for _, r := range records {
		lines = append(lines, "- "+clip(r.Content, clipLen))
	}
	return strings.Join(lines, "\n")
}

// FormatCuriosities renders unresolved curiosity threads.
func FormatCuriosities(loc i18n.Locale, records []Record) string {
	if len(records) == 0 {
		return ""
	}
	lines := []string{"[" + i18n.T(loc, "curiosities.header") + "]"}
	for _, r := range records {
		lines = append(lines, fmt.Sprintf("- %s %s: %s", r.Date, r.Time, clip(r.Content, clipLen)))
	}
	return strings.Join(lines, "\n")
}
