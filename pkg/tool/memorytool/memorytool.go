// Package memorytool exposes the memory store to the model: remember,
// recall, and the tom perspective-taking scaffold.
package memorytool

import (
	"context"
	"fmt"
	"strings"

	"github.com/utenadev/familiar-ai/pkg/i18n"
	"github.com/utenadev/familiar-ai/pkg/memory"
	"github.com/utenadev/familiar-ai/pkg/tool"
)

// MemoryTool serves remember and recall.
type MemoryTool struct {
	store  *memory.Store
	locale i18n.Locale
}

func NewMemoryTool(store *memory.Store, locale i18n.Locale) *MemoryTool {
	return &MemoryTool{store: store, locale: locale}
}

func (m *MemoryTool) Definitions() []tool.Definition {
	return []tool.Definition{
		{
			Name: "remember",
			Description: "Store something worth keeping: an observation, a feeling, " +
				"something learned about a person. Use freely, memory is what makes you continuous.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"content": map[string]any{
						"type":        "string",
						"description": "What to remember",
					},
					"emotion": map[string]any{
						"type":        "string",
						"enum":        []any{"neutral", "happy", "sad", "curious", "excited", "moved"},
						"description": "Emotional color of this memory",
					},
					"image_path": map[string]any{
						"type":        "string",
						"description": "Optional path of a captured image tied to this memory",
					},
				},
				"required": []any{"content"},
			},
		},
		{
			Name:        "recall",
			Description: "Search your long-term memory for related moments.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "What to search for",
					},
					"n": map[string]any{
						"type":        "integer",
						"description": "How many memories to return (default 3)",
					},
				},
				"required": []any{"query"},
			},
		},
	}
}

func (m *MemoryTool) Call(ctx context.Context, name string, args map[string]any) (*tool.Result, error) {
	switch name {
	case "remember":
		content := tool.StringArg(args, "content", "")
		if content == "" {
			return &tool.Result{Text: "Nothing to remember: content is empty."}, nil
		}
		ok := m.store.Save(ctx, content, memory.SaveOptions{
			Kind:      memory.KindObservation,
			Emotion:   tool.StringArg(args, "emotion", "neutral"),
			ImagePath: tool.StringArg(args, "image_path", ""),
		})
		if !ok {
			return &tool.Result{Text: "Could not store the memory right now."}, nil
		}
		return &tool.Result{Text: "Remembered."}, nil

	case "recall":
		query := tool.StringArg(args, "query", "")
		n := tool.IntArg(args, "n", 3)
		records := m.store.Recall(ctx, query, n, "")
		if len(records) == 0 {
			return &tool.Result{Text: "No related memories found."}, nil
		}
		return &tool.Result{Text: memory.FormatMemories(m.locale, records)}, nil
	}
	return &tool.Result{Text: fmt.Sprintf("Tool %s not available", name)}, nil
}

// ToMTool serves tom: a perspective-taking scaffold that pulls memories
// about the other person and walks the model through tone analysis,
// projection, and role reversal before it answers.
type ToMTool struct {
	store         *memory.Store
	defaultPerson string
}

func NewToMTool(store *memory.Store, defaultPerson string) *ToMTool {
	if defaultPerson == "" {
		defaultPerson = "the person you are talking to"
	}
	return &ToMTool{store: store, defaultPerson: defaultPerson}
}

func (t *ToMTool) Definitions() []tool.Definition {
	return []tool.Definition{
		{
			Name: "tom",
			Description: "Theory of Mind: perspective-taking tool. " +
				"Call this BEFORE responding to understand what the other person is feeling and wanting. " +
				"Projects your simulated emotions onto them, then swaps perspectives.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"situation": map[string]any{
						"type":        "string",
						"description": "What the other person said or did (their message/action).",
					},
					"person": map[string]any{
						"type":        "string",
						"description": fmt.Sprintf("Who you are talking to (default: %s).", t.defaultPerson),
					},
				},
				"required": []any{"situation"},
			},
		},
	}
}

func (t *ToMTool) Call(ctx context.Context, name string, args map[string]any) (*tool.Result, error) {
	if name != "tom" {
		return &tool.Result{Text: fmt.Sprintf("Tool %s not available", name)}, nil
	}
	situation := tool.StringArg(args, "situation", "")
	person := tool.StringArg(args, "person", t.defaultPerson)

	query := fmt.Sprintf("%s communication personality conversation patterns %s", person, situation)
	records := t.store.Recall(ctx, query, 5, "")

	var memoryBlock string
	if len(records) > 0 {
		var lines []string
		for _, r := range records {
			emotion := r.Emotion
			if emotion == "" {
				emotion = "neutral"
			}
			lines = append(lines, fmt.Sprintf("- [%s] %s", emotion, r.Content))
		}
		memoryBlock = fmt.Sprintf("\n## Memories about %s\n%s", person, strings.Join(lines, "\n"))
	}

	output := fmt.Sprintf(`# ToM: taking %[1]s's perspective

## Situation
%[2]s
%[3]s

## Tone analysis (read HOW it was said first)
-> Read intent from endings, markers (lol/w/!/?/...), formality shifts, self-deprecation, shyness, sarcasm
-> Check whether the literal meaning and the tone point the same way

## Projection (what is %[1]s feeling and wanting right now?)
-> Infer their emotions and needs from the tone analysis and memories
-> Consider the feeling underneath, not just the surface one

## Substitution (in their place, having said it that way, how would you want to be answered?)
-> Put that feeling and tone on yourself and think it through

## Response policy
-> Decide how to reply based on the above
-> Match your reply to their tone`, person, situation, memoryBlock)

	return &tool.Result{Text: output}, nil
}
