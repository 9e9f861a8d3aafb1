package memorytool

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/utenadev/familiar-ai/pkg/i18n"
	"github.com/utenadev/familiar-ai/pkg/memory"
)

func openTestStore(t *testing.T) *memory.Store {
	t.Helper()
	store, err := memory.Open(filepath.Join(t.TempDir(), "mem.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRememberAndRecall(t *testing.T) {
	store := openTestStore(t)
	m := NewMemoryTool(store, i18n.LocaleEN)
	ctx := context.Background()

	res, err := m.Call(ctx, "remember", map[string]any{
		"content": "Kota watered the basil plants today",
		"emotion": "happy",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "Remembered." {
		t.Errorf("remember = %q", res.Text)
	}

	res, err = m.Call(ctx, "recall", map[string]any{"query": "basil plants"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Text, "watered the basil") {
		t.Errorf("recall missed the memory: %q", res.Text)
	}
	if !strings.Contains(res.Text, "[happy]") {
		t.Errorf("emotion tag missing: %q", res.Text)
	}
}

func TestRememberNormalizesInventedEmotion(t *testing.T) {
	store := openTestStore(t)
	m := NewMemoryTool(store, i18n.LocaleEN)
	ctx := context.Background()

	if _, err := m.Call(ctx, "remember", map[string]any{
		"content": "Kota slammed the door on the way out",
		"emotion": "furious",
	}); err != nil {
		t.Fatal(err)
	}

	res, err := m.Call(ctx, "recall", map[string]any{"query": "slammed door"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(res.Text, "furious") {
		t.Errorf("invented emotion survived storage: %q", res.Text)
	}
}

func TestRememberEmptyContent(t *testing.T) {
	m := NewMemoryTool(openTestStore(t), i18n.LocaleEN)
	res, err := m.Call(context.Background(), "remember", map[string]any{"content": ""})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Text, "content is empty") {
		t.Errorf("empty content accepted: %q", res.Text)
	}
}

func TestRecallNothingFound(t *testing.T) {
	m := NewMemoryTool(openTestStore(t), i18n.LocaleEN)
	res, err := m.Call(context.Background(), "recall", map[string]any{"query": "anything"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "No related memories found." {
		t.Errorf("recall on empty store = %q", res.Text)
	}
}

func TestMemoryToolUnknownName(t *testing.T) {
	m := NewMemoryTool(openTestStore(t), i18n.LocaleEN)
	res, err := m.Call(context.Background(), "forget", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Text, "not available") {
		t.Errorf("unknown tool = %q", res.Text)
	}
}

func TestToMScaffold(t *testing.T) {
	store := openTestStore(t)
	store.Save(context.Background(), "Kota gets quiet when stressed at work", memory.SaveOptions{
		Kind:    memory.KindObservation,
		Emotion: "sad",
	})

	tm := NewToMTool(store, "Kota")
	res, err := tm.Call(context.Background(), "tom", map[string]any{
		"situation": "lol it's fine, whatever",
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"taking Kota's perspective",
		"lol it's fine, whatever",
		"## Tone analysis",
		"## Projection",
		"## Substitution",
		"## Response policy",
	} {
		if !strings.Contains(res.Text, want) {
			t.Errorf("scaffold missing %q:\n%s", want, res.Text)
		}
	}
	if !strings.Contains(res.Text, "quiet when stressed") {
		t.Errorf("recalled memory missing:\n%s", res.Text)
	}
}

func TestToMDefaultPerson(t *testing.T) {
	tm := NewToMTool(openTestStore(t), "")
	res, err := tm.Call(context.Background(), "tom", map[string]any{"situation": "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Text, "the person you are talking to") {
		t.Errorf("default person missing:\n%s", res.Text)
	}
}
