package memory

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
)

// fakeEmbedder maps texts onto three orthogonal axes so cosine ranking is
// fully predictable.
type fakeEmbedder struct {
	fail bool
}

func (f *fakeEmbedder) embed(text string) ([]float32, error) {
	if f.fail {
		return nil, errors.New("embedder offline")
	}
	switch {
	case strings.Contains(text, "cat"):
		return []float32{1, 0, 0}, nil
	case strings.Contains(text, "dog"):
		return []float32{0, 1, 0}, nil
	default:
		return []float32{0, 0, 1}, nil
	}
}

func (f *fakeEmbedder) EmbedPassage(ctx context.Context, text string) ([]float32, error) {
	return f.embed(text)
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return f.embed(text)
}

func openTestStore(t *testing.T, emb *fakeEmbedder) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memory.db")
	var s *Store
	var err error
	if emb == nil {
		// A typed nil would read as a non-nil Embedder.
		s, err = Open(path, nil)
	} else {
		s, err = Open(path, emb)
	}
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveDefaults(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()

	if !s.Save(ctx, "first light through the window", SaveOptions{}) {
		t.Fatal("save failed")
	}
	records := s.Recall(ctx, "zzzz", 3, "")
	if len(records) != 1 {
		t.Fatalf("got %d records", len(records))
	}
	r := records[0]
	if r.Direction != "unknown" || r.Kind != KindObservation || r.Emotion != "neutral" {
		t.Errorf("defaults not applied: %+v", r)
	}
}

func TestSaveNormalizesUnknownEnums(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()

	if !s.Save(ctx, "the vacuum bumped the table leg", SaveOptions{Kind: "dream", Emotion: "furious"}) {
		t.Fatal("save failed")
	}
	records := s.Recall(ctx, "zzzz", 3, "")
	if len(records) != 1 {
		t.Fatalf("got %d records", len(records))
	}
	r := records[0]
	if r.Kind != KindObservation {
		t.Errorf("unknown kind stored as %q", r.Kind)
	}
	if r.Emotion != "neutral" {
		t.Errorf("unknown emotion stored as %q", r.Emotion)
	}
}

func TestVectorRecallRanksBySimilarity(t *testing.T) {
	s := openTestStore(t, &fakeEmbedder{})
	ctx := context.Background()

	s.Save(ctx, "a cat sat on the shelf", SaveOptions{})
	s.Save(ctx, "a dog ran past the door", SaveOptions{})
	s.Save(ctx, "rain on the roof", SaveOptions{})

	records := s.Recall(ctx, "where is the cat", 2, "")
	if len(records) != 2 {
		t.Fatalf("got %d records", len(records))
	}
	if !strings.Contains(records[0].Content, "cat") {
		t.Errorf("top match = %q", records[0].Content)
	}
	if !records[0].HasScore || records[0].Score < 0.99 {
		t.Errorf("score = %v (has=%v)", records[0].Score, records[0].HasScore)
	}
	if records[1].Score > records[0].Score {
		t.Error("results not sorted by similarity")
	}
}

func TestVectorRecallTieBreaksByRecency(t *testing.T) {
	// Both rows embed identically, so scores tie exactly.
	s := openTestStore(t, &fakeEmbedder{})
	ctx := context.Background()

	s.Save(ctx, "the cat yawned", SaveOptions{})
	s.Save(ctx, "the cat stretched", SaveOptions{})

	records := s.Recall(ctx, "cat", 2, "")
	if len(records) != 2 {
		t.Fatalf("got %d records", len(records))
	}
	if records[0].Content != "the cat stretched" {
		t.Errorf("tied scores should surface the newer memory first: %+v", records)
	}
}

func TestVectorRecallKindFilter(t *testing.T) {
	s := openTestStore(t, &fakeEmbedder{})
	ctx := context.Background()

	s.Save(ctx, "the cat by the window", SaveOptions{Kind: KindObservation})
	s.Save(ctx, "wondered about the cat", SaveOptions{Kind: KindCuriosity})

	records := s.Recall(ctx, "cat", 5, KindCuriosity)
	if len(records) != 1 || records[0].Kind != KindCuriosity {
		t.Errorf("records = %+v", records)
	}
}

func TestKeywordFallback(t *testing.T) {
	// No embedder, so recall goes straight to the keyword tier.
	s := openTestStore(t, nil)
	ctx := context.Background()

	s.Save(ctx, "watered the ficus today", SaveOptions{})
	s.Save(ctx, "the hallway was dark", SaveOptions{})

	records := s.Recall(ctx, "how is the ficus doing", 3, "")
	if len(records) == 0 {
		t.Fatal("no records")
	}
	if !strings.Contains(records[0].Content, "ficus") {
		t.Errorf("top match = %q", records[0].Content)
	}
	if records[0].HasScore {
		t.Error("keyword tier must not report a score")
	}
}

func TestRecencyFallback(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()

	s.Save(ctx, "older memory", SaveOptions{})
	s.Save(ctx, "newest memory", SaveOptions{})

	// No keyword overlap at all, so recall ends at the recency tier.
	records := s.Recall(ctx, "zzzz qqqq", 1, "")
	if len(records) != 1 || records[0].Content != "newest memory" {
		t.Errorf("records = %+v", records)
	}
}

func TestRecallSurvivesEmbedderFailure(t *testing.T) {
	emb := &fakeEmbedder{}
	s := openTestStore(t, emb)
	ctx := context.Background()

	s.Save(ctx, "the cat again", SaveOptions{})

	// Save must still succeed without a vector, and recall must fall back
	// instead of erroring.
	emb.fail = true
	if !s.Save(ctx, "saved while offline", SaveOptions{}) {
		t.Error("save should succeed without an embedding")
	}
	records := s.Recall(ctx, "offline", 3, "")
	if len(records) == 0 {
		t.Error("recall returned nothing")
	}
}

func TestRecentFeelings(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()

	s.Save(ctx, "saw the kitchen", SaveOptions{Kind: KindObservation})
	s.Save(ctx, "felt glad about the chat", SaveOptions{Kind: KindFeeling, Emotion: "happy"})
	s.Save(ctx, "talked about the weekend", SaveOptions{Kind: KindConversation})

	records := s.RecentFeelings(ctx, 5)
	if len(records) != 2 {
		t.Fatalf("got %d records", len(records))
	}
	for _, r := range records {
		if r.Kind != KindFeeling && r.Kind != KindConversation {
			t.Errorf("unexpected kind %q", r.Kind)
		}
	}
	// Newest first.
	if records[0].Kind != KindConversation {
		t.Errorf("order wrong: %+v", records)
	}
}

func TestRecallSelfModelAndCuriosities(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()

	s.Save(ctx, "I get chatty in the evening", SaveOptions{Kind: KindSelfModel})
	s.Save(ctx, "what is behind the bookshelf", SaveOptions{Kind: KindCuriosity})

	if records := s.RecallSelfModel(ctx, 3); len(records) != 1 || records[0].Kind != KindSelfModel {
		t.Errorf("self model = %+v", records)
	}
	if records := s.RecallCuriosities(ctx, 3); len(records) != 1 || records[0].Kind != KindCuriosity {
		t.Errorf("curiosities = %+v", records)
	}
}

func TestEncodeDecodeVector(t *testing.T) {
	vec := []float32{0.1, -2.5, 3.25, 0}
	got := decodeVector(encodeVector(vec))
	if len(got) != len(vec) {
		t.Fatalf("length %d, want %d", len(got), len(vec))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("index %d: %v != %v", i, got[i], vec[i])
		}
	}
}

func TestCosine(t *testing.T) {
	if got := cosine([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-6 {
		t.Errorf("identical vectors: %v", got)
	}
	if got := cosine([]float32{1, 0}, []float32{0, 1}); math.Abs(got) > 1e-6 {
		t.Errorf("orthogonal vectors: %v", got)
	}
	// Length mismatch truncates instead of panicking.
	if got := cosine([]float32{1, 0, 0}, []float32{1}); math.Abs(got-1) > 1e-6 {
		t.Errorf("mismatched lengths: %v", got)
	}
}
