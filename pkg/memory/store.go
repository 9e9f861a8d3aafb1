// Package memory is the long-term observation and feeling store: sqlite
// rows plus embedding blobs, recalled by cosine similarity with keyword
// and recency fallbacks.
//
// Every operation is best-effort. Memory is a feature, not a contract: a
// failed save is logged and swallowed, a corrupt database surfaces as
// empty recall results, never as a crash.
package memory

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/utenadev/familiar-ai/pkg/embedder"
)

// Memory kinds.
const (
	KindObservation  = "observation"
	KindFeeling      = "feeling"
	KindConversation = "conversation"
	KindSelfModel    = "self_model"
	KindCuriosity    = "curiosity"
)

// Closed vocabularies. Model-supplied values outside these normalize to
// the defaults instead of reaching the database.
var knownKinds = map[string]bool{
	KindObservation:  true,
	KindFeeling:      true,
	KindConversation: true,
	KindSelfModel:    true,
	KindCuriosity:    true,
}

var knownEmotions = map[string]bool{
	"neutral": true,
	"happy":   true,
	"sad":     true,
	"curious": true,
	"excited": true,
	"moved":   true,
}

const ddl = `
CREATE TABLE IF NOT EXISTS observations (
    id TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    timestamp TEXT NOT NULL,
    date TEXT NOT NULL,
    time TEXT NOT NULL,
    direction TEXT NOT NULL DEFAULT 'unknown',
    kind TEXT NOT NULL DEFAULT 'observation',
    emotion TEXT NOT NULL DEFAULT 'neutral',
    image_path TEXT NOT NULL DEFAULT '',
    image_data TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_obs_timestamp ON observations(timestamp);
CREATE INDEX IF NOT EXISTS idx_obs_date ON observations(date);
CREATE INDEX IF NOT EXISTS idx_obs_kind ON observations(kind);

CREATE TABLE IF NOT EXISTS obs_embeddings (
    obs_id TEXT PRIMARY KEY REFERENCES observations(id) ON DELETE CASCADE,
    vector BLOB NOT NULL
);
`

// migrations add columns introduced after the first schema; each ALTER
// is idempotent by way of the swallowed duplicate-column error.
var migrations = []string{
	`ALTER TABLE observations ADD COLUMN kind TEXT NOT NULL DEFAULT 'observation'`,
	`ALTER TABLE observations ADD COLUMN emotion TEXT NOT NULL DEFAULT 'neutral'`,
	`ALTER TABLE observations ADD COLUMN image_path TEXT NOT NULL DEFAULT ''`,
	`ALTER TABLE observations ADD COLUMN image_data TEXT NOT NULL DEFAULT ''`,
}

// Record is one recalled memory. Score is set only by vector recall.
type Record struct {
	ID        string
	Content   string
	Date      string
	Time      string
	Direction string
	Kind      string
	Emotion   string
	ImagePath string
	ImageData string

	Score    float64
	HasScore bool
}

// SaveOptions qualifies a Save beyond the content text.
type SaveOptions struct {
	Direction string
	Kind      string
	Emotion   string
	ImagePath string
	ImageData string
}

// Store is the sqlite-backed memory store.
type Store struct {
	db       *sql.DB
	embedder embedder.Embedder
}

// Open opens (and creates) the database at path. The embedder may be nil
// for keyword-only operation.
func Open(path string, emb embedder.Embedder) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	for _, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil && !strings.Contains(err.Error(), "duplicate column") {
			slog.Debug("schema migration skipped", "error", err)
		}
	}
	return &Store{db: db, embedder: emb}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Save stores one memory and its embedding. Best-effort: failures are
// logged and reported as false, never raised.
func (s *Store) Save(ctx context.Context, content string, opts SaveOptions) bool {
	if opts.Direction == "" {
		opts.Direction = "unknown"
	}
	if !knownKinds[opts.Kind] {
		opts.Kind = KindObservation
	}
	if !knownEmotions[opts.Emotion] {
		opts.Emotion = "neutral"
	}

	var blob []byte
	if s.embedder != nil {
		vec, err := s.embedder.EmbedPassage(ctx, content)
		if err != nil {
			slog.Warn("failed to embed memory, saving without vector", "error", err)
		} else {
			blob = encodeVector(vec)
		}
	}

	now := time.Now()
	id := uuid.New().String()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Warn("failed to save memory", "error", err)
		return false
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO observations (id, content, timestamp, date, time, direction, kind, emotion, image_path, image_data)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, content, now.Format(time.RFC3339Nano), now.Format("2006-01-02"), now.Format("15:04"),
		opts.Direction, opts.Kind, opts.Emotion, opts.ImagePath, opts.ImageData,
	)
	if err != nil {
		slog.Warn("failed to save memory", "error", err)
		return false
	}
	if blob != nil {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO obs_embeddings (obs_id, vector) VALUES (?, ?)`, id, blob); err != nil {
			slog.Warn("failed to save embedding", "error", err)
			return false
		}
	}
	if err := tx.Commit(); err != nil {
		slog.Warn("failed to save memory", "error", err)
		return false
	}
	slog.Info("saved memory", "kind", opts.Kind, "emotion", opts.Emotion, "content", clip(content, 60))
	return true
}

// Recall finds the n memories most relevant to query. Three tiers: cosine
// similarity over stored vectors, then substring keyword match, then
// plain recency. kind, when non-empty, filters the first tier.
func (s *Store) Recall(ctx context.Context, query string, n int, kind string) []Record {
	if n <= 0 {
		n = 3
	}
	if records := s.recallVector(ctx, query, n, kind); records != nil {
		return records
	}
	if records := s.recallKeyword(ctx, query, n, kind); records != nil {
		return records
	}
	return s.recallRecent(ctx, n, kind)
}

func (s *Store) recallVector(ctx context.Context, query string, n int, kind string) []Record {
	if s.embedder == nil {
		return nil
	}
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM obs_embeddings`).Scan(&count); err != nil || count == 0 {
		return nil
	}
	queryVec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		slog.Warn("query embedding failed, falling back to keywords", "error", err)
		return nil
	}

	q := `SELECT o.id, o.content, o.timestamp, o.date, o.time, o.direction, o.kind, o.emotion, o.image_path, e.vector
	      FROM observations o JOIN obs_embeddings e ON o.id = e.obs_id`
	var args []any
	if kind != "" {
		q += ` WHERE o.kind = ?`
		args = append(args, kind)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		slog.Warn("vector recall query failed", "error", err)
		return nil
	}
	defer rows.Close()

	type scoredRow struct {
		rec Record
		ts  string
	}
	var scored []scoredRow
	for rows.Next() {
		var row scoredRow
		var blob []byte
		r := &row.rec
		if err := rows.Scan(&r.ID, &r.Content, &row.ts, &r.Date, &r.Time, &r.Direction, &r.Kind, &r.Emotion, &r.ImagePath, &blob); err != nil {
			continue
		}
		r.Score = cosine(queryVec, decodeVector(blob))
		r.HasScore = true
		scored = append(scored, row)
	}
	if len(scored) == 0 {
		return nil
	}
	// Equal scores break toward the newer memory.
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].rec.Score != scored[j].rec.Score {
			return scored[i].rec.Score > scored[j].rec.Score
		}
		return scored[i].ts > scored[j].ts
	})
	if len(scored) > n {
		scored = scored[:n]
	}
	records := make([]Record, len(scored))
	for i, row := range scored {
		records[i] = row.rec
	}
	return records
}

func (s *Store) recallKeyword(ctx context.Context, query string, n int, kind string) []Record {
	var keywords []string
	for _, w := range strings.Fields(query) {
		if len([]rune(w)) > 1 {
			keywords = append(keywords, w)
		}
		if len(keywords) == 4 {
			break
		}
	}
	if len(keywords) == 0 {
		return nil
	}

	conds := make([]string, len(keywords))
	args := make([]any, 0, len(keywords)+2)
	for i, kw := range keywords {
		conds[i] = "content LIKE ?"
		args = append(args, "%"+kw+"%")
	}
	q := `SELECT id, content, date, time, direction, kind, emotion, image_path FROM observations
	      WHERE (` + strings.Join(conds, " OR ") + `)`
	if kind != "" {
		q += ` AND kind = ?`
		args = append(args, kind)
	}
	q += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, n)

	records := s.queryRecords(ctx, q, args...)
	if len(records) == 0 {
		return nil
	}
	return records
}

func (s *Store) recallRecent(ctx context.Context, n int, kind string) []Record {
	q := `SELECT id, content, date, time, direction, kind, emotion, image_path FROM observations`
	var args []any
	if kind != "" {
		q += ` WHERE kind = ?`
		args = append(args, kind)
	}
	q += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, n)
	return s.queryRecords(ctx, q, args...)
}

// RecentFeelings returns the newest emotional memories (feelings and
// conversation summaries).
func (s *Store) RecentFeelings(ctx context.Context, n int) []Record {
	return s.queryRecords(ctx,
		`SELECT id, content, date, time, direction, kind, emotion, image_path FROM observations
		 WHERE kind IN ('feeling', 'conversation')
		 ORDER BY timestamp DESC LIMIT ?`, n)
}

// RecallSelfModel returns the newest self-model insights.
func (s *Store) RecallSelfModel(ctx context.Context, n int) []Record {
	return s.recallRecent(ctx, n, KindSelfModel)
}

// RecallCuriosities returns unresolved curiosity threads, newest first.
func (s *Store) RecallCuriosities(ctx context.Context, n int) []Record {
	return s.recallRecent(ctx, n, KindCuriosity)
}

func (s *Store) queryRecords(ctx context.Context, q string, args ...any) []Record {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		slog.Warn("memory query failed", "error", err)
		return nil
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Content, &r.Date, &r.Time, &r.Direction, &r.Kind, &r.Emotion, &r.ImagePath); err != nil {
			continue
		}
		records = append(records, r)
	}
	return records
}

// encodeVector packs float32s little-endian, matching the layout numpy
// tobytes() produced in earlier databases.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(blob []byte) []float32 {
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}

// cosine assumes both vectors are already L2-normalized, so the dot
// product is the similarity. A small norm correction guards against
// vectors that slipped in unnormalized.
func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(na)*math.Sqrt(nb) + 1e-10
	return dot / denom
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
