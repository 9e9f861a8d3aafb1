// Package desire models the agent's autonomous motivations. Desires grow
// while the agent is idle, trigger self-driven turns past a threshold,
// and reset once acted on. Levels persist across restarts.
package desire

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/utenadev/familiar-ai/pkg/i18n"
)

// TriggerThreshold is the level a desire must reach to drive a turn.
const TriggerThreshold = 0.6

const (
	LookAround     = "look_around"
	Explore        = "explore"
	GreetCompanion = "greet_companion"
	Rest           = "rest"
	WorryCompanion = "worry_companion"
)

var defaultLevels = map[string]float64{
	LookAround:     0.1,
	Explore:        0.1,
	GreetCompanion: 0.0,
	Rest:           0.0,
	WorryCompanion: 0.0,
}

// Growth per second of inactivity. worry_companion is absent on purpose:
// it only grows through DetectWorry boosts.
var growthRates = map[string]float64{
	LookAround:     0.005,
	Explore:        0.008,
	GreetCompanion: 0.002,
	Rest:           0.0,
}

// State tracks desire levels and persists them to a JSON file on every
// mutation.
type State struct {
	mu        sync.Mutex
	path      string
	levels    map[string]float64
	lastTick  time.Time
	curiosity string

	locale    i18n.Locale
	companion string
}

func NewState(path string, locale i18n.Locale, companion string) *State {
	s := &State{
		path:      path,
		lastTick:  time.Now(),
		locale:    locale,
		companion: companion,
	}
	s.load()
	return s
}

func (s *State) load() {
	s.levels = make(map[string]float64, len(defaultLevels))
	for name, level := range defaultLevels {
		s.levels[name] = level
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var saved map[string]float64
	if err := json.Unmarshal(data, &saved); err != nil {
		slog.Warn("Ignoring corrupt desire state", "path", s.path, "error", err)
		return
	}
	for name, level := range saved {
		s.levels[name] = level
	}
}

func (s *State) save() {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		slog.Warn("Could not save desires", "error", err)
		return
	}
	data, err := json.MarshalIndent(s.levels, "", "  ")
	if err != nil {
		slog.Warn("Could not save desires", "error", err)
		return
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		slog.Warn("Could not save desires", "error", err)
	}
}

// Tick grows desires by elapsed time since the last tick.
func (s *State) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickLocked(time.Now())
}

// TickAt is Tick with an explicit clock, for tests.
func (s *State) TickAt(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickLocked(now)
}

func (s *State) tickLocked(now time.Time) {
	dt := now.Sub(s.lastTick).Seconds()
	s.lastTick = now
	if dt <= 0 {
		return
	}
	for name, rate := range growthRates {
		s.levels[name] = clamp01(s.levels[name] + rate*dt)
	}
	s.save()
}

// Level returns the current level of a desire.
func (s *State) Level(name string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.levels[name]
}

// Boost raises a desire, e.g. in response to novelty or a worry signal.
func (s *State) Boost(name string, amount float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels[name] = clamp01(s.levels[name] + amount)
	s.save()
}

// Satisfy resets a desire to its default after the agent acted on it.
func (s *State) Satisfy(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.levels[name]; !ok {
		return
	}
	s.levels[name] = defaultLevels[name]
	s.save()
}

// Dominant ticks, then returns the strongest desire at or above the
// trigger threshold.
func (s *State) Dominant() (string, float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickLocked(time.Now())

	best, bestLevel := "", 0.0
	for name, level := range s.levels {
		if level >= TriggerThreshold && level > bestLevel {
			best, bestLevel = name, level
		}
	}
	return best, bestLevel, best != ""
}

// DominantPrompt renders the dominant desire as an inner-impulse prompt,
// phrased in first person so the model treats it as its own drive. A set
// curiosity target takes over for look_around and explore.
func (s *State) DominantPrompt() (string, string, bool) {
	name, _, ok := s.Dominant()
	if !ok {
		return "", "", false
	}

	s.mu.Lock()
	target := s.curiosity
	s.mu.Unlock()
	if target != "" && (name == LookAround || name == Explore) {
		return name, fmt.Sprintf(i18n.T(s.locale, "impulse.curiosity"), target), true
	}

	tmpl := i18n.T(s.locale, "impulse."+name)
	if name == GreetCompanion || name == WorryCompanion {
		return name, fmt.Sprintf(tmpl, s.companionName()), true
	}
	return name, tmpl, true
}

func (s *State) companionName() string {
	if s.companion != "" {
		return s.companion
	}
	return "your companion"
}

// CuriosityTarget returns what the agent wants to investigate next.
func (s *State) CuriosityTarget() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.curiosity
}

func (s *State) SetCuriosityTarget(target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.curiosity = target
}

func (s *State) ClearCuriosityTarget() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.curiosity = ""
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Strong worry signals: sleep deprivation, illness.
var strongWorryPatterns = []string{
	"寝不足",
	"眠れない",
	"眠れなくて",
	"眠れなかった",
	"熱が",
	"熱出",
	"風邪",
	"体調悪",
	"具合悪",
	"疲れ果て",
	"限界",
	"倒れ",
	"slept only",
	"no sleep",
	"can't sleep",
	"haven't slept",
}

// Weak worry signals: general fatigue, stress.
var weakWorryPatterns = []string{
	"疲れた",
	"しんどい",
	"しんどくて",
	"つらい",
	"大変",
	"残業",
	"tired",
	"exhausted",
	"stressed",
}

// DetectWorry scans conversation text for signs the companion is unwell
// and returns a boost amount in [0, 1]. Keyword matching keeps the
// result deterministic: strong signals add 0.4, weak ones 0.2.
func DetectWorry(text string) float64 {
	if text == "" {
		return 0
	}
	lower := strings.ToLower(text)
	total := 0.0
	for _, p := range strongWorryPatterns {
		if strings.Contains(lower, strings.ToLower(p)) {
			total += 0.4
		}
	}
	for _, p := range weakWorryPatterns {
		if strings.Contains(lower, strings.ToLower(p)) {
			total += 0.2
		}
	}
	return min(1.0, total)
}
