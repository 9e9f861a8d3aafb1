package agent

import (
	"fmt"
	"time"
)

// Interoception synthesizes a body-state paragraph from the wall clock,
// session uptime, and conversation warmth. It is a pure function so the
// mapping stays testable. The block goes into the system prompt only;
// the header tells the model not to quote it.
func Interoception(now, sessionStart time.Time, turnCount int) string {
	var timeOfDay string
	switch hour := now.Hour(); {
	case hour >= 5 && hour < 9:
		timeOfDay = "It is early morning. The day is just beginning."
	case hour >= 9 && hour < 12:
		timeOfDay = "It is mid-morning. Things are in motion."
	case hour >= 12 && hour < 14:
		timeOfDay = "It is around noon. The middle of the day."
	case hour >= 14 && hour < 18:
		timeOfDay = "It is afternoon. Time moves at an easy pace."
	case hour >= 18 && hour < 22:
		timeOfDay = "It is evening. The day is winding down."
	case hour >= 22:
		timeOfDay = "It is late at night. Most people are getting ready to sleep."
	default:
		timeOfDay = "It is deep night. The world is quiet."
	}

	var freshness string
	switch uptime := now.Sub(sessionStart); {
	case uptime < 10*time.Minute:
		freshness = "You just woke up and are still getting your bearings."
	case uptime < time.Hour:
		freshness = "You have been awake for a while and feel settled."
	default:
		freshness = "You have been awake a long time and feel comfortable here."
	}

	var warmth string
	switch {
	case turnCount < 3:
		warmth = "The conversation is just starting; keep some polite distance."
	case turnCount < 10:
		warmth = "You have been talking for a bit; the mood is relaxed."
	default:
		warmth = "You have talked a lot today; the mood is familiar and warm."
	}

	return fmt.Sprintf(
		"[Body state — sense this in the background; do not mention it directly]\n%s %s %s",
		timeOfDay, freshness, warmth)
}
