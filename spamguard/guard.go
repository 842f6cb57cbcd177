// Package spamguard holds the per-client flood heuristics that gate
// outgoing messages. The guard is pure: the caller supplies the clock,
// which keeps every rule testable without sleeping.
package spamguard

import (
	"time"
	"unicode/utf8"
)

const (
	// retention of the rolling buffer; no rule looks further back
	keepWindow = 30 * time.Second

	floodWindow = 8 * time.Second
	floodCount  = 4
	// messages longer than this are considered genuine conversation
	// when they are all distinct
	floodShortLen = 10

	repeatWindow = 25 * time.Second
	repeatLimit  = 2

	shortLen    = 3
	shortWindow = 15 * time.Second
	shortCount  = 4

	warningLimit = 3
	muteDuration = 60 * time.Second
)

type Verdict int

const (
	Ok Verdict = iota
	Warn
	Mute
)

func (v Verdict) String() string {
	switch v {
	case Ok:
		return "ok"
	case Warn:
		return "warn"
	case Mute:
		return "mute"
	default:
		return "unknown"
	}
}

type Result struct {
	Verdict    Verdict
	Notice     string
	Warnings   int
	MutedUntil time.Time
}

type entry struct {
	text string
	at   time.Time
}

// Guard tracks one client's recent sends. Not safe for concurrent use;
// wrap it in a Keeper when shared between goroutines.
type Guard struct {
	window     []entry
	warnings   int
	mutedUntil time.Time
}

func NewGuard() *Guard {
	return &Guard{}
}

// Check evaluates the flood rules against the candidate text without
// recording it. Call Record only after the message was actually sent.
func (g *Guard) Check(text string, now time.Time) Result {
	if now.Before(g.mutedUntil) {
		return Result{Verdict: Mute, MutedUntil: g.mutedUntil}
	}
	// a mute that just elapsed leaves a clean slate
	if !g.mutedUntil.IsZero() && !now.Before(g.mutedUntil) {
		g.mutedUntil = time.Time{}
		g.warnings = 0
	}

	g.prune(now)

	if g.isFlood(text, now) || g.isRepeat(text, now) || g.isShortBurst(text, now) {
		g.warnings++
		if g.warnings >= warningLimit {
			g.warnings = 0
			g.mutedUntil = now.Add(muteDuration)
			return Result{Verdict: Mute, MutedUntil: g.mutedUntil}
		}
		return Result{Verdict: Warn, Warnings: g.warnings, Notice: warnNotice(g.warnings)}
	}

	return Result{Verdict: Ok}
}

// Record appends a successfully sent message to the rolling buffer.
func (g *Guard) Record(text string, now time.Time) {
	g.prune(now)
	g.window = append(g.window, entry{text: text, at: now})
}

// MutedUntil returns the end of the active mute, or the zero time.
func (g *Guard) MutedUntil() time.Time {
	return g.mutedUntil
}

// isFlood matches >=4 messages within 8 seconds, unless all of them
// are distinct and longer than 10 characters (rapid but genuine
// conversation rather than copy-paste spam).
func (g *Guard) isFlood(text string, now time.Time) bool {
	recent := g.since(now.Add(-floodWindow))
	if len(recent)+1 < floodCount {
		return false
	}

	texts := make(map[string]struct{}, len(recent)+1)
	allLong := utf8.RuneCountInString(text) > floodShortLen
	texts[text] = struct{}{}
	for _, e := range recent {
		if utf8.RuneCountInString(e.text) <= floodShortLen {
			allLong = false
		}
		texts[e.text] = struct{}{}
	}
	allDistinct := len(texts) == len(recent)+1
	return !(allDistinct && allLong)
}

// isRepeat matches when the exact same text was already sent at least
// twice within the last 25 seconds.
func (g *Guard) isRepeat(text string, now time.Time) bool {
	var seen int
	for _, e := range g.since(now.Add(-repeatWindow)) {
		if e.text == text {
			seen++
		}
	}
	return seen >= repeatLimit
}

// isShortBurst matches a <=3 character text when, counting it, four or
// more such short messages occurred within the last 15 seconds.
func (g *Guard) isShortBurst(text string, now time.Time) bool {
	if utf8.RuneCountInString(text) > shortLen {
		return false
	}
	short := 1
	for _, e := range g.since(now.Add(-shortWindow)) {
		if utf8.RuneCountInString(e.text) <= shortLen {
			short++
		}
	}
	return short >= shortCount
}

func (g *Guard) since(cutoff time.Time) []entry {
	for i, e := range g.window {
		if !e.at.Before(cutoff) {
			return g.window[i:]
		}
	}
	return nil
}

func (g *Guard) prune(now time.Time) {
	cutoff := now.Add(-keepWindow)
	kept := g.window[:0]
	for _, e := range g.window {
		if !e.at.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	g.window = kept
}

func warnNotice(warnings int) string {
	switch warnings {
	case 1:
		return "Slow down, you are posting too fast."
	default:
		return "Last warning before a 60 second mute."
	}
}
