// Package macro dispatches user-authored message templates: manual
// ones inserted into the compose box, automatic ones fired on a closed
// set of room events. The slot↔trigger binding is fixed by
// construction; only the texts are editable.
package macro

import (
	"log/slog"
	"sync"
	"time"

	"planet-chat/domain"
)

const (
	// window after the local entry during which the baseline snapshot
	// of pre-existing occupants must not be misread as "everyone just
	// entered"
	entryGrace = 3 * time.Second

	// DefaultIdleDelay is the uninterrupted silence after which the
	// idle macro fires, once per arming.
	DefaultIdleDelay = 3 * time.Minute
)

// MuteGate is the one slice of the spam guard automatic dispatch needs:
// an active mute suppresses automatic sends exactly like typed ones.
type MuteGate interface {
	MutedUntil() time.Time
}

// Sender publishes a rendered macro as a normal outgoing message.
type Sender func(body string)

// Engine is session local: one instance per connected client, bound to
// the room the client currently occupies.
type Engine struct {
	mu   sync.Mutex
	log  *slog.Logger
	set  domain.MacroSet
	gate MuteGate
	send Sender

	selfID    string
	enteredAt time.Time
	known     map[string]domain.Participant

	idleDelay time.Duration
	idleTimer *time.Timer

	now func() time.Time
}

func NewEngine(set domain.MacroSet, selfID string, gate MuteGate, send Sender,
	idleDelay time.Duration, log *slog.Logger) *Engine {
	return &Engine{
		log:       log,
		set:       set,
		gate:      gate,
		send:      send,
		selfID:    selfID,
		idleDelay: idleDelay,
		now:       time.Now,
	}
}

// Start takes the baseline snapshot of occupants already present,
// fires the self-entered macro, and arms the idle timer. The baseline
// identities will never be reported as entrants.
func (e *Engine) Start(participants []domain.Participant) {
	e.mu.Lock()
	e.enteredAt = e.now()
	e.known = make(map[string]domain.Participant, len(participants))
	for _, p := range participants {
		e.known[p.UserID] = p
	}
	e.mu.Unlock()

	e.Dispatch(domain.TriggerSelfEntered, "")
	e.armIdle()
}

// Observe diffs the current participant set against the previous one
// and fires entry/exit macros per transitioned identity. The local
// client's own presence never qualifies, and entries observed inside
// the grace window after Start are absorbed silently: they are the
// baseline arriving, not people walking in.
func (e *Engine) Observe(current []domain.Participant) {
	e.mu.Lock()
	if e.known == nil {
		e.mu.Unlock()
		return
	}
	now := e.now()
	inGrace := now.Sub(e.enteredAt) < entryGrace

	seen := make(map[string]struct{}, len(current))
	var entered, left []domain.Participant
	for _, p := range current {
		seen[p.UserID] = struct{}{}
		if p.UserID == e.selfID {
			continue
		}
		if _, ok := e.known[p.UserID]; !ok {
			e.known[p.UserID] = p
			if !inGrace {
				entered = append(entered, p)
			}
		}
	}
	for id, p := range e.known {
		if _, ok := seen[id]; !ok {
			delete(e.known, id)
			if id != e.selfID {
				left = append(left, p)
			}
		}
	}
	e.mu.Unlock()

	for _, p := range entered {
		e.Dispatch(domain.TriggerPeerEntered, p.DisplayName)
	}
	for _, p := range left {
		e.Dispatch(domain.TriggerPeerLeft, p.DisplayName)
	}
}

// GiftSent fires the gift-sent macro towards the receiving identity.
func (e *Engine) GiftSent(counterpartName string) {
	e.Dispatch(domain.TriggerGiftSent, counterpartName)
}

// GiftReceived fires the gift-received macro towards the sender.
func (e *Engine) GiftReceived(counterpartName string) {
	e.Dispatch(domain.TriggerGiftReceived, counterpartName)
}

// MessageSent rearms the idle timer: any message the local client
// sends restarts the silence countdown.
func (e *Engine) MessageSent() {
	e.armIdle()
}

// Dispatch resolves the macro bound to the trigger, substitutes the
// placeholder token, and sends it as a normal outgoing message. An
// empty slot does nothing; an active mute suppresses the send.
func (e *Engine) Dispatch(trigger domain.Trigger, counterpartName string) {
	e.mu.Lock()
	text := e.set.Automatic[trigger]
	gate := e.gate
	send := e.send
	now := e.now()
	e.mu.Unlock()

	if text == "" {
		return
	}
	if gate != nil && now.Before(gate.MutedUntil()) {
		e.log.Debug("Automatic macro suppressed by active mute", "trigger", trigger.String())
		return
	}
	send(domain.Render(text, counterpartName))
}

// ApplyManual returns the manual slot text for verbatim insertion into
// the compose box, or "" for an empty or out-of-range slot.
func (e *Engine) ApplyManual(slotIndex int) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if slotIndex < 0 || slotIndex >= domain.ManualSlotCount {
		return ""
	}
	return e.set.Manual[slotIndex]
}

// UpdateSet swaps in freshly edited texts. Bindings are untouched:
// they are positional and immutable.
func (e *Engine) UpdateSet(set domain.MacroSet) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.set = set
}

// Stop disarms the idle timer; called on leave and on disconnect.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.idleTimer != nil {
		e.idleTimer.Stop()
		e.idleTimer = nil
	}
}

func (e *Engine) armIdle() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.idleDelay <= 0 {
		return
	}
	if e.idleTimer != nil {
		e.idleTimer.Stop()
	}
	e.idleTimer = time.AfterFunc(e.idleDelay, func() {
		e.Dispatch(domain.TriggerIdle, "")
	})
}
