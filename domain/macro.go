package domain

import "strings"

// Trigger is the closed set of events an automatic macro can be bound
// to. The binding slot↔trigger is fixed by construction: automatic
// slots are indexed by Trigger, only the text is user-editable.
type Trigger int

const (
	TriggerSelfEntered Trigger = iota
	TriggerPeerEntered
	TriggerPeerLeft
	TriggerGiftSent
	TriggerGiftReceived
	TriggerIdle

	TriggerCount
)

func (t Trigger) String() string {
	switch t {
	case TriggerSelfEntered:
		return "self-entered"
	case TriggerPeerEntered:
		return "peer-entered"
	case TriggerPeerLeft:
		return "peer-left"
	case TriggerGiftSent:
		return "gift-sent"
	case TriggerGiftReceived:
		return "gift-received"
	case TriggerIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// PlaceholderToken is replaced with the counterpart's display name at
// dispatch time, or stripped when no counterpart applies.
const PlaceholderToken = "{name}"

// ManualSlotCount is the number of user-authored templates available
// for manual insertion into the compose box.
const ManualSlotCount = 6

// MacroSet holds one identity's macro texts. Automatic is indexed by
// Trigger; an empty text disables the slot.
type MacroSet struct {
	Manual    [ManualSlotCount]string
	Automatic [TriggerCount]string
}

// Render substitutes the placeholder token in an automatic macro text.
// When counterpart is empty the token is removed entirely, including a
// stray double space it may leave behind.
func Render(text, counterpart string) string {
	if counterpart == "" {
		out := strings.ReplaceAll(text, PlaceholderToken, "")
		return strings.TrimSpace(strings.ReplaceAll(out, "  ", " "))
	}
	return strings.ReplaceAll(text, PlaceholderToken, counterpart)
}
