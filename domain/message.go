// Package domain contains core concepts of the room-chat system.
// This file defines Message events and related rules.
// Messages are immutable and validated by the domain.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents an immutable chat event.
//
// SentAt is assigned by the sending client, not by the server. Ordering
// is therefore best effort across skewed clocks; the message ID acts as
// a tiebreak so that equal timestamps still yield a stable total order.
type Message struct {
	ID          uuid.UUID
	Room        RoomID
	SenderID    string
	SenderName  string
	SenderLevel int
	Body        string
	SentAt      time.Time

	// ExcludedUserID optionally names one identity that must not see
	// this message ("you joined" notices go to everyone but the joiner).
	ExcludedUserID string

	// Local marks a synthetic, client-only message that carries no
	// backing record and is never persisted.
	Local bool
}

// VisibleTo reports whether the message may be shown to the given user.
func (m Message) VisibleTo(userID string) bool {
	return m.ExcludedUserID == "" || m.ExcludedUserID != userID
}

// Before defines the canonical message order: ascending SentAt with the
// message ID as tiebreak.
func (m Message) Before(other Message) bool {
	if m.SentAt.Equal(other.SentAt) {
		return m.ID.String() < other.ID.String()
	}
	return m.SentAt.Before(other.SentAt)
}
