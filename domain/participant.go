// Package domain contains core concepts of the room-chat system.
// This file defines Participant entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

// Participant is the session-local view of one present identity,
// derived from the live presence set joined against profile data.
// It is never persisted.
type Participant struct {
	UserID      string
	DisplayName string
	UniqueTag   string
}
