// Package domain contains core concepts of the room-chat system.
// This file defines the Room entity and its destruction rules.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"time"
)

type RoomID string

// Room is a persistent chat channel owned by a single user.
// DestroyAt, once set, is never moved earlier; an instant destroy
// deletes the record outright instead of rescheduling it.
type Room struct {
	ID            RoomID
	Title         string
	Icon          string
	OwnerID       string
	CreatedAt     time.Time
	LastEnteredAt time.Time
	OccupantCount int
	DestroyAt     *time.Time
}

// PendingDestruction reports whether the room has a scheduled, not yet
// elapsed destruction time.
func (r Room) PendingDestruction(now time.Time) bool {
	return r.DestroyAt != nil && now.Before(*r.DestroyAt)
}

// DestructionElapsed reports whether the scheduled destruction time has
// passed and the room is eligible for removal.
func (r Room) DestructionElapsed(now time.Time) bool {
	return r.DestroyAt != nil && !now.Before(*r.DestroyAt)
}
