package event

import (
	"time"

	"planet-chat/domain"
)

type DomainEvent interface {
	RoomID() domain.RoomID
}

// MessagePosted is emitted once per stored message, after the censor
// pass. Sessions merge it into their live tail; permanent sinks index
// and archive it.
type MessagePosted struct {
	Message domain.Message
}

func (m MessagePosted) RoomID() domain.RoomID {
	return m.Message.Room
}

// OccupancyChanged carries the recomputed live occupant count.
type OccupancyChanged struct {
	Room  domain.RoomID
	Count int
}

func (o OccupancyChanged) RoomID() domain.RoomID {
	return o.Room
}

// ParticipantEntered is emitted when a presence lease appears.
type ParticipantEntered struct {
	Room domain.RoomID
	User domain.Participant
	At   time.Time
}

func (p ParticipantEntered) RoomID() domain.RoomID {
	return p.Room
}

// ParticipantLeft is emitted on graceful leave or lease expiry.
type ParticipantLeft struct {
	Room domain.RoomID
	User domain.Participant
	At   time.Time
}

func (p ParticipantLeft) RoomID() domain.RoomID {
	return p.Room
}

// GiftOffered is emitted when one occupant sends a gift to another.
// Both ends react with their gift macros.
type GiftOffered struct {
	Room domain.RoomID
	From domain.Participant
	To   domain.Participant
	At   time.Time
}

func (g GiftOffered) RoomID() domain.RoomID {
	return g.Room
}

// DestructionScheduled is emitted when an owner or moderator arms the
// 24 h destruction countdown.
type DestructionScheduled struct {
	Room      domain.RoomID
	DestroyAt time.Time
}

func (d DestructionScheduled) RoomID() domain.RoomID {
	return d.Room
}

// RoomDestroyed is emitted after the room record is removed, either by
// an instant destroy or by a garbage-collection sweep.
type RoomDestroyed struct {
	Room domain.RoomID
}

func (r RoomDestroyed) RoomID() domain.RoomID {
	return r.Room
}
