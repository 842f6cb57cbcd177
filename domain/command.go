package domain

import (
	"time"

	"github.com/google/uuid"
)

type Command interface {
	RoomID() RoomID
}

// PostMessageCommand asks the pipeline to publish one message into a
// room. SentAt travels with the command: the sending client owns it.
type PostMessageCommand struct {
	ID          uuid.UUID
	Room        RoomID
	SenderID    string
	SenderName  string
	SenderLevel int
	Body        string
	SentAt      time.Time

	// ExcludedUserID propagates the single-identity visibility
	// exclusion onto the resulting message.
	ExcludedUserID string
}

func (p PostMessageCommand) RoomID() RoomID {
	return p.Room
}
