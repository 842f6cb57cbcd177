package workers

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"planet-chat/contract"
	"planet-chat/domain"
	"planet-chat/domain/event"
)

// Compile-time check that the worker satisfies the contract; keeps
// wiring mistakes out of the orchestrator.
var _ contract.Worker = (*PoolUnitWorker)(nil)

// PoolUnitWorker drains the global command channel and turns post
// commands into raw message events. Several instances run in
// parallel; ordering inside a room is restored downstream by the
// message timestamps.
type PoolUnitWorker struct {
	commands chan domain.Command
	events   chan event.DomainEvent
	log      *slog.Logger
}

func NewPoolUnitWorker(
	commands chan domain.Command,
	events chan event.DomainEvent,
	log *slog.Logger) *PoolUnitWorker {
	return &PoolUnitWorker{
		commands: commands,
		events:   events,
		log:      log,
	}
}

func (w *PoolUnitWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping worker")
			return ctx.Err()
		case cmd, ok := <-w.commands:
			if !ok {
				w.log.Debug("Channel is closed")
				return nil
			}
			postCmd, ok := cmd.(domain.PostMessageCommand)
			if !ok {
				w.log.Debug("Unknown command type", "room", string(cmd.RoomID()))
				continue
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case w.events <- toEvent(postCmd):
			}
		}
	}
}

func toEvent(c domain.PostMessageCommand) event.MessagePosted {
	id := c.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return event.MessagePosted{
		Message: domain.Message{
			ID:             id,
			Room:           c.Room,
			SenderID:       c.SenderID,
			SenderName:     c.SenderName,
			SenderLevel:    c.SenderLevel,
			Body:           c.Body,
			SentAt:         c.SentAt,
			ExcludedUserID: c.ExcludedUserID,
		},
	}
}
