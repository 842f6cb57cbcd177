package repositories

import (
	"context"
	"log/slog"

	"planet-chat/contract"
	"planet-chat/domain/event"
)

var _ contract.EventSink = (*DiskSink)(nil)

// DiskSink persists posted messages as they travel through the
// fanout. Synthetic local messages never reach it, StoreMessage
// refuses them anyway.
type DiskSink struct {
	messages IMessageRepository
	log      *slog.Logger
}

func NewDiskSink(messages IMessageRepository, log *slog.Logger) *DiskSink {
	return &DiskSink{messages: messages, log: log}
}

func (s *DiskSink) Consume(_ context.Context, e event.DomainEvent) error {
	posted, ok := e.(event.MessagePosted)
	if !ok {
		return nil
	}
	if posted.Message.Local {
		return nil
	}
	if err := s.messages.StoreMessage(posted.Message); err != nil {
		s.log.Error("Storing message failed",
			slog.String("room", string(posted.Message.Room)),
			slog.String("error", err.Error()))
		return err
	}
	return nil
}
