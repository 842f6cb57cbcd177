package workers

import (
	"context"
	"log/slog"
	"time"

	"planet-chat/contract"
	"planet-chat/domain/event"
)

var _ contract.Worker = (*EventFanout)(nil)

// EventFanout broadcasts domain events to in-process consumers: the
// live connections of the event's room plus the permanent sinks
// (storage, search index).
//
// Delivery is best effort with no ordering or retry guarantees; a
// sink that blocks longer than sinkTimeout is abandoned. EventFanout
// is not a message broker.
type EventFanout struct {
	log         *slog.Logger
	registry    contract.IRegistry
	events      chan event.DomainEvent
	permanent   []contract.EventSink
	sinkTimeout time.Duration
}

func NewEventFanout(log *slog.Logger, registry contract.IRegistry,
	events chan event.DomainEvent, permanent []contract.EventSink,
	sinkTimeout time.Duration) *EventFanout {
	return &EventFanout{
		log:         log,
		registry:    registry,
		events:      events,
		permanent:   permanent,
		sinkTimeout: sinkTimeout,
	}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt := <-w.events:
			w.Fanout(ctx, evt)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping fanout")
			return nil
		}
	}
}

// Fanout delivers one event to every target sink. Each delivery runs
// in its own goroutine under a timeout so one slow connection cannot
// stall the room.
func (w *EventFanout) Fanout(ctx context.Context, evt event.DomainEvent) {
	targets := w.registry.GetSinksForRoom(evt.RoomID())
	targets = append(targets, w.permanent...)

	for _, sink := range targets {
		go func(sink contract.EventSink) {
			sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
			defer cancel()

			if err := sink.Consume(sinkCtx, evt); err != nil {
				w.log.Warn("Sink refused event",
					slog.String("room", string(evt.RoomID())),
					slog.String("error", err.Error()))
			}
		}(sink)
	}
}
