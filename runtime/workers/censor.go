package workers

import (
	"context"
	"log/slog"

	"github.com/abadojack/whatlanggo"

	"planet-chat/contract"
	"planet-chat/domain/event"
	"planet-chat/moderation"
)

var _ contract.Worker = (*CensorWorker)(nil)

// CensorWorker sits between the raw pipeline and the fanout. Message
// bodies are cleaned before anything durable or visible happens with
// them; every other event passes through untouched.
type CensorWorker struct {
	censor *moderation.Censor
	raw    chan event.DomainEvent
	events chan event.DomainEvent
	log    *slog.Logger
}

func NewCensorWorker(censor *moderation.Censor,
	raw, events chan event.DomainEvent, log *slog.Logger) *CensorWorker {
	return &CensorWorker{censor: censor, raw: raw, events: events, log: log}
}

func (w *CensorWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping worker")
			return ctx.Err()
		case e, ok := <-w.raw:
			if !ok {
				w.log.Debug("Channel is closed")
				return nil
			}
			if posted, isMessage := e.(event.MessagePosted); isMessage {
				e = w.sanitize(posted)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case w.events <- e:
			}
		}
	}
}

func (w *CensorWorker) sanitize(posted event.MessagePosted) event.MessagePosted {
	cleaned, hits := w.censor.Apply(posted.Message.Body)
	if hits > 0 {
		info := whatlanggo.Detect(posted.Message.Body)
		w.log.Warn("Censored message body",
			slog.String("room", string(posted.Message.Room)),
			slog.String("sender", posted.Message.SenderID),
			slog.Int("hits", hits),
			slog.String("lang", info.Lang.Iso6391()))
		posted.Message.Body = cleaned
	}
	return posted
}
