// Package search maintains a full-text index of room messages and
// answers per-room queries against it.
package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"

	"planet-chat/contract"
	"planet-chat/domain"
	"planet-chat/domain/event"
)

const DefaultLimit = 20

// Hit is one indexed message matching a query.
type Hit struct {
	MessageID  uuid.UUID
	Room       domain.RoomID
	SenderName string
	Body       string
	SentAt     time.Time
}

// Index consumes MessagePosted events and makes message bodies
// searchable. It is registered as a permanent sink so every stored
// message reaches the index exactly once.
type Index struct {
	writer *bluge.Writer
	log    *slog.Logger
}

var _ contract.EventSink = (*Index)(nil)

func NewIndex(writer *bluge.Writer, log *slog.Logger) *Index {
	return &Index{writer: writer, log: log}
}

func (i *Index) Consume(_ context.Context, e event.DomainEvent) error {
	posted, ok := e.(event.MessagePosted)
	if !ok {
		return nil
	}
	msg := posted.Message
	if msg.Local {
		return nil
	}

	doc := bluge.NewDocument(msg.ID.String()).
		AddField(bluge.NewKeywordField("room", string(msg.Room)).StoreValue()).
		AddField(bluge.NewKeywordField("sender", msg.SenderName).StoreValue()).
		AddField(bluge.NewTextField("body", msg.Body).StoreValue()).
		AddField(bluge.NewKeywordField("sent_at", msg.SentAt.UTC().Format(time.RFC3339Nano)).StoreValue())

	if err := i.writer.Update(doc.ID(), doc); err != nil {
		i.log.Error("indexing message failed",
			slog.String("room", string(msg.Room)),
			slog.String("message_id", msg.ID.String()),
			slog.String("error", err.Error()))
		return err
	}
	return nil
}

// Search runs a match query over message bodies, restricted to one
// room, best matches first. limit <= 0 falls back to DefaultLimit.
func (i *Index) Search(ctx context.Context, room domain.RoomID, terms string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = reader.Close()
	}()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(string(room)).SetField("room")).
		AddMust(bluge.NewMatchQuery(terms).SetField("body"))

	iterator, err := reader.Search(ctx, bluge.NewTopNSearch(limit, query))
	if err != nil {
		return nil, err
	}

	var hits []Hit
	for {
		match, err := iterator.Next()
		if err != nil {
			return nil, err
		}
		if match == nil {
			break
		}

		var hit Hit
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				if id, parseErr := uuid.Parse(string(value)); parseErr == nil {
					hit.MessageID = id
				}
			case "room":
				hit.Room = domain.RoomID(value)
			case "sender":
				hit.SenderName = string(value)
			case "body":
				hit.Body = string(value)
			case "sent_at":
				if at, parseErr := time.Parse(time.RFC3339Nano, string(value)); parseErr == nil {
					hit.SentAt = at
				}
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
