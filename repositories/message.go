//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"planet-chat/domain"
)

type IMessageRepository interface {
	StoreMessage(message domain.Message) error
	GetMessages(room domain.RoomID, cursor *string) ([]domain.Message, *string, error)
	DeleteRoomMessages(room domain.RoomID) error
}

type MessageRepository struct {
	db       *badger.DB
	log      *slog.Logger
	pageSize int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, pageSize int) MessageRepository {
	return MessageRepository{db: db, log: log, pageSize: pageSize}
}

// diskMessage is the stored representation of a message.
type diskMessage struct {
	ID          string `json:"id"`
	Room        string `json:"room"`
	SenderID    string `json:"sender_id"`
	SenderName  string `json:"sender_name"`
	SenderLevel int    `json:"sender_level"`
	Body        string `json:"body"`
	SentAtNano  int64  `json:"sent_at"`
	Excluded    string `json:"excluded,omitempty"`
}

// StoreMessage persists a message in BadgerDB.
// The key is formatted as "msg:{room_id}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Prevent data loss by using the message ID as a collision
//     disconnector if two messages arrive at the same nanosecond.
//
// Local (synthetic) messages are refused: they carry no backing record.
func (m MessageRepository) StoreMessage(message domain.Message) error {
	if message.Local {
		return fmt.Errorf("local message %s has no backing record", message.ID)
	}
	key := messageKey(message.Room, message.SentAt, message.ID)
	bytes, err := json.Marshal(fromDomainMessage(message))
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
}

// GetMessages retrieves one page of messages for a room, newest first.
// Thanks to the padded timestamp in the key, messages are naturally
// sorted by time; the reverse iterator walks them newest to oldest.
// The returned cursor points strictly older than the last message of
// the page and can be fed back in to fetch the next, older page.
func (m MessageRepository) GetMessages(room domain.RoomID, cursor *string) ([]domain.Message, *string, error) {
	var byteMessages [][]byte
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("msg:%s:", room)
		prefix := []byte(prefixStr)
		prefixLen := len(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past the newest possible position for this room,
			// then walk backwards to collect the newest page.
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if len(byteMessages) == m.pageSize {
				break
			}
			item := it.Item()
			// Memorize cursor part of the actual key
			lastKey = string(item.Key()[prefixLen:])
			err := item.Value(func(value []byte) error {
				byteMessages = append(byteMessages, append([]byte(nil), value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	var messages []domain.Message
	for _, b := range byteMessages {
		var dm diskMessage
		if err = json.Unmarshal(b, &dm); err != nil {
			return nil, nil, err
		}
		message, err := toDomainMessage(dm)
		if err != nil {
			return nil, nil, err
		}
		messages = append(messages, message)
	}
	return messages, &lastKey, nil
}

// DeleteRoomMessages drops the full history of a destroyed room.
func (m MessageRepository) DeleteRoomMessages(room domain.RoomID) error {
	prefix := []byte(fmt.Sprintf("msg:%s:", room))
	var keys [][]byte
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

func messageKey(room domain.RoomID, at time.Time, id uuid.UUID) string {
	return fmt.Sprintf("msg:%s:%019d:%s", room, at.UnixNano(), id)
}

func fromDomainMessage(message domain.Message) diskMessage {
	return diskMessage{
		ID:          message.ID.String(),
		Room:        string(message.Room),
		SenderID:    message.SenderID,
		SenderName:  message.SenderName,
		SenderLevel: message.SenderLevel,
		Body:        message.Body,
		SentAtNano:  message.SentAt.UnixNano(),
		Excluded:    message.ExcludedUserID,
	}
}

func toDomainMessage(dm diskMessage) (domain.Message, error) {
	parsedID, err := uuid.Parse(dm.ID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:             parsedID,
		Room:           domain.RoomID(dm.Room),
		SenderID:       dm.SenderID,
		SenderName:     dm.SenderName,
		SenderLevel:    dm.SenderLevel,
		Body:           dm.Body,
		SentAt:         time.Unix(0, dm.SentAtNano).UTC(),
		ExcludedUserID: dm.Excluded,
	}, nil
}

// Ascending flips a newest-first page into ascending time order for
// the merge layer.
func Ascending(messages []domain.Message) []domain.Message {
	return lo.Reverse(append([]domain.Message(nil), messages...))
}
