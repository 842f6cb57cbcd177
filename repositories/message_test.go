package repositories

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"planet-chat/domain"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testMessage(room domain.RoomID, body string, at time.Time) domain.Message {
	return domain.Message{
		ID:       uuid.New(),
		Room:     room,
		SenderID: "u-alice",
		Body:     body,
		SentAt:   at,
	}
}

func Test_Store_And_Fetch_Newest_Page(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	repository := NewMessageRepository(db, slog.Default(), 10)
	room := domain.RoomID("r-1")
	at := time.Now().UTC()

	var stored []domain.Message
	for i := 0; i < 3; i++ {
		msg := testMessage(room, fmt.Sprintf("message %d", i), at.Add(time.Duration(i)*time.Minute))
		req.NoError(repository.StoreMessage(msg))
		stored = append(stored, msg)
	}

	page, cursor, err := repository.GetMessages(room, nil)
	req.NoError(err)
	req.Len(page, 3)
	req.NotNil(cursor)

	// newest first
	req.Equal(stored[2].ID, page[0].ID)
	req.Equal(stored[0].ID, page[2].ID)

	// Ascending flips without mutating callers expectations
	asc := Ascending(page)
	req.Equal(stored[0].ID, asc[0].ID)
	req.Equal(stored[2].ID, asc[2].ID)
}

func Test_Cursor_Walks_Older_Pages_Without_Overlap(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	repository := NewMessageRepository(db, slog.Default(), 2)
	room := domain.RoomID("r-1")
	at := time.Now().UTC()

	for i := 0; i < 5; i++ {
		req.NoError(repository.StoreMessage(
			testMessage(room, fmt.Sprintf("message %d", i), at.Add(time.Duration(i)*time.Second))))
	}

	seen := make(map[uuid.UUID]struct{})
	var cursor *string
	var total int
	for {
		page, next, err := repository.GetMessages(room, cursor)
		req.NoError(err)
		if len(page) == 0 {
			break
		}
		for _, msg := range page {
			_, dup := seen[msg.ID]
			req.False(dup, "message %s delivered twice", msg.ID)
			seen[msg.ID] = struct{}{}
		}
		total += len(page)
		if len(page) < 2 {
			break
		}
		cursor = next
	}
	req.Equal(5, total)
}

func Test_Rooms_Are_Isolated(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	repository := NewMessageRepository(db, slog.Default(), 10)
	at := time.Now().UTC()

	req.NoError(repository.StoreMessage(testMessage("r-1", "in room one", at)))
	req.NoError(repository.StoreMessage(testMessage("r-2", "in room two", at)))

	page, _, err := repository.GetMessages("r-1", nil)
	req.NoError(err)
	req.Len(page, 1)
	req.Equal("in room one", page[0].Body)
}

func Test_Local_Message_Is_Refused(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	repository := NewMessageRepository(db, slog.Default(), 10)
	msg := testMessage("r-1", "you entered the room", time.Now().UTC())
	msg.Local = true
	req.Error(repository.StoreMessage(msg))
}

func Test_Delete_Room_Messages(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	repository := NewMessageRepository(db, slog.Default(), 10)
	at := time.Now().UTC()
	for i := 0; i < 4; i++ {
		req.NoError(repository.StoreMessage(
			testMessage("r-1", "gone soon", at.Add(time.Duration(i)*time.Second))))
	}
	req.NoError(repository.DeleteRoomMessages("r-1"))

	page, _, err := repository.GetMessages("r-1", nil)
	req.NoError(err)
	req.Empty(page)
}
