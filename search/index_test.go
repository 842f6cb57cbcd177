package search

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"planet-chat/domain"
	"planet-chat/domain/event"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = writer.Close()
	})
	return NewIndex(writer, slog.Default())
}

func postMessage(t *testing.T, index *Index, room domain.RoomID, sender, body string) uuid.UUID {
	t.Helper()
	msg := domain.Message{
		ID:         uuid.New(),
		Room:       room,
		SenderID:   "u-" + sender,
		SenderName: sender,
		Body:       body,
		SentAt:     time.Now().UTC(),
	}
	require.NoError(t, index.Consume(context.Background(), event.MessagePosted{Message: msg}))
	return msg.ID
}

func Test_Search_Finds_Posted_Message(t *testing.T) {
	req := require.New(t)
	index := openTestIndex(t)

	wanted := postMessage(t, index, "r-1", "ayumi", "anyone up for a badger hunt tonight")
	postMessage(t, index, "r-1", "ken", "completely unrelated chatter")

	hits, err := index.Search(context.Background(), "r-1", "badger", 0)
	req.NoError(err)
	req.Len(hits, 1)
	req.Equal(wanted, hits[0].MessageID)
	req.Equal("ayumi", hits[0].SenderName)
	req.Contains(hits[0].Body, "badger")
	req.False(hits[0].SentAt.IsZero())
}

func Test_Search_Is_Case_Insensitive(t *testing.T) {
	req := require.New(t)
	index := openTestIndex(t)
	postMessage(t, index, "r-1", "ayumi", "Kubernetes Deployment Strategy")

	for _, query := range []string{"kubernetes", "KUBERNETES", "KuBeRnEtEs"} {
		hits, err := index.Search(context.Background(), "r-1", query, 0)
		req.NoError(err, "query: %s", query)
		req.Len(hits, 1, "query: %s", query)
	}
}

func Test_Search_Respects_Room_Isolation(t *testing.T) {
	req := require.New(t)
	index := openTestIndex(t)
	postMessage(t, index, "r-1", "ayumi", "secret project alpha")
	postMessage(t, index, "r-2", "ken", "secret project beta")

	hits, err := index.Search(context.Background(), "r-1", "secret", 0)
	req.NoError(err)
	req.Len(hits, 1)
	req.Equal(domain.RoomID("r-1"), hits[0].Room)
	req.Contains(hits[0].Body, "alpha")
}

func Test_Search_Respects_Limit(t *testing.T) {
	req := require.New(t)
	index := openTestIndex(t)
	for i := 0; i < 5; i++ {
		postMessage(t, index, "r-1", "ayumi", "pagination test content")
	}

	hits, err := index.Search(context.Background(), "r-1", "pagination", 3)
	req.NoError(err)
	req.Len(hits, 3)
}

func Test_Search_Empty_Room_Returns_Nothing(t *testing.T) {
	req := require.New(t)
	index := openTestIndex(t)

	hits, err := index.Search(context.Background(), "r-empty", "anything", 0)
	req.NoError(err)
	req.Empty(hits)
}

func Test_Local_Messages_Are_Not_Indexed(t *testing.T) {
	req := require.New(t)
	index := openTestIndex(t)

	local := domain.Message{
		ID:     uuid.New(),
		Room:   "r-1",
		Body:   "synthetic macro text never indexed",
		SentAt: time.Now().UTC(),
		Local:  true,
	}
	req.NoError(index.Consume(context.Background(), event.MessagePosted{Message: local}))

	hits, err := index.Search(context.Background(), "r-1", "synthetic", 0)
	req.NoError(err)
	req.Empty(hits)
}

func Test_Other_Events_Are_Ignored(t *testing.T) {
	req := require.New(t)
	index := openTestIndex(t)
	req.NoError(index.Consume(context.Background(), event.OccupancyChanged{Room: "r-1", Count: 3}))
}
