package stream

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"planet-chat/domain"
	"planet-chat/domain/event"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakePager serves pages from an in-memory ascending history the way
// the badger repository does: newest first, cursor per page.
type fakePager struct {
	history  []domain.Message // ascending
	pageSize int
	calls    int
}

func (p *fakePager) GetMessages(room domain.RoomID, cursor *string) ([]domain.Message, *string, error) {
	p.calls++
	end := len(p.history)
	if cursor != nil {
		for i, msg := range p.history {
			if msg.ID.String() == *cursor {
				end = i
				break
			}
		}
	}
	start := end - p.pageSize
	if start < 0 {
		start = 0
	}
	var page []domain.Message
	for i := end - 1; i >= start; i-- {
		page = append(page, p.history[i])
	}
	var next *string
	if len(page) > 0 {
		id := page[len(page)-1].ID.String()
		next = &id
	}
	return page, next, nil
}

func makeHistory(room domain.RoomID, n int) []domain.Message {
	out := make([]domain.Message, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.Message{
			ID:     uuid.New(),
			Room:   room,
			Body:   fmt.Sprintf("message %d", i),
			SentAt: t0.Add(time.Duration(i) * time.Second),
		})
	}
	return out
}

func requireAscendingNoDup(req *require.Assertions, messages []domain.Message) {
	seen := make(map[uuid.UUID]struct{})
	for i, msg := range messages {
		_, dup := seen[msg.ID]
		req.False(dup, "duplicate id at index %d", i)
		seen[msg.ID] = struct{}{}
		if i > 0 {
			req.False(msg.Before(messages[i-1]), "order violated at index %d", i)
		}
	}
}

func Test_Open_Loads_Newest_Page_Ascending(t *testing.T) {
	req := require.New(t)
	history := makeHistory("r-1", 10)
	pager := &fakePager{history: history, pageSize: 4}
	view := NewView(pager, 4, slog.Default())

	req.NoError(view.Open("r-1"))
	messages := view.Messages()
	req.Len(messages, 4)
	req.Equal("message 6", messages[0].Body)
	req.Equal("message 9", messages[3].Body)
	req.True(view.HasMore())
}

func Test_LoadOlder_Interleaved_With_Live(t *testing.T) {
	req := require.New(t)
	history := makeHistory("r-1", 9)
	pager := &fakePager{history: history, pageSize: 3}
	view := NewView(pager, 3, slog.Default())
	req.NoError(view.Open("r-1"))

	// live messages arrive between page loads
	live1 := domain.Message{ID: uuid.New(), Room: "r-1", Body: "live 1", SentAt: t0.Add(time.Minute)}
	view.Apply(event.MessagePosted{Message: live1})

	added, err := view.LoadOlder()
	req.NoError(err)
	req.Equal(3, added)

	view.Apply(event.MessagePosted{Message: domain.Message{
		ID: uuid.New(), Room: "r-1", Body: "live 2", SentAt: t0.Add(2 * time.Minute)}})

	added, err = view.LoadOlder()
	req.NoError(err)
	req.Equal(3, added)

	// page fullness is only a lower bound: the last full page still
	// reports more, and the next (empty) fetch corrects it
	req.True(view.HasMore())
	added, err = view.LoadOlder()
	req.NoError(err)
	req.Zero(added)
	req.False(view.HasMore())

	messages := view.Messages()
	req.Len(messages, 11)
	requireAscendingNoDup(req, messages)
	req.Equal("message 0", messages[0].Body)
	req.Equal("live 2", messages[10].Body)
}

func Test_Duplicate_Live_Event_Is_Dropped(t *testing.T) {
	req := require.New(t)
	pager := &fakePager{history: makeHistory("r-1", 2), pageSize: 5}
	view := NewView(pager, 5, slog.Default())
	req.NoError(view.Open("r-1"))

	msg := domain.Message{ID: uuid.New(), Room: "r-1", Body: "once", SentAt: t0.Add(time.Minute)}
	view.Apply(event.MessagePosted{Message: msg})
	view.Apply(event.MessagePosted{Message: msg})

	// the tail baseline is also replayed by some live feeds
	view.Apply(event.MessagePosted{Message: pager.history[1]})

	req.Len(view.Messages(), 3)
	requireAscendingNoDup(req, view.Messages())
}

func Test_Other_Room_Events_Never_Leak(t *testing.T) {
	req := require.New(t)
	pager := &fakePager{history: makeHistory("r-1", 1), pageSize: 5}
	view := NewView(pager, 5, slog.Default())
	req.NoError(view.Open("r-1"))

	view.Apply(event.MessagePosted{Message: domain.Message{
		ID: uuid.New(), Room: "r-2", Body: "stranger", SentAt: t0.Add(time.Minute)}})
	req.Len(view.Messages(), 1)
}

func Test_Skewed_Clock_Keeps_Order(t *testing.T) {
	req := require.New(t)
	pager := &fakePager{history: nil, pageSize: 5}
	view := NewView(pager, 5, slog.Default())
	req.NoError(view.Open("r-1"))

	late := domain.Message{ID: uuid.New(), Room: "r-1", Body: "late clock", SentAt: t0.Add(10 * time.Second)}
	early := domain.Message{ID: uuid.New(), Room: "r-1", Body: "early clock", SentAt: t0.Add(5 * time.Second)}
	view.Apply(event.MessagePosted{Message: late})
	view.Apply(event.MessagePosted{Message: early})

	messages := view.Messages()
	req.Equal("early clock", messages[0].Body)
	req.Equal("late clock", messages[1].Body)
}

func Test_Local_Message_Merged_Not_Persisted(t *testing.T) {
	req := require.New(t)
	pager := &fakePager{history: makeHistory("r-1", 2), pageSize: 5}
	view := NewView(pager, 5, slog.Default())
	req.NoError(view.Open("r-1"))

	view.AppendLocal(domain.Message{Room: "r-1", Body: "you entered the room", SentAt: t0.Add(time.Minute)})

	messages := view.Messages()
	req.Len(messages, 3)
	req.True(messages[2].Local)
}

func Test_Room_Switch_Resets_Everything(t *testing.T) {
	req := require.New(t)
	history1 := makeHistory("r-1", 6)
	history2 := makeHistory("r-2", 2)
	pager := &fakePager{history: history1, pageSize: 3}
	view := NewView(pager, 3, slog.Default())

	req.NoError(view.Open("r-1"))
	_, err := view.LoadOlder()
	req.NoError(err)
	req.Len(view.Messages(), 6)

	pager.history = history2
	req.NoError(view.Open("r-2"))
	req.Len(view.Messages(), 2)
	req.False(view.HasMore())
	req.Equal(domain.RoomID("r-2"), view.Room())
}

type failingPager struct {
	fakePager
	failFrom int
}

func (p *failingPager) GetMessages(room domain.RoomID, cursor *string) ([]domain.Message, *string, error) {
	if p.calls >= p.failFrom {
		p.calls++
		return nil, nil, fmt.Errorf("value log read: %w", errBroken)
	}
	return p.fakePager.GetMessages(room, cursor)
}

var errBroken = fmt.Errorf("disk gone")

func Test_LoadOlder_Error_Leaves_View_Intact(t *testing.T) {
	req := require.New(t)
	pager := &failingPager{
		fakePager: fakePager{history: makeHistory("r-1", 6), pageSize: 3},
		failFrom:  1,
	}
	view := NewView(pager, 3, slog.Default())
	req.NoError(view.Open("r-1"))

	before := view.Messages()
	_, err := view.LoadOlder()
	req.ErrorIs(err, errBroken)
	req.Equal(before, view.Messages())
	req.True(view.HasMore())
}

func Test_Empty_Room(t *testing.T) {
	req := require.New(t)
	pager := &fakePager{history: nil, pageSize: 5}
	view := NewView(pager, 5, slog.Default())

	req.NoError(view.Open("r-1"))
	req.Empty(view.Messages())
	req.False(view.HasMore())

	added, err := view.LoadOlder()
	req.NoError(err)
	req.Zero(added)
}
