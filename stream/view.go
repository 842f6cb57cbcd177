// Package stream assembles the visible message list of one room from
// two sources: on-demand historical pages and a live tail feed. The
// merged view is gap free and duplicate free: the historical cursor
// always points strictly older than the oldest message the live tail
// has seen, and every message id is admitted only once.
package stream

import (
	"log/slog"

	"github.com/google/uuid"

	"planet-chat/domain"
	"planet-chat/domain/event"
	"planet-chat/repositories"
)

// Pager is the slice of the message repository the view pulls
// historical pages through.
type Pager interface {
	GetMessages(room domain.RoomID, cursor *string) ([]domain.Message, *string, error)
}

// View is the per-session merge of one room's history and live tail.
// Not safe for concurrent use: it belongs to a single session
// goroutine, like everything else that is client local.
type View struct {
	log      *slog.Logger
	pager    Pager
	pageSize int

	room    domain.RoomID
	older   []domain.Message
	tail    []domain.Message
	seen    map[uuid.UUID]struct{}
	cursor  *string
	hasMore bool
	opened  bool
}

func NewView(pager Pager, pageSize int, log *slog.Logger) *View {
	return &View{pager: pager, pageSize: pageSize, log: log}
}

// Open starts the view on a room: the newest page becomes the live
// tail baseline and the returned cursor marks where older history
// begins. A view that was open on another room is reset first: on a
// room switch all historical pages are discarded and the tail is
// rebuilt from scratch.
func (v *View) Open(room domain.RoomID) error {
	v.Close()

	page, cursor, err := v.pager.GetMessages(room, nil)
	if err != nil {
		return err
	}

	v.room = room
	v.seen = make(map[uuid.UUID]struct{}, len(page))
	v.tail = repositories.Ascending(page)
	for _, msg := range v.tail {
		v.seen[msg.ID] = struct{}{}
	}
	v.cursor = cursor
	v.hasMore = len(page) == v.pageSize
	v.opened = true
	return nil
}

// LoadOlder prepends one page of older history and returns how many
// messages it added. It never touches the live tail, so loading
// history can never reorder or duplicate what is already visible.
func (v *View) LoadOlder() (int, error) {
	if !v.opened || !v.hasMore {
		return 0, nil
	}

	page, cursor, err := v.pager.GetMessages(v.room, v.cursor)
	if err != nil {
		return 0, err
	}

	added := 0
	ascending := repositories.Ascending(page)
	fresh := make([]domain.Message, 0, len(ascending))
	for _, msg := range ascending {
		if _, dup := v.seen[msg.ID]; dup {
			continue
		}
		v.seen[msg.ID] = struct{}{}
		fresh = append(fresh, msg)
		added++
	}
	v.older = append(fresh, v.older...)
	v.cursor = cursor
	// page fullness is a lower bound for "more history exists": the
	// heuristic only gates the load-more affordance, never correctness
	v.hasMore = len(page) == v.pageSize
	return added, nil
}

// Apply merges a live event into the tail. Events for other rooms and
// message ids already seen are dropped.
func (v *View) Apply(e event.DomainEvent) {
	posted, ok := e.(event.MessagePosted)
	if !ok || !v.opened || posted.RoomID() != v.room {
		return
	}
	v.admit(posted.Message)
}

// AppendLocal merges a synthetic client-only message, e.g. the "you
// entered" notice. It carries no backing record and is never persisted.
func (v *View) AppendLocal(msg domain.Message) {
	if !v.opened {
		return
	}
	msg.Local = true
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	v.admit(msg)
}

// admit inserts in order from the tail end. Client-assigned timestamps
// almost always arrive ascending; the walk back covers the skewed
// clock case without re-sorting the whole tail.
func (v *View) admit(msg domain.Message) {
	if _, dup := v.seen[msg.ID]; dup {
		return
	}
	v.seen[msg.ID] = struct{}{}

	i := len(v.tail)
	for i > 0 && msg.Before(v.tail[i-1]) {
		i--
	}
	v.tail = append(v.tail, domain.Message{})
	copy(v.tail[i+1:], v.tail[i:])
	v.tail[i] = msg
}

// Messages returns the merged ascending view:
// historical pages ++ live tail.
func (v *View) Messages() []domain.Message {
	out := make([]domain.Message, 0, len(v.older)+len(v.tail))
	out = append(out, v.older...)
	return append(out, v.tail...)
}

// HasMore reports whether another LoadOlder call is worth offering.
func (v *View) HasMore() bool {
	return v.hasMore
}

func (v *View) Room() domain.RoomID {
	return v.room
}

// Close drops all state. The next Open starts from scratch.
func (v *View) Close() {
	v.room = ""
	v.older = nil
	v.tail = nil
	v.seen = nil
	v.cursor = nil
	v.hasMore = false
	v.opened = false
}
