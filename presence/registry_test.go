package presence

import (
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"planet-chat/domain"
	"planet-chat/domain/event"
)

type fakeWriter struct {
	mu          sync.Mutex
	counts      map[domain.RoomID]int
	lastEntered map[domain.RoomID]time.Time
	failSet     bool
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{
		counts:      make(map[domain.RoomID]int),
		lastEntered: make(map[domain.RoomID]time.Time),
	}
}

func (w *fakeWriter) SetOccupantCount(id domain.RoomID, count int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failSet {
		return fmt.Errorf("store unreachable")
	}
	w.counts[id] = count
	return nil
}

func (w *fakeWriter) StampLastEntered(id domain.RoomID, at time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastEntered[id] = at
	return nil
}

func (w *fakeWriter) count(id domain.RoomID) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.counts[id]
}

func profileResolver(userID string) domain.Participant {
	return domain.Participant{UserID: userID, DisplayName: "name-" + userID, UniqueTag: "#" + userID}
}

func newTestRegistry(writer *fakeWriter, notify func(event.DomainEvent)) *Registry {
	return NewRegistry(slog.Default(), writer, profileResolver, 30*time.Second, notify)
}

func Test_Enter_Leave_Occupancy(t *testing.T) {
	req := require.New(t)
	writer := newFakeWriter()
	registry := newTestRegistry(writer, nil)
	room := domain.RoomID("r-1")

	registry.Enter(room, "u-1")
	registry.Enter(room, "u-2")
	req.Equal(2, registry.Count(room))
	req.Equal(2, writer.count(room))

	// re-entering refreshes the lease, it does not double count
	registry.Enter(room, "u-1")
	req.Equal(2, registry.Count(room))

	registry.Leave(room, "u-1")
	req.Equal(1, registry.Count(room))
	req.Equal(1, writer.count(room))

	registry.Leave(room, "u-2")
	req.Equal(0, registry.Count(room))
	req.Equal(0, writer.count(room))
}

func Test_Leave_Stamps_LastEntered(t *testing.T) {
	req := require.New(t)
	writer := newFakeWriter()
	registry := newTestRegistry(writer, nil)
	room := domain.RoomID("r-1")

	registry.Enter(room, "u-1")
	registry.Leave(room, "u-1")
	req.False(writer.lastEntered[room].IsZero())

	// leaving a room never entered is a no-op
	before := writer.lastEntered[room]
	registry.Leave(room, "u-ghost")
	req.Equal(before, writer.lastEntered[room])
}

func Test_Occupancy_Subscription(t *testing.T) {
	req := require.New(t)
	writer := newFakeWriter()
	registry := newTestRegistry(writer, nil)
	room := domain.RoomID("r-1")

	var observed []int
	unsubscribe := registry.SubscribeOccupancy(room, func(count int) {
		observed = append(observed, count)
	})

	registry.Enter(room, "u-1")
	registry.Enter(room, "u-2")
	registry.Leave(room, "u-1")
	req.Equal([]int{1, 2, 1}, observed)

	unsubscribe()
	registry.Leave(room, "u-2")
	req.Equal([]int{1, 2, 1}, observed, "no updates after unsubscribe")
}

func Test_Sweep_Expires_Stale_Leases(t *testing.T) {
	req := require.New(t)
	writer := newFakeWriter()

	var left []string
	registry := newTestRegistry(writer, func(e event.DomainEvent) {
		if evt, ok := e.(event.ParticipantLeft); ok {
			left = append(left, evt.User.UserID)
		}
	})
	room := domain.RoomID("r-1")

	registry.Enter(room, "u-1")
	registry.Enter(room, "u-2")
	req.True(registry.Renew(room, "u-1"))

	// only u-2 misses its renewals
	registry.Sweep(time.Now().Add(45 * time.Second))
	req.Equal([]string{"u-2"}, left)
	req.Equal(1, registry.Count(room))

	// an expired lease cannot be renewed, the client must re-enter
	req.False(registry.Renew(room, "u-2"))
}

func Test_Failed_Propagation_Self_Corrects(t *testing.T) {
	req := require.New(t)
	writer := newFakeWriter()
	registry := newTestRegistry(writer, nil)
	room := domain.RoomID("r-1")

	writer.failSet = true
	registry.Enter(room, "u-1")
	req.Equal(0, writer.count(room), "failed write leaves the stale value")
	req.Equal(1, registry.Count(room), "live count is still authoritative")

	writer.failSet = false
	registry.Enter(room, "u-2")
	req.Equal(2, writer.count(room), "next change pushes the recomputed count")
}

func Test_Participants_Derived_View(t *testing.T) {
	req := require.New(t)
	writer := newFakeWriter()
	registry := newTestRegistry(writer, nil)
	room := domain.RoomID("r-1")

	registry.Enter(room, "u-b")
	registry.Enter(room, "u-a")

	participants := registry.Participants(room)
	req.Len(participants, 2)
	req.Equal("u-a", participants[0].UserID)
	req.Equal("name-u-a", participants[0].DisplayName)
	req.Equal("u-b", participants[1].UserID)
}

func Test_Quiesced_Count_Matches_Net_Entries(t *testing.T) {
	req := require.New(t)
	writer := newFakeWriter()
	registry := newTestRegistry(writer, nil)
	room := domain.RoomID("r-1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			user := fmt.Sprintf("u-%d", n)
			registry.Enter(room, user)
			if n%2 == 0 {
				registry.Leave(room, user)
			}
		}(i)
	}
	wg.Wait()

	// after quiescing, the count equals entries without a matching leave
	req.Equal(10, registry.Count(room))
}
