package workers

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"planet-chat/contract"
	"planet-chat/domain"
	"planet-chat/domain/event"
)

type countingSink struct {
	mu    sync.Mutex
	seen  []event.DomainEvent
	block bool
	done  chan struct{}
}

func newCountingSink() *countingSink {
	return &countingSink{done: make(chan struct{}, 16)}
}

func (s *countingSink) Consume(ctx context.Context, e event.DomainEvent) error {
	if s.block {
		<-ctx.Done()
		s.done <- struct{}{}
		return ctx.Err()
	}
	s.mu.Lock()
	s.seen = append(s.seen, e)
	s.mu.Unlock()
	s.done <- struct{}{}
	return nil
}

func (s *countingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

type staticRegistry struct {
	sinks []contract.EventSink
}

func (r staticRegistry) GetSinksForRoom(domain.RoomID) []contract.EventSink { return r.sinks }
func (r staticRegistry) Subscribe(string, domain.RoomID, contract.EventSink) {
}
func (r staticRegistry) Unsubscribe(string, domain.RoomID) {}

func waitFor(t *testing.T, done chan struct{}, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			require.Fail(t, "sink was not reached in time")
		}
	}
}

func TestEventFanout_Delivers_To_Room_And_Permanent_Sinks(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	roomSink := newCountingSink()
	permanentSink := newCountingSink()

	fanout := NewEventFanout(log,
		staticRegistry{sinks: []contract.EventSink{roomSink}},
		nil, []contract.EventSink{permanentSink}, time.Second)

	fanout.Fanout(context.Background(), event.OccupancyChanged{Room: "r-1", Count: 2})

	waitFor(t, roomSink.done, 1)
	waitFor(t, permanentSink.done, 1)
	req.Equal(1, roomSink.count())
	req.Equal(1, permanentSink.count())
}

func TestEventFanout_Sink_Timeout_Does_Not_Stall(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	stuck := newCountingSink()
	stuck.block = true
	healthy := newCountingSink()

	fanout := NewEventFanout(log,
		staticRegistry{sinks: []contract.EventSink{stuck, healthy}},
		nil, nil, 30*time.Millisecond)

	start := time.Now()
	fanout.Fanout(context.Background(), event.OccupancyChanged{Room: "r-1", Count: 1})
	req.Less(time.Since(start), 20*time.Millisecond, "Fanout itself never blocks")

	waitFor(t, healthy.done, 1)
	waitFor(t, stuck.done, 1)
	req.Equal(1, healthy.count())
	req.Equal(0, stuck.count())
}

func TestEventFanout_Run_Drains_Channel(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	sink := newCountingSink()
	events := make(chan event.DomainEvent, 4)

	fanout := NewEventFanout(log,
		staticRegistry{sinks: []contract.EventSink{sink}},
		events, nil, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		_ = fanout.Run(ctx)
		close(finished)
	}()

	events <- event.OccupancyChanged{Room: "r-1", Count: 1}
	events <- event.OccupancyChanged{Room: "r-1", Count: 2}
	waitFor(t, sink.done, 2)
	req.Equal(2, sink.count())

	cancel()
	select {
	case <-finished:
	case <-time.After(time.Second):
		req.Fail("Run should stop with the context")
	}
}
