package runtime

import (
	"sync"

	"planet-chat/contract"
	"planet-chat/domain"
)

type Set map[string]struct{}

// Registry tracks which connection belongs to which participant and
// which participants are inside each room. A connection lives in the
// Sessions map exactly once even when its user hops between rooms,
// so Members only carries IDs.
type Registry struct {
	mu       sync.RWMutex
	Sessions map[string]contract.EventSink
	Members  map[domain.RoomID]Set
}

func NewRegistry() *Registry {
	return &Registry{
		Sessions: make(map[string]contract.EventSink),
		Members:  make(map[domain.RoomID]Set),
	}
}

// GetSinksForRoom resolves the member IDs of a room into their live
// connections. Members without a session entry are skipped, they are
// mid-disconnect. Returns nil for an unknown or empty room.
func (r *Registry) GetSinksForRoom(roomID domain.RoomID) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.Members[roomID]
	if !ok {
		return nil
	}
	var sinks []contract.EventSink
	for participantID := range members {
		if sink, exists := r.Sessions[participantID]; exists {
			sinks = append(sinks, sink)
		}
	}
	return sinks
}

// Subscribe registers a participant's connection and places them in a
// room. A missing room entry is created on the fly.
func (r *Registry) Subscribe(participantID string, roomID domain.RoomID, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Sessions[participantID] = sink

	if _, ok := r.Members[roomID]; !ok {
		r.Members[roomID] = make(Set)
	}
	r.Members[roomID][participantID] = struct{}{}
}

// Unsubscribe removes a participant's connection and room membership.
// Emptied rooms are dropped from the map.
func (r *Registry) Unsubscribe(participantID string, roomID domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.Sessions, participantID)

	if members, ok := r.Members[roomID]; ok {
		delete(members, participantID)
		if len(members) == 0 {
			delete(r.Members, roomID)
		}
	}
}
