//go:generate go run go.uber.org/mock/mockgen -source=registry.go -destination=../mocks/mock_presence.go -package=mocks
// Package presence tracks which identities currently occupy a room.
//
// The backing realtime store's "remove this key when the connection
// drops" primitive is ported as TTL leases: every live connection
// renews its lease by heartbeat, and a lease that misses renewal past
// the TTL is treated as a departure. Existence of a lease is the one
// and only definition of presence.
package presence

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"planet-chat/domain"
	"planet-chat/domain/event"
)

// RoomWriter is the slice of the room repository the registry pushes
// occupancy side effects through.
type RoomWriter interface {
	SetOccupantCount(id domain.RoomID, count int) error
	StampLastEntered(id domain.RoomID, at time.Time) error
}

// Resolver joins a user id against profile data to build the
// session-local Participant view.
type Resolver func(userID string) domain.Participant

type lease struct {
	participant domain.Participant
	expiry      time.Time
}

type Registry struct {
	mu      sync.Mutex
	log     *slog.Logger
	rooms   map[domain.RoomID]map[string]lease
	subs    map[domain.RoomID]map[int]func(int)
	nextSub int

	leaseTTL time.Duration
	writer   RoomWriter
	resolve  Resolver
	notify   func(event.DomainEvent)
	now      func() time.Time
}

func NewRegistry(log *slog.Logger, writer RoomWriter, resolve Resolver,
	leaseTTL time.Duration, notify func(event.DomainEvent)) *Registry {
	if notify == nil {
		notify = func(event.DomainEvent) {}
	}
	return &Registry{
		log:      log,
		rooms:    make(map[domain.RoomID]map[string]lease),
		subs:     make(map[domain.RoomID]map[int]func(int)),
		leaseTTL: leaseTTL,
		writer:   writer,
		resolve:  resolve,
		notify:   notify,
		now:      time.Now,
	}
}

// Enter writes a presence lease for (room, user) and propagates the
// recomputed occupancy. Entering twice only refreshes the lease.
func (r *Registry) Enter(roomID domain.RoomID, userID string) {
	now := r.now()
	r.mu.Lock()
	leases, ok := r.rooms[roomID]
	if !ok {
		leases = make(map[string]lease)
		r.rooms[roomID] = leases
	}
	_, existed := leases[userID]
	participant := r.resolve(userID)
	leases[userID] = lease{participant: participant, expiry: now.Add(r.leaseTTL)}
	count := len(leases)
	fns := r.subscribersLocked(roomID)
	r.mu.Unlock()

	if !existed {
		r.notify(event.ParticipantEntered{Room: roomID, User: participant, At: now})
	}
	r.propagate(roomID, count, fns)
}

// Renew extends the lease. It reports false when the lease already
// expired or never existed, in which case the caller should re-enter.
func (r *Registry) Renew(roomID domain.RoomID, userID string) bool {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	leases, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	l, ok := leases[userID]
	if !ok || l.expiry.Before(now) {
		return false
	}
	l.expiry = now.Add(r.leaseTTL)
	leases[userID] = l
	return true
}

// Leave removes the lease on graceful exit, then pushes one more
// authoritative count. This guards against the race where the change
// notification for the deletion has not fired before the session tears
// its subscription down. Leaving also stamps the room's LastEnteredAt,
// which feeds the stale-room garbage-collection policy.
func (r *Registry) Leave(roomID domain.RoomID, userID string) {
	now := r.now()
	r.mu.Lock()
	leases, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return
	}
	l, present := leases[userID]
	if !present {
		r.mu.Unlock()
		return
	}
	delete(leases, userID)
	if len(leases) == 0 {
		delete(r.rooms, roomID)
	}
	count := len(leases)
	fns := r.subscribersLocked(roomID)
	r.mu.Unlock()

	r.notify(event.ParticipantLeft{Room: roomID, User: l.participant, At: now})
	r.propagate(roomID, count, fns)

	if err := r.writer.StampLastEntered(roomID, now); err != nil {
		r.log.Warn("Failed to stamp room last-entered time", "room", roomID, "err", err)
	}
}

// Sweep expires stale leases. It behaves like Leave for every expired
// entry, minus the LastEnteredAt stamp: an abrupt disconnect is not a
// visit boundary the application chose.
func (r *Registry) Sweep(now time.Time) {
	type expired struct {
		room        domain.RoomID
		participant domain.Participant
		count       int
		fns         []func(int)
	}
	var gone []expired

	r.mu.Lock()
	for roomID, leases := range r.rooms {
		for userID, l := range leases {
			if l.expiry.Before(now) {
				delete(leases, userID)
				gone = append(gone, expired{
					room:        roomID,
					participant: l.participant,
					count:       len(leases),
					fns:         r.subscribersLocked(roomID),
				})
			}
		}
		if len(leases) == 0 {
			delete(r.rooms, roomID)
		}
	}
	r.mu.Unlock()

	for _, e := range gone {
		r.log.Debug("Presence lease expired", "room", e.room, "user", e.participant.UserID)
		r.notify(event.ParticipantLeft{Room: e.room, User: e.participant, At: now})
		r.propagate(e.room, e.count, e.fns)
	}
}

// Count returns the live occupant count, recomputed from the lease set.
func (r *Registry) Count(roomID domain.RoomID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[roomID])
}

// Participants returns the derived, sorted occupant view.
func (r *Registry) Participants(roomID domain.RoomID) []domain.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	leases := r.rooms[roomID]
	out := make([]domain.Participant, 0, len(leases))
	for _, l := range leases {
		out = append(out, l.participant)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// SubscribeOccupancy registers a callback fired on every occupancy
// change for the room. The returned function unsubscribes; it must be
// called before any new room's subscriptions are opened so that two
// rooms' updates never leak into one view.
func (r *Registry) SubscribeOccupancy(roomID domain.RoomID, fn func(count int)) (unsubscribe func()) {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	if r.subs[roomID] == nil {
		r.subs[roomID] = make(map[int]func(int))
	}
	r.subs[roomID][id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs[roomID], id)
		if len(r.subs[roomID]) == 0 {
			delete(r.subs, roomID)
		}
	}
}

func (r *Registry) subscribersLocked(roomID domain.RoomID) []func(int) {
	fns := make([]func(int), 0, len(r.subs[roomID]))
	for _, fn := range r.subs[roomID] {
		fns = append(fns, fn)
	}
	return fns
}

// propagate fans the new count out to subscribers and pushes it onto
// the persisted room record. The write is fire and forget: a failure
// leaves a stale count that self-corrects on the next change.
func (r *Registry) propagate(roomID domain.RoomID, count int, fns []func(int)) {
	for _, fn := range fns {
		fn(count)
	}
	r.notify(event.OccupancyChanged{Room: roomID, Count: count})
	if err := r.writer.SetOccupantCount(roomID, count); err != nil {
		r.log.Warn("Occupancy propagation failed, will self-correct", "room", roomID, "err", err)
	}
}
