package spamguard

import "sync"

// Keeper hands out one Guard per client. A guard is only ever touched
// by its own session goroutine; the keeper mutex protects the map, not
// the guards.
type Keeper struct {
	mu     sync.Mutex
	guards map[string]*Guard
}

func NewKeeper() *Keeper {
	return &Keeper{guards: make(map[string]*Guard)}
}

func (k *Keeper) Get(clientID string) *Guard {
	k.mu.Lock()
	defer k.mu.Unlock()
	g, ok := k.guards[clientID]
	if !ok {
		g = NewGuard()
		k.guards[clientID] = g
	}
	return g
}

// Drop forgets a client's guard, typically on disconnect.
func (k *Keeper) Drop(clientID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.guards, clientID)
}
