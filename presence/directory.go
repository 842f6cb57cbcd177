package presence

import (
	"sync"

	"planet-chat/domain"
)

// Directory remembers the identity behind each user id, fed from the
// connection handshake. Its Resolve method is the Resolver the
// registry uses to build participant views.
type Directory struct {
	mu   sync.RWMutex
	byID map[string]domain.Participant
}

func NewDirectory() *Directory {
	return &Directory{byID: make(map[string]domain.Participant)}
}

func (d *Directory) Put(p domain.Participant) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byID[p.UserID] = p
}

// Resolve returns the known identity, or a bare participant carrying
// only the id when the user was never seen. Display data catches up on
// their next handshake.
func (d *Directory) Resolve(userID string) domain.Participant {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if p, ok := d.byID[userID]; ok {
		return p
	}
	return domain.Participant{UserID: userID}
}
