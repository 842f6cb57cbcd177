//go:generate go run go.uber.org/mock/mockgen -source=service.go -destination=../mocks/mock_lifecycle.go -package=mocks
// Package lifecycle drives a room's soft-delete state machine:
// active → pending destruction (a future destroy-at) → destroyed
// (record removed). Instant destroy skips the pending stage entirely.
package lifecycle

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"planet-chat/domain"
	"planet-chat/domain/event"
	apperrors "planet-chat/errors"
)

const (
	// DestructionDelay separates scheduling from removal.
	DestructionDelay = 24 * time.Hour

	// StaleAfter is how long an empty, unvisited room survives before
	// the sweep reclaims it even without a scheduled destruction.
	StaleAfter = 72 * time.Hour

	// InstantDestroyCost is the fixed currency price of skipping the
	// pending stage. The ledger itself is an external collaborator.
	InstantDestroyCost = 500

	// CreateRoomCost is charged to the owner on creation.
	CreateRoomCost = 300

	// ModeratorRole marks identities allowed to schedule destruction
	// of rooms they do not own.
	ModeratorRole = "moderator"
)

// Ledger is the external points ledger; it authorizes and consumes
// spends atomically on its side.
type Ledger interface {
	Spend(userID string, amount int) error
}

type RoomStore interface {
	SaveRoom(room domain.Room) error
	GetRoom(id domain.RoomID) (domain.Room, error)
	SetDestroyAt(id domain.RoomID, at time.Time) error
	DeleteRoom(id domain.RoomID) error
}

type MessagePurger interface {
	DeleteRoomMessages(room domain.RoomID) error
}

// Poster publishes a system notice through the normal message
// pipeline.
type Poster func(cmd domain.PostMessageCommand)

type Service struct {
	log      *slog.Logger
	rooms    RoomStore
	messages MessagePurger
	ledger   Ledger
	post     Poster
	notify   func(event.DomainEvent)
	now      func() time.Time
}

func NewService(log *slog.Logger, rooms RoomStore, messages MessagePurger,
	ledger Ledger, post Poster, notify func(event.DomainEvent)) *Service {
	if post == nil {
		post = func(domain.PostMessageCommand) {}
	}
	if notify == nil {
		notify = func(event.DomainEvent) {}
	}
	return &Service{
		log:      log,
		rooms:    rooms,
		messages: messages,
		ledger:   ledger,
		post:     post,
		notify:   notify,
		now:      time.Now,
	}
}

// CreateRoom charges the owner and persists a fresh room record.
func (s *Service) CreateRoom(title, icon, ownerID string) (domain.Room, error) {
	if err := s.ledger.Spend(ownerID, CreateRoomCost); err != nil {
		return domain.Room{}, fmt.Errorf("%w: %v", apperrors.ErrInsufficientFunds, err)
	}
	now := s.now()
	room := domain.Room{
		ID:            domain.RoomID(uuid.NewString()),
		Title:         title,
		Icon:          icon,
		OwnerID:       ownerID,
		CreatedAt:     now,
		LastEnteredAt: now,
	}
	if err := s.rooms.SaveRoom(room); err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

// CanScheduleDestruction is the authorization gate the interface layer
// uses to decide whether to offer the action at all. Unauthorized
// identities never see it, so there is no runtime error case to model.
func CanScheduleDestruction(room domain.Room, actorID string, roles []string) bool {
	return room.OwnerID == actorID || lo.Contains(roles, ModeratorRole)
}

// ScheduleDestruction arms the 24 h countdown and posts a system
// notice into the room. The destroy-at time is monotonic: a
// re-schedule can extend it but never pull it earlier.
func (s *Service) ScheduleDestruction(roomID domain.RoomID, actorID string, roles []string) (time.Time, error) {
	room, err := s.rooms.GetRoom(roomID)
	if err != nil {
		return time.Time{}, err
	}
	if !CanScheduleDestruction(room, actorID, roles) {
		return time.Time{}, apperrors.ErrNotPrivileged
	}

	now := s.now()
	destroyAt := now.Add(DestructionDelay)
	if room.DestroyAt != nil && destroyAt.Before(*room.DestroyAt) {
		destroyAt = *room.DestroyAt
	}
	if err := s.rooms.SetDestroyAt(roomID, destroyAt); err != nil {
		return time.Time{}, err
	}

	s.notify(event.DestructionScheduled{Room: roomID, DestroyAt: destroyAt})
	s.post(domain.PostMessageCommand{
		ID:         uuid.New(),
		Room:       roomID,
		SenderID:   "system",
		SenderName: "System",
		Body:       fmt.Sprintf("This room will be destroyed at %s.", destroyAt.UTC().Format(time.RFC1123)),
		SentAt:     now,
	})
	return destroyAt, nil
}

// DestroyImmediately deletes the room outright, skipping the pending
// stage. Owner only; the fixed cost is consumed through the ledger
// before anything is removed.
func (s *Service) DestroyImmediately(roomID domain.RoomID, actorID string) error {
	room, err := s.rooms.GetRoom(roomID)
	if err != nil {
		return err
	}
	if room.OwnerID != actorID {
		return apperrors.ErrNotRoomOwner
	}
	if err := s.ledger.Spend(actorID, InstantDestroyCost); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInsufficientFunds, err)
	}
	s.remove(roomID)
	return nil
}

// GarbageCollect is the opportunistic read-time sweep any client may
// run while listing rooms. A room goes when its destroy-at elapsed, or
// when it sits empty, unvisited for 72 h, with nothing scheduled.
// Redundant sweeps from many clients are safe: deleting an absent room
// is a no-op.
func (s *Service) GarbageCollect(rooms []domain.Room, now time.Time) []domain.RoomID {
	var removed []domain.RoomID
	for _, room := range rooms {
		elapsed := room.DestructionElapsed(now)
		stale := room.DestroyAt == nil &&
			room.OccupantCount == 0 &&
			room.LastEnteredAt.Before(now.Add(-StaleAfter))
		if !elapsed && !stale {
			continue
		}
		s.log.Info("Sweeping room", "room", room.ID, "elapsed", elapsed, "stale", stale)
		s.remove(room.ID)
		removed = append(removed, room.ID)
	}
	return removed
}

// remove deletes the record and its history. Failures are logged and
// left for the next sweep; nothing here is fatal.
func (s *Service) remove(roomID domain.RoomID) {
	if err := s.rooms.DeleteRoom(roomID); err != nil {
		s.log.Warn("Room deletion failed, next sweep retries", "room", roomID, "err", err)
		return
	}
	if err := s.messages.DeleteRoomMessages(roomID); err != nil {
		s.log.Warn("History purge failed", "room", roomID, "err", err)
	}
	s.notify(event.RoomDestroyed{Room: roomID})
}
