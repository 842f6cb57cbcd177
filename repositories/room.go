//go:generate go run go.uber.org/mock/mockgen -source=room.go -destination=../mocks/mock_room_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"

	"planet-chat/domain"
	apperrors "planet-chat/errors"
)

type IRoomRepository interface {
	SaveRoom(room domain.Room) error
	GetRoom(id domain.RoomID) (domain.Room, error)
	ListRooms() ([]domain.Room, error)
	DeleteRoom(id domain.RoomID) error
	SetOccupantCount(id domain.RoomID, count int) error
	StampLastEntered(id domain.RoomID, at time.Time) error
	SetDestroyAt(id domain.RoomID, at time.Time) error
}

type RoomRepository struct {
	db *badger.DB
}

func NewRoomRepository(db *badger.DB) RoomRepository {
	return RoomRepository{db: db}
}

type diskRoom struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Icon          string `json:"icon"`
	OwnerID       string `json:"owner_id"`
	CreatedAt     int64  `json:"created_at"`
	LastEnteredAt int64  `json:"last_entered_at"`
	OccupantCount int    `json:"occupant_count"`
	DestroyAtNano *int64 `json:"destroy_at,omitempty"`
}

func roomKey(id domain.RoomID) []byte {
	return []byte("room:" + string(id))
}

func (r RoomRepository) SaveRoom(room domain.Room) error {
	data, err := json.Marshal(fromDomainRoom(room))
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(roomKey(room.ID), data)
	})
}

func (r RoomRepository) GetRoom(id domain.RoomID) (domain.Room, error) {
	var dr diskRoom
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(roomKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &dr)
		})
	})
	if err == badger.ErrKeyNotFound {
		return domain.Room{}, apperrors.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, err
	}
	return toDomainRoom(dr), nil
}

func (r RoomRepository) ListRooms() ([]domain.Room, error) {
	var rows []diskRoom
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte("room:")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var dr diskRoom
				if err := json.Unmarshal(val, &dr); err != nil {
					return err
				}
				rows = append(rows, dr)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(rows, func(dr diskRoom, _ int) domain.Room {
		return toDomainRoom(dr)
	}), nil
}

// DeleteRoom removes a room record. Deleting an absent room is a
// no-op, which makes redundant garbage-collection sweeps safe.
func (r RoomRepository) DeleteRoom(id domain.RoomID) error {
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(roomKey(id))
	})
}

func (r RoomRepository) SetOccupantCount(id domain.RoomID, count int) error {
	return r.update(id, func(dr *diskRoom) {
		dr.OccupantCount = count
	})
}

func (r RoomRepository) StampLastEntered(id domain.RoomID, at time.Time) error {
	return r.update(id, func(dr *diskRoom) {
		dr.LastEnteredAt = at.UnixNano()
	})
}

func (r RoomRepository) SetDestroyAt(id domain.RoomID, at time.Time) error {
	return r.update(id, func(dr *diskRoom) {
		nano := at.UnixNano()
		dr.DestroyAtNano = &nano
	})
}

// update applies a read-modify-write on one room record inside a
// single transaction.
func (r RoomRepository) update(id domain.RoomID, mutate func(*diskRoom)) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(roomKey(id))
		if err != nil {
			return err
		}
		var dr diskRoom
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &dr)
		}); err != nil {
			return err
		}
		mutate(&dr)
		data, err := json.Marshal(dr)
		if err != nil {
			return err
		}
		return txn.Set(roomKey(id), data)
	})
	if err == badger.ErrKeyNotFound {
		return apperrors.ErrRoomNotFound
	}
	return err
}

func fromDomainRoom(room domain.Room) diskRoom {
	dr := diskRoom{
		ID:            string(room.ID),
		Title:         room.Title,
		Icon:          room.Icon,
		OwnerID:       room.OwnerID,
		CreatedAt:     room.CreatedAt.UnixNano(),
		LastEnteredAt: room.LastEnteredAt.UnixNano(),
		OccupantCount: room.OccupantCount,
	}
	if room.DestroyAt != nil {
		nano := room.DestroyAt.UnixNano()
		dr.DestroyAtNano = &nano
	}
	return dr
}

func toDomainRoom(dr diskRoom) domain.Room {
	room := domain.Room{
		ID:            domain.RoomID(dr.ID),
		Title:         dr.Title,
		Icon:          dr.Icon,
		OwnerID:       dr.OwnerID,
		CreatedAt:     time.Unix(0, dr.CreatedAt).UTC(),
		LastEnteredAt: time.Unix(0, dr.LastEnteredAt).UTC(),
		OccupantCount: dr.OccupantCount,
	}
	if dr.DestroyAtNano != nil {
		at := time.Unix(0, *dr.DestroyAtNano).UTC()
		room.DestroyAt = &at
	}
	return room
}
