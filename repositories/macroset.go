//go:generate go run go.uber.org/mock/mockgen -source=macroset.go -destination=../mocks/mock_macroset_repository.go -package=mocks
package repositories

import (
	"encoding/json"

	"github.com/dgraph-io/badger/v4"

	"planet-chat/domain"
)

type IMacroSetRepository interface {
	SaveMacroSet(userID string, set domain.MacroSet) error
	GetMacroSet(userID string) (domain.MacroSet, error)
}

// MacroSetRepository persists one macro set per identity. The explicit
// per-identity record keeps macro state out of package-level globals.
type MacroSetRepository struct {
	db *badger.DB
}

func NewMacroSetRepository(db *badger.DB) MacroSetRepository {
	return MacroSetRepository{db: db}
}

func macroKey(userID string) []byte {
	return []byte("macro:" + userID)
}

func (m MacroSetRepository) SaveMacroSet(userID string, set domain.MacroSet) error {
	data, err := json.Marshal(set)
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(macroKey(userID), data)
	})
}

// GetMacroSet returns the stored set, or an all-empty one for
// identities that never edited a slot.
func (m MacroSetRepository) GetMacroSet(userID string) (domain.MacroSet, error) {
	var set domain.MacroSet
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(macroKey(userID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &set)
		})
	})
	if err == badger.ErrKeyNotFound {
		return domain.MacroSet{}, nil
	}
	if err != nil {
		return domain.MacroSet{}, err
	}
	return set, nil
}
