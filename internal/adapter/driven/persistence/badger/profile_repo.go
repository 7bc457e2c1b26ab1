package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Wyydra/parley/internal/core/domain"
	"github.com/dgraph-io/badger/v4"
)

type ProfileRepository struct {
	db *badger.DB
}

func NewProfileRepository(db *badger.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func profileKey(id domain.UserID) []byte {
	return []byte("profile:" + id.String())
}

func (r *ProfileRepository) SaveProfile(ctx context.Context, profile domain.Profile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(profileKey(profile.UserID), data)
	})
}

func (r *ProfileRepository) GetProfile(ctx context.Context, id domain.UserID) (domain.Profile, error) {
	var profile domain.Profile
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(profileKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: profile %s", domain.ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &profile)
		})
	})
	return profile, err
}
