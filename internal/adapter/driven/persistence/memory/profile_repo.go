package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/Wyydra/parley/internal/core/domain"
)

type ProfileRepository struct {
	mu       sync.RWMutex
	profiles map[domain.UserID]domain.Profile
}

func NewProfileRepository() *ProfileRepository {
	return &ProfileRepository{profiles: make(map[domain.UserID]domain.Profile)}
}

func (r *ProfileRepository) SaveProfile(ctx context.Context, profile domain.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[profile.UserID] = profile
	return nil
}

func (r *ProfileRepository) GetProfile(ctx context.Context, id domain.UserID) (domain.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[id]
	if !ok {
		return domain.Profile{}, fmt.Errorf("%w: profile %s", domain.ErrNotFound, id)
	}
	return p, nil
}
