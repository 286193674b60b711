package memory

import (
	"context"
	"sync"

	"github.com/samirrijal/storedetect/internal/core/domain"
)

// PreferenceRepo keeps confirmation state in process memory.
type PreferenceRepo struct {
	mu     sync.RWMutex
	states map[string]*domain.ConfirmationState
}

func NewPreferenceRepo() *PreferenceRepo {
	return &PreferenceRepo{states: make(map[string]*domain.ConfirmationState)}
}

func (r *PreferenceRepo) Load(_ context.Context, deviceID string) (*domain.ConfirmationState, error) {
	r.mu.RLock()
	st, ok := r.states[deviceID]
	r.mu.RUnlock()
	if !ok {
		return domain.NewConfirmationState(), nil
	}
	return st.Clone(), nil
}

func (r *PreferenceRepo) Save(_ context.Context, deviceID string, state *domain.ConfirmationState) error {
	st := state.Clone()
	st.Normalize()
	r.mu.Lock()
	r.states[deviceID] = st
	r.mu.Unlock()
	return nil
}

func (r *PreferenceRepo) Delete(_ context.Context, deviceID string) error {
	r.mu.Lock()
	delete(r.states, deviceID)
	r.mu.Unlock()
	return nil
}
