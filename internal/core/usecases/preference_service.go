package usecases

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/samirrijal/storedetect/internal/core/domain"
	"github.com/samirrijal/storedetect/internal/core/ports"
	"github.com/samirrijal/storedetect/internal/pkg/metrics"
)

const preferenceLockStripes = 64

var errEmptyStoreID = errors.New("store id must not be empty")

// PreferenceService owns confirmed, favorite, recent and default stores per
// device. Every mutation is a locked load-modify-save of the whole record.
type PreferenceService struct {
	repo  ports.PreferenceRepository
	locks [preferenceLockStripes]sync.Mutex
	now   func() time.Time
}

// NewPreferenceService creates a new PreferenceService.
func NewPreferenceService(repo ports.PreferenceRepository) *PreferenceService {
	return &PreferenceService{repo: repo, now: time.Now}
}

func (s *PreferenceService) lock(deviceID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(deviceID))
	mu := &s.locks[h.Sum32()%preferenceLockStripes]
	mu.Lock()
	return mu.Unlock
}

// Get returns the device state; unknown devices have an empty state.
func (s *PreferenceService) Get(ctx context.Context, deviceID string) (*domain.ConfirmationState, error) {
	st, err := s.repo.Load(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	return st, nil
}

func (s *PreferenceService) mutate(ctx context.Context, deviceID, op string, fn func(*domain.ConfirmationState)) (*domain.ConfirmationState, error) {
	unlock := s.lock(deviceID)
	defer unlock()

	st, err := s.repo.Load(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	st = st.Clone()
	fn(st)
	st.Version = domain.PreferencesVersion
	st.UpdatedAt = s.now().UTC()

	if err := s.repo.Save(ctx, deviceID, st); err != nil {
		return nil, fmt.Errorf("save preferences: %w", err)
	}
	metrics.PreferenceWrites.WithLabelValues(op).Inc()
	return st, nil
}

// IsConfirmed reports whether the device confirmed storeID before.
func (s *PreferenceService) IsConfirmed(ctx context.Context, deviceID, storeID string) (bool, error) {
	st, err := s.Get(ctx, deviceID)
	if err != nil {
		return false, err
	}
	return st.IsConfirmed(storeID), nil
}

// Confirm records a user confirmation: the store joins the confirmed set and
// moves to the front of the recent list.
func (s *PreferenceService) Confirm(ctx context.Context, deviceID, storeID string) error {
	if storeID == "" {
		return errEmptyStoreID
	}
	_, err := s.mutate(ctx, deviceID, "confirm", func(st *domain.ConfirmationState) {
		st.MarkConfirmed(storeID)
		st.AddRecent(storeID)
	})
	return err
}

// ToggleFavorite flips the favorite flag and returns the new value.
func (s *PreferenceService) ToggleFavorite(ctx context.Context, deviceID, storeID string) (bool, error) {
	if storeID == "" {
		return false, errEmptyStoreID
	}
	var favorite bool
	_, err := s.mutate(ctx, deviceID, "toggle_favorite", func(st *domain.ConfirmationState) {
		favorite = st.ToggleFavorite(storeID)
	})
	return favorite, err
}

// IsFavorite reports whether storeID is a favorite of the device.
func (s *PreferenceService) IsFavorite(ctx context.Context, deviceID, storeID string) (bool, error) {
	st, err := s.Get(ctx, deviceID)
	if err != nil {
		return false, err
	}
	return st.IsFavorite(storeID), nil
}

// AddRecent moves storeID to the front of the recent list.
func (s *PreferenceService) AddRecent(ctx context.Context, deviceID, storeID string) error {
	if storeID == "" {
		return errEmptyStoreID
	}
	_, err := s.mutate(ctx, deviceID, "add_recent", func(st *domain.ConfirmationState) {
		st.AddRecent(storeID)
	})
	return err
}

// SetDefault sets the default store.
func (s *PreferenceService) SetDefault(ctx context.Context, deviceID, storeID string) error {
	if storeID == "" {
		return errEmptyStoreID
	}
	_, err := s.mutate(ctx, deviceID, "set_default", func(st *domain.ConfirmationState) {
		st.SetDefault(storeID)
	})
	return err
}

// ClearDefault removes the default store.
func (s *PreferenceService) ClearDefault(ctx context.Context, deviceID string) error {
	_, err := s.mutate(ctx, deviceID, "clear_default", func(st *domain.ConfirmationState) {
		st.ClearDefault()
	})
	return err
}

// Reset deletes all four records of the device in one operation.
func (s *PreferenceService) Reset(ctx context.Context, deviceID string) error {
	unlock := s.lock(deviceID)
	defer unlock()

	if err := s.repo.Delete(ctx, deviceID); err != nil {
		return fmt.Errorf("reset preferences: %w", err)
	}
	metrics.PreferenceWrites.WithLabelValues("reset").Inc()
	return nil
}
