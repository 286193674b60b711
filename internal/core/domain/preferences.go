package domain

import (
	"slices"
	"time"
)

// PreferencesVersion tags persisted preference records.
const PreferencesVersion = 1

// MaxRecentStores bounds RecentStoreIDs.
const MaxRecentStores = 10

// ConfirmationState is the per-device record of confirmed, favorite, recent
// and default stores. The zero value is an empty state.
type ConfirmationState struct {
	Version           int       `json:"version"`
	ConfirmedStoreIDs []string  `json:"confirmed_store_ids"` // set, sorted
	FavoriteStoreIDs  []string  `json:"favorite_store_ids"`  // insertion order
	RecentStoreIDs    []string  `json:"recent_store_ids"`    // most recent first
	DefaultStoreID    *string   `json:"default_store_id"`
	UpdatedAt         time.Time `json:"updated_at,omitempty"`
}

// NewConfirmationState returns an empty, version-tagged state.
func NewConfirmationState() *ConfirmationState {
	return &ConfirmationState{
		Version:           PreferencesVersion,
		ConfirmedStoreIDs: []string{},
		FavoriteStoreIDs:  []string{},
		RecentStoreIDs:    []string{},
	}
}

// Clone returns a deep copy.
func (s *ConfirmationState) Clone() *ConfirmationState {
	if s == nil {
		return NewConfirmationState()
	}
	c := &ConfirmationState{
		Version:           s.Version,
		ConfirmedStoreIDs: append([]string{}, s.ConfirmedStoreIDs...),
		FavoriteStoreIDs:  append([]string{}, s.FavoriteStoreIDs...),
		RecentStoreIDs:    append([]string{}, s.RecentStoreIDs...),
		UpdatedAt:         s.UpdatedAt,
	}
	if s.DefaultStoreID != nil {
		id := *s.DefaultStoreID
		c.DefaultStoreID = &id
	}
	return c
}

// Normalize restores the invariants of a state read back from storage:
// non-nil lists, a sorted duplicate-free confirmed set and a bounded recent list.
func (s *ConfirmationState) Normalize() {
	if s.Version == 0 {
		s.Version = PreferencesVersion
	}
	if s.ConfirmedStoreIDs == nil {
		s.ConfirmedStoreIDs = []string{}
	}
	slices.Sort(s.ConfirmedStoreIDs)
	s.ConfirmedStoreIDs = slices.Compact(s.ConfirmedStoreIDs)
	if s.FavoriteStoreIDs == nil {
		s.FavoriteStoreIDs = []string{}
	}
	if s.RecentStoreIDs == nil {
		s.RecentStoreIDs = []string{}
	}
	if len(s.RecentStoreIDs) > MaxRecentStores {
		s.RecentStoreIDs = s.RecentStoreIDs[:MaxRecentStores]
	}
}

// IsConfirmed reports whether the store was confirmed at least once.
func (s *ConfirmationState) IsConfirmed(storeID string) bool {
	_, found := slices.BinarySearch(s.ConfirmedStoreIDs, storeID)
	return found
}

// MarkConfirmed adds storeID to the confirmed set.
func (s *ConfirmationState) MarkConfirmed(storeID string) {
	i, found := slices.BinarySearch(s.ConfirmedStoreIDs, storeID)
	if found {
		return
	}
	s.ConfirmedStoreIDs = slices.Insert(s.ConfirmedStoreIDs, i, storeID)
}

// IsFavorite reports whether storeID is a favorite.
func (s *ConfirmationState) IsFavorite(storeID string) bool {
	return slices.Contains(s.FavoriteStoreIDs, storeID)
}

// ToggleFavorite adds or removes storeID and returns the new favorite state.
func (s *ConfirmationState) ToggleFavorite(storeID string) bool {
	if i := slices.Index(s.FavoriteStoreIDs, storeID); i >= 0 {
		s.FavoriteStoreIDs = slices.Delete(s.FavoriteStoreIDs, i, i+1)
		return false
	}
	s.FavoriteStoreIDs = append(s.FavoriteStoreIDs, storeID)
	return true
}

// AddRecent moves storeID to the front of the recent list, keeping at most
// MaxRecentStores entries and no duplicates.
func (s *ConfirmationState) AddRecent(storeID string) {
	recents := make([]string, 0, MaxRecentStores)
	recents = append(recents, storeID)
	for _, id := range s.RecentStoreIDs {
		if id == storeID {
			continue
		}
		if len(recents) == MaxRecentStores {
			break
		}
		recents = append(recents, id)
	}
	s.RecentStoreIDs = recents
}

// SetDefault sets the default store.
func (s *ConfirmationState) SetDefault(storeID string) {
	s.DefaultStoreID = &storeID
}

// ClearDefault removes the default store.
func (s *ConfirmationState) ClearDefault() {
	s.DefaultStoreID = nil
}
