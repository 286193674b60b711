package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Keys of the four persisted preference records.
const (
	RecordConfirmed = "confirmedStoreIds"
	RecordFavorites = "favoriteStoreIds"
	RecordRecents   = "recentStoreIds"
	RecordDefault   = "defaultStoreId"
)

// RecordKeys lists the preference record keys in a stable order.
var RecordKeys = []string{RecordConfirmed, RecordFavorites, RecordRecents, RecordDefault}

// record is the version-tagged envelope every preference record is stored in.
type record struct {
	Version   int             `json:"version"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// EncodeRecords splits the state into its four version-tagged records.
func (s *ConfirmationState) EncodeRecords() (map[string][]byte, error) {
	values := map[string]any{
		RecordConfirmed: s.ConfirmedStoreIDs,
		RecordFavorites: s.FavoriteStoreIDs,
		RecordRecents:   s.RecentStoreIDs,
		RecordDefault:   s.DefaultStoreID,
	}
	out := make(map[string][]byte, len(values))
	for key, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		b, err := json.Marshal(record{Version: PreferencesVersion, Value: raw, UpdatedAt: s.UpdatedAt})
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		out[key] = b
	}
	return out, nil
}

// DecodeRecords rebuilds a state from stored records. Missing records leave
// their field empty; records with a newer version are rejected.
func DecodeRecords(records map[string][]byte) (*ConfirmationState, error) {
	s := NewConfirmationState()
	for key, data := range records {
		if len(data) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		if rec.Version > PreferencesVersion {
			return nil, fmt.Errorf("decode %s: unsupported record version %d", key, rec.Version)
		}
		if rec.UpdatedAt.After(s.UpdatedAt) {
			s.UpdatedAt = rec.UpdatedAt
		}

		var dest any
		switch key {
		case RecordConfirmed:
			dest = &s.ConfirmedStoreIDs
		case RecordFavorites:
			dest = &s.FavoriteStoreIDs
		case RecordRecents:
			dest = &s.RecentStoreIDs
		case RecordDefault:
			dest = &s.DefaultStoreID
		default:
			continue
		}
		if err := json.Unmarshal(rec.Value, dest); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
	}
	s.Normalize()
	return s, nil
}
