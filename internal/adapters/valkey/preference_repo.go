package valkey

import (
	"context"
	"fmt"

	"github.com/valkey-io/valkey-go"

	"github.com/samirrijal/storedetect/internal/core/domain"
)

// PreferenceRepo implements ports.PreferenceRepository as four keys per
// device, written together in one MULTI/EXEC transaction.
type PreferenceRepo struct {
	client valkey.Client
	prefix string
}

// NewPreferenceRepo shares the cache's connection.
func NewPreferenceRepo(c *Cache) *PreferenceRepo {
	return &PreferenceRepo{client: c.client, prefix: c.prefix + "prefs:"}
}

// RecordKey returns the Valkey key holding one preference record.
func (r *PreferenceRepo) RecordKey(deviceID, record string) string {
	return r.prefix + deviceID + ":" + record
}

func (r *PreferenceRepo) keys(deviceID string) []string {
	keys := make([]string, len(domain.RecordKeys))
	for i, rec := range domain.RecordKeys {
		keys[i] = r.RecordKey(deviceID, rec)
	}
	return keys
}

// Load reads the four records with a single MGET.
func (r *PreferenceRepo) Load(ctx context.Context, deviceID string) (*domain.ConfirmationState, error) {
	msgs, err := r.client.Do(ctx, r.client.B().Mget().Key(r.keys(deviceID)...).Build()).ToArray()
	if err != nil {
		return nil, fmt.Errorf("valkey mget: %w", err)
	}

	records := make(map[string][]byte, len(msgs))
	for i, msg := range msgs {
		if i >= len(domain.RecordKeys) || msg.IsNil() {
			continue
		}
		b, err := msg.AsBytes()
		if err != nil {
			if valkey.IsValkeyNil(err) {
				continue
			}
			return nil, fmt.Errorf("valkey record %s: %w", domain.RecordKeys[i], err)
		}
		records[domain.RecordKeys[i]] = b
	}
	return domain.DecodeRecords(records)
}

// Save replaces all four records atomically.
func (r *PreferenceRepo) Save(ctx context.Context, deviceID string, state *domain.ConfirmationState) error {
	records, err := state.EncodeRecords()
	if err != nil {
		return err
	}

	cmds := make(valkey.Commands, 0, len(records)+2)
	cmds = append(cmds, r.client.B().Multi().Build())
	for _, rec := range domain.RecordKeys {
		cmds = append(cmds, r.client.B().Set().Key(r.RecordKey(deviceID, rec)).Value(valkey.BinaryString(records[rec])).Build())
	}
	cmds = append(cmds, r.client.B().Exec().Build())

	for _, res := range r.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			return fmt.Errorf("valkey save preferences: %w", err)
		}
	}
	return nil
}

// Delete removes all four records in one DEL.
func (r *PreferenceRepo) Delete(ctx context.Context, deviceID string) error {
	if err := r.client.Do(ctx, r.client.B().Del().Key(r.keys(deviceID)...).Build()).Error(); err != nil {
		return fmt.Errorf("valkey delete preferences: %w", err)
	}
	return nil
}
