// Package sqlite stores device preferences in a local SQLite file, the
// single-node counterpart of the Valkey repository.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/samirrijal/storedetect/internal/core/domain"
)

//go:embed schema.sql
var schemaSQL string

// PreferenceRepo implements ports.PreferenceRepository with one row per
// device and record key.
type PreferenceRepo struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for an ephemeral store.
func Open(path string) (*PreferenceRepo, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps :memory: shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &PreferenceRepo{db: db}, nil
}

// Load reads every record of the device.
func (r *PreferenceRepo) Load(ctx context.Context, deviceID string) (*domain.ConfirmationState, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT record_key, value FROM preference_records WHERE device_id = ?", deviceID)
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	defer rows.Close()

	records := make(map[string][]byte, len(domain.RecordKeys))
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		records[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return domain.DecodeRecords(records)
}

// Save replaces the four records in one transaction.
func (r *PreferenceRepo) Save(ctx context.Context, deviceID string, state *domain.ConfirmationState) error {
	records, err := state.EncodeRecords()
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO preference_records (device_id, record_key, value, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (device_id, record_key) DO UPDATE
		SET value = excluded.value, updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, key := range domain.RecordKeys {
		if _, err := stmt.ExecContext(ctx, deviceID, key, records[key]); err != nil {
			return fmt.Errorf("save %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// Delete removes every record of the device.
func (r *PreferenceRepo) Delete(ctx context.Context, deviceID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM preference_records WHERE device_id = ?", deviceID)
	return err
}

// Ping checks the database handle.
func (r *PreferenceRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database.
func (r *PreferenceRepo) Close() error {
	return r.db.Close()
}
