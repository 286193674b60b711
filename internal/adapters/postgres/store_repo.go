package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/samirrijal/storedetect/internal/core/domain"
)

const storeColumns = `id, name, address, chain,
	ST_Y(location::geometry) AS lat,
	ST_X(location::geometry) AS lng,
	geofence, wifi_networks, wic_authorized, active`

// StoreRepo implements ports.StoreDirectory on PostGIS.
type StoreRepo struct {
	db *DB
}

// NewStoreRepo creates a new StoreRepo.
func NewStoreRepo(db *DB) *StoreRepo {
	return &StoreRepo{db: db}
}

// Upsert inserts or updates a single store.
func (r *StoreRepo) Upsert(ctx context.Context, s *domain.Store) error {
	args, err := upsertArgs(s)
	if err != nil {
		return err
	}
	_, err = r.db.Pool.Exec(ctx, upsertStoreSQL, args...)
	return mapErr(err)
}

// UpsertBatch inserts many stores using pgx.Batch.
func (r *StoreRepo) UpsertBatch(ctx context.Context, stores []domain.Store) error {
	batch := &pgx.Batch{}
	for i := range stores {
		args, err := upsertArgs(&stores[i])
		if err != nil {
			return err
		}
		batch.Queue(upsertStoreSQL, args...)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range stores {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	return nil
}

const upsertStoreSQL = `
	INSERT INTO stores (id, name, address, chain, location, geofence, wifi_networks, wic_authorized, active)
	VALUES ($1, $2, $3, $4, ST_SetSRID(ST_MakePoint($5, $6), 4326)::geography, $7, $8, $9, $10)
	ON CONFLICT (id) DO UPDATE
	SET name = EXCLUDED.name, address = EXCLUDED.address, chain = EXCLUDED.chain,
	    location = EXCLUDED.location, geofence = EXCLUDED.geofence,
	    wifi_networks = EXCLUDED.wifi_networks, wic_authorized = EXCLUDED.wic_authorized,
	    active = EXCLUDED.active, updated_at = NOW()
`

func upsertArgs(s *domain.Store) ([]any, error) {
	if err := s.Location.Validate(); err != nil {
		return nil, fmt.Errorf("store %s: %w", s.ID, err)
	}
	var geofence []byte
	if s.Geofence != nil {
		b, err := json.Marshal(s.Geofence)
		if err != nil {
			return nil, fmt.Errorf("store %s geofence: %w", s.ID, err)
		}
		geofence = b
	}
	networks := s.WiFiNetworks
	if networks == nil {
		networks = []domain.WiFiNetwork{}
	}
	wifi, err := json.Marshal(networks)
	if err != nil {
		return nil, fmt.Errorf("store %s wifi: %w", s.ID, err)
	}
	return []any{s.ID, s.Name, s.Address, s.Chain, s.Location.Lng, s.Location.Lat,
		geofence, wifi, s.WICAuthorized, s.Active}, nil
}

// GetByID returns a store by id.
func (r *StoreRepo) GetByID(ctx context.Context, id string) (*domain.Store, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+storeColumns+` FROM stores WHERE id = $1`, id)
	s, err := scanStore(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return s, nil
}

// FindNearby returns stores within radiusMeters using PostGIS ST_DWithin.
func (r *StoreRepo) FindNearby(ctx context.Context, point domain.GeoPoint, radiusMeters int) ([]domain.Store, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+storeColumns+`,
		       ST_Distance(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography) AS distance
		FROM stores
		WHERE active
		  AND ST_DWithin(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
		ORDER BY distance, id
		LIMIT 100
	`, point.Lng, point.Lat, radiusMeters)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	stores := []domain.Store{}
	for rows.Next() {
		var dist float64
		s, err := scanStore(rows, &dist)
		if err != nil {
			return nil, mapErr(err)
		}
		s.Distance = &dist
		stores = append(stores, *s)
	}
	return stores, mapErr(rows.Err())
}

// SearchByText performs trigram search on store name, chain and address.
func (r *StoreRepo) SearchByText(ctx context.Context, query string, limit int) ([]domain.Store, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+storeColumns+`,
		       GREATEST(similarity(name, $1), similarity(address, $1)) AS sim
		FROM stores
		WHERE active
		  AND (name % $1 OR address % $1 OR name ILIKE '%' || $1 || '%' OR chain ILIKE $1)
		ORDER BY sim DESC, name
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	stores := []domain.Store{}
	for rows.Next() {
		var sim float64
		s, err := scanStore(rows, &sim)
		if err != nil {
			return nil, mapErr(err)
		}
		stores = append(stores, *s)
	}
	return stores, mapErr(rows.Err())
}

func scanStore(row pgx.Row, extra ...any) (*domain.Store, error) {
	var (
		s        domain.Store
		geofence []byte
		wifi     []byte
	)
	dest := []any{
		&s.ID, &s.Name, &s.Address, &s.Chain,
		&s.Location.Lat, &s.Location.Lng,
		&geofence, &wifi, &s.WICAuthorized, &s.Active,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if len(geofence) > 0 && string(geofence) != "null" {
		var g domain.Geofence
		if err := json.Unmarshal(geofence, &g); err != nil {
			return nil, fmt.Errorf("store %s geofence: %w", s.ID, err)
		}
		s.Geofence = &g
	}
	if len(wifi) > 0 {
		if err := json.Unmarshal(wifi, &s.WiFiNetworks); err != nil {
			return nil, fmt.Errorf("store %s wifi: %w", s.ID, err)
		}
	}
	return &s, nil
}

// mapErr translates driver errors into directory sentinels. Query and data
// errors pass through unchanged.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("postgres %s: %w", pgErr.Code, err)
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %v", domain.ErrDirectoryUnavailable, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrNetwork, err)
}
