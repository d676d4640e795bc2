package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"food-dispatch-service/internal/domain"
	"food-dispatch-service/internal/platform/obs"
	"strings"
	"time"
)

// SQLGeocodeCache maps normalized addresses to coordinates. Entries older
// than MaxAge are treated as misses so moved or corrected addresses recover.
type SQLGeocodeCache struct {
	DB     *sql.DB
	MaxAge time.Duration
}

func NewSQLGeocodeCache(db *sql.DB, maxAge time.Duration) *SQLGeocodeCache {
	return &SQLGeocodeCache{DB: db, MaxAge: maxAge}
}

// Lookup returns cached coordinates for the given normalized addresses.
func (s *SQLGeocodeCache) Lookup(
	ctx context.Context,
	addresses []string,
) (_ map[string]domain.Coordinates, err error) {
	defer obs.Time(ctx, "geocode.cache.Lookup")(&err)

	if s.DB == nil {
		return nil, errors.New("geocode cache: db is nil")
	}

	keys := uniqueKeys(addresses)
	if len(keys) == 0 {
		return map[string]domain.Coordinates{}, nil
	}

	// Zero MaxAge never expires.
	oldest := time.Time{}
	if s.MaxAge > 0 {
		oldest = time.Now().Add(-s.MaxAge)
	}

	rows, err := s.DB.QueryContext(ctx, `
	SELECT address, lon, lat
	FROM geocode_cache
	WHERE address = ANY($1::text[])
		AND resolved_at >= $2;
	`, keys, oldest)
	if err != nil {
		return nil, fmt.Errorf("lookup geocode cache: query geocode_cache table: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.Coordinates, len(keys))
	for rows.Next() {
		var addr string
		var c domain.Coordinates
		if err := rows.Scan(&addr, &c.Lon, &c.Lat); err != nil {
			return nil, fmt.Errorf("lookup geocode cache: scan rows: %w", err)
		}
		out[addr] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lookup geocode cache: row iteration: %w", err)
	}

	return out, nil
}

// Store upserts resolved coordinates and refreshes their resolution time.
func (s *SQLGeocodeCache) Store(ctx context.Context, resolved map[string]domain.Coordinates) error {
	if s.DB == nil {
		return errors.New("geocode cache: db is nil")
	}
	if len(resolved) == 0 {
		return nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store geocode cache: db begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO geocode_cache (address, lon, lat, resolved_at)
	VALUES ($1, $2, $3, now())
	ON CONFLICT (address) DO UPDATE
	SET lon = EXCLUDED.lon,
		lat = EXCLUDED.lat,
		resolved_at = EXCLUDED.resolved_at;
	`)
	if err != nil {
		return fmt.Errorf("store geocode cache: db prepare: %w", err)
	}
	defer stmt.Close()

	for addr, c := range resolved {
		if strings.TrimSpace(addr) == "" {
			return errors.New("store geocode cache: empty address key")
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("store geocode cache %q: %w", addr, err)
		}
		if _, err := stmt.ExecContext(ctx, addr, c.Lon, c.Lat); err != nil {
			return fmt.Errorf("store geocode cache %q: %w", addr, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store geocode cache commit: %w", err)
	}
	return nil
}

func uniqueKeys(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	out := make([]string, 0, len(addresses))
	for _, a := range addresses {
		a = domain.NormalizeAddress(a)
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}
