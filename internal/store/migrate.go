package store

import (
	"context"
	"fmt"
)

// Migrate creates the listings schema if it is not there yet. The unique
// index on (source, source_id) is what upserts key on.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS listings (
			id               UUID PRIMARY KEY,
			source           TEXT NOT NULL,
			source_id        TEXT NOT NULL,
			source_url       TEXT NOT NULL DEFAULT '',
			title            TEXT NOT NULL DEFAULT '',
			description      TEXT,
			price            DOUBLE PRECISION,
			surface          DOUBLE PRECISION,
			rooms            INTEGER,
			bedrooms         INTEGER,
			baths            INTEGER,
			city             TEXT,
			postal_code      TEXT,
			address          TEXT,
			latitude         DOUBLE PRECISION,
			longitude        DOUBLE PRECISION,
			property_type    TEXT,
			energy_class     TEXT,
			furnished        BOOLEAN NOT NULL DEFAULT FALSE,
			charges_included BOOLEAN NOT NULL DEFAULT FALSE,
			images           JSONB NOT NULL DEFAULT '[]'::jsonb,
			is_active        BOOLEAN NOT NULL DEFAULT TRUE,
			first_seen       TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_updated     TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS listings_source_source_id_idx
			ON listings (source, source_id)`,
		`CREATE INDEX IF NOT EXISTS listings_city_idx ON listings (city)`,
		`CREATE INDEX IF NOT EXISTS listings_active_idx ON listings (is_active)`,
	}

	for _, stmt := range stmts {
		if _, err := d.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
