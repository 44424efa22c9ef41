package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"locascan-engine/internal/domain"
)

const listingColumns = `id, source, source_id, source_url, title, description,
	price, surface, rooms, bedrooms, baths,
	city, postal_code, address, latitude, longitude,
	property_type, energy_class, furnished, charges_included,
	images, is_active, first_seen, last_updated`

// UpsertListing inserts a canonical record or refreshes the row that already
// carries its (source, source_id) key. first_seen is only written on insert;
// a refresh reactivates the row. Returns the stored listing and whether it
// was newly created.
func (d *DB) UpsertListing(ctx context.Context, c domain.CanonicalListing) (domain.Listing, bool, error) {
	images, err := json.Marshal(c.Images)
	if err != nil {
		return domain.Listing{}, false, fmt.Errorf("encode images: %w", err)
	}

	query := `
INSERT INTO listings (id, source, source_id, source_url, title, description,
	price, surface, rooms, bedrooms, baths,
	city, postal_code, address, latitude, longitude,
	property_type, energy_class, furnished, charges_included,
	images, is_active, first_seen, last_updated)
VALUES ($1, $2, $3, $4, $5, $6,
	$7, $8, $9, $10, $11,
	$12, $13, $14, $15, $16,
	$17, $18, $19, $20,
	$21, TRUE, now(), now())
ON CONFLICT (source, source_id) DO UPDATE SET
	source_url = EXCLUDED.source_url,
	title = EXCLUDED.title,
	description = EXCLUDED.description,
	price = EXCLUDED.price,
	surface = EXCLUDED.surface,
	rooms = EXCLUDED.rooms,
	bedrooms = EXCLUDED.bedrooms,
	baths = EXCLUDED.baths,
	city = EXCLUDED.city,
	postal_code = EXCLUDED.postal_code,
	address = EXCLUDED.address,
	latitude = EXCLUDED.latitude,
	longitude = EXCLUDED.longitude,
	property_type = EXCLUDED.property_type,
	energy_class = EXCLUDED.energy_class,
	furnished = EXCLUDED.furnished,
	charges_included = EXCLUDED.charges_included,
	images = EXCLUDED.images,
	is_active = TRUE,
	last_updated = now()
RETURNING id, first_seen, last_updated, (xmax = 0) AS inserted`

	var (
		l        domain.Listing
		inserted bool
	)
	l.CanonicalListing = c
	l.IsActive = true

	err = d.Pool.QueryRow(ctx, query,
		uuid.New(), c.Source, c.SourceID, c.SourceURL, c.Title, c.Description,
		c.Price, c.Surface, c.Rooms, c.Bedrooms, c.Baths,
		c.City, c.PostalCode, c.Address, c.Latitude, c.Longitude,
		c.PropertyType, c.EnergyClass, c.Furnished, c.ChargesIncluded,
		images,
	).Scan(&l.ID, &l.FirstSeen, &l.LastUpdated, &inserted)
	if err != nil {
		return domain.Listing{}, false, fmt.Errorf("upsert listing %s/%s: %w", c.Source, c.SourceID, err)
	}
	return l, inserted, nil
}

// DeactivateStale flips is_active off for a source's rows not seen within
// maxAge. Returns how many rows were deactivated.
func (d *DB) DeactivateStale(ctx context.Context, source string, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge)
	tag, err := d.Pool.Exec(ctx, `
UPDATE listings SET is_active = FALSE
WHERE source = $1 AND is_active AND last_updated < $2`, source, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deactivate stale %s: %w", source, err)
	}
	return tag.RowsAffected(), nil
}

// ListingFilter narrows SearchListings. Zero values mean "no constraint";
// ActiveOnly defaults to showing everything.
type ListingFilter struct {
	Source     string
	City       string
	PostalCode string
	PriceMin   *float64
	PriceMax   *float64
	SurfaceMin *float64
	RoomsMin   *int
	ActiveOnly bool
	Limit      int
	Offset     int
}

func (d *DB) SearchListings(ctx context.Context, f ListingFilter) ([]domain.Listing, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, val any) {
		args = append(args, val)
		where = append(where, strings.Replace(cond, "?", "$"+strconv.Itoa(len(args)), 1))
	}

	if f.Source != "" {
		add("source = ?", f.Source)
	}
	if f.City != "" {
		add("lower(city) = lower(?)", f.City)
	}
	if f.PostalCode != "" {
		add("postal_code = ?", f.PostalCode)
	}
	if f.PriceMin != nil {
		add("price >= ?", *f.PriceMin)
	}
	if f.PriceMax != nil {
		add("price <= ?", *f.PriceMax)
	}
	if f.SurfaceMin != nil {
		add("surface >= ?", *f.SurfaceMin)
	}
	if f.RoomsMin != nil {
		add("rooms >= ?", *f.RoomsMin)
	}
	if f.ActiveOnly {
		where = append(where, "is_active")
	}

	query := "SELECT " + listingColumns + " FROM listings"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY last_updated DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := d.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search listings: %w", err)
	}
	defer rows.Close()

	listings := make([]domain.Listing, 0)
	for rows.Next() {
		var (
			l      domain.Listing
			images []byte
		)
		err := rows.Scan(
			&l.ID, &l.Source, &l.SourceID, &l.SourceURL, &l.Title, &l.Description,
			&l.Price, &l.Surface, &l.Rooms, &l.Bedrooms, &l.Baths,
			&l.City, &l.PostalCode, &l.Address, &l.Latitude, &l.Longitude,
			&l.PropertyType, &l.EnergyClass, &l.Furnished, &l.ChargesIncluded,
			&images, &l.IsActive, &l.FirstSeen, &l.LastUpdated,
		)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		if err := json.Unmarshal(images, &l.Images); err != nil {
			return nil, fmt.Errorf("decode images: %w", err)
		}
		if l.Images == nil {
			l.Images = []string{}
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listings: %w", err)
	}
	return listings, nil
}

// CountListings reports total and active rows, optionally scoped to a source.
func (d *DB) CountListings(ctx context.Context, source string) (total, active int64, err error) {
	query := `SELECT count(*), count(*) FILTER (WHERE is_active) FROM listings`
	var args []any
	if source != "" {
		query += ` WHERE source = $1`
		args = append(args, source)
	}
	if err := d.Pool.QueryRow(ctx, query, args...).Scan(&total, &active); err != nil {
		return 0, 0, fmt.Errorf("count listings: %w", err)
	}
	return total, active, nil
}
