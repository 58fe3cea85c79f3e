package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"

	"reclaim/internal/domain"
)

const queryTimeout = 2 * time.Second

// Meters per degree of latitude; longitude shrinks with cos(lat).
const metersPerDegree = 111320.0

const itemCols = `id, category, polarity, status, lat, lng, search_radius_m, reported_at, title, description, visual_tags, owner_ref`

// Upsert stores an item snapshot. Visual tags are owned by the enrichment
// path and deliberately left alone on conflict so a re-delivered
// item.created cannot wipe tags that already arrived.
func (s *ItemStore) Upsert(ctx context.Context, item domain.Item) error {
	tags, err := json.Marshal(item.VisualTags)
	if err != nil {
		return err
	}
	_, err = s.db.Pool.Exec(ctx, `
		INSERT INTO items (id, category, polarity, status, lat, lng, search_radius_m, reported_at, title, description, visual_tags, owner_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			category = EXCLUDED.category,
			polarity = EXCLUDED.polarity,
			status = EXCLUDED.status,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			search_radius_m = EXCLUDED.search_radius_m,
			reported_at = EXCLUDED.reported_at,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			owner_ref = EXCLUDED.owner_ref
	`, item.ID, item.Category, item.Polarity, item.Status, item.Lat, item.Lng,
		item.SearchRadiusM, item.ReportedAt, item.Title, item.Description, tags, item.OwnerRef)
	return wrapTimeout(err)
}

func (s *ItemStore) ApplyVisualTags(ctx context.Context, itemID string, tags []domain.VisualTag) error {
	data, err := json.Marshal(tags)
	if err != nil {
		return err
	}
	tag, err := s.db.Pool.Exec(ctx, `UPDATE items SET visual_tags = $2 WHERE id = $1`, itemID, data)
	if err != nil {
		return wrapTimeout(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("item %s: %w", itemID, domain.ErrNotFound)
	}
	return nil
}

func (s *ItemStore) Get(ctx context.Context, id string) (domain.Item, error) {
	row := s.db.Pool.QueryRow(ctx, `SELECT `+itemCols+` FROM items WHERE id = $1`, id)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Item{}, fmt.Errorf("item %s: %w", id, domain.ErrNotFound)
	}
	return item, wrapTimeout(err)
}

// FindCandidates is the pre-filter ahead of scoring: counter-polarity,
// active, inside the radius and the reporting window, nearest first, capped.
// The bounding box keeps the btree indexes on lat/lng/reported_at in play so
// the haversine expression only runs over a small slice of the table.
func (s *ItemStore) FindCandidates(ctx context.Context, item domain.Item, maxRadiusM float64, window time.Duration, limit int) ([]domain.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	latDelta := maxRadiusM / metersPerDegree
	lngDelta := 180.0
	if cosLat := math.Cos(item.Lat * math.Pi / 180); cosLat > 1e-6 {
		lngDelta = maxRadiusM / (metersPerDegree * cosLat)
	}

	const haversine = `2 * 6371000 * asin(sqrt(
		power(sin(radians((lat - $2) / 2)), 2) +
		cos(radians($2)) * cos(radians(lat)) *
		power(sin(radians((lng - $3) / 2)), 2)))`

	rows, err := s.db.Pool.Query(ctx, `
		SELECT `+itemCols+`, `+haversine+` AS distance_m
		FROM items
		WHERE polarity = $1
		  AND status = 'active'
		  AND id <> $4
		  AND reported_at BETWEEN $5 AND $6
		  AND lat BETWEEN $7 AND $8
		  AND lng BETWEEN $9 AND $10
		  AND `+haversine+` <= $11
		ORDER BY distance_m
		LIMIT $12
	`, item.Polarity.Counter(), item.Lat, item.Lng, item.ID,
		item.ReportedAt.Add(-window), item.ReportedAt.Add(window),
		item.Lat-latDelta, item.Lat+latDelta,
		item.Lng-lngDelta, item.Lng+lngDelta,
		maxRadiusM, limit)
	if err != nil {
		return nil, wrapTimeout(err)
	}
	defer rows.Close()

	var out []domain.Item
	for rows.Next() {
		var distance float64
		it, err := scanItemValues(rows, &distance)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, wrapTimeout(rows.Err())
}

func scanItem(row pgx.Row) (domain.Item, error) {
	var it domain.Item
	var tags []byte
	err := row.Scan(&it.ID, &it.Category, &it.Polarity, &it.Status, &it.Lat, &it.Lng,
		&it.SearchRadiusM, &it.ReportedAt, &it.Title, &it.Description, &tags, &it.OwnerRef)
	if err != nil {
		return it, err
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &it.VisualTags); err != nil {
			return it, err
		}
	}
	return it, nil
}

func scanItemValues(rows pgx.Rows, extra ...any) (domain.Item, error) {
	var it domain.Item
	var tags []byte
	dest := []any{&it.ID, &it.Category, &it.Polarity, &it.Status, &it.Lat, &it.Lng,
		&it.SearchRadiusM, &it.ReportedAt, &it.Title, &it.Description, &tags, &it.OwnerRef}
	dest = append(dest, extra...)
	if err := rows.Scan(dest...); err != nil {
		return it, err
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &it.VisualTags); err != nil {
			return it, err
		}
	}
	return it, nil
}
