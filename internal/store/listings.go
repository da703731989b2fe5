package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fenimore/stuff/internal/domain"
)

var (
	// ErrDuplicate means the URL is already in the store. Expected and
	// benign during dedup; callers skip and move on.
	ErrDuplicate = errors.New("store: duplicate url")
	// ErrNotFound means an update referenced an id the store has never
	// assigned. That is a caller bug, not an expected condition.
	ErrNotFound = errors.New("store: listing not found")
)

// time is stored as RFC3339 text; lexical order matches chronological order
// so the time indexes sort correctly.
const timeLayout = time.RFC3339

const listingColumns = `id, title, url, price, time, neighborhood, city, longitude, latitude, image_urls, delivered, attempts`

// Insert adds a listing and returns the assigned id. The url column's UNIQUE
// constraint makes a second insert of the same url come back as
// ErrDuplicate.
func (d *DB) Insert(ctx context.Context, l domain.Listing) (int64, error) {
	res, err := d.Pool.ExecContext(ctx, `
INSERT OR IGNORE INTO stuff (title, url, price, time, neighborhood, city, longitude, latitude, image_urls, delivered, attempts)
VALUES (?,?,?,?,?,?,?,?,?,?,?);`,
		l.Title,
		l.URL,
		l.Price,
		l.PostedAt.Format(timeLayout),
		l.Neighborhood,
		l.City,
		longitudeOf(l),
		latitudeOf(l),
		imageJSON(l.ImageURLs),
		l.Delivered,
		l.Attempts,
	)
	if err != nil {
		return 0, fmt.Errorf("insert listing: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return 0, fmt.Errorf("%w: %s", ErrDuplicate, l.URL)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert listing: %w", err)
	}
	return id, nil
}

// GetByURL is the dedup lookup. A url the store has never seen returns
// (nil, nil).
func (d *DB) GetByURL(ctx context.Context, url string) (*domain.Listing, error) {
	row := d.Pool.QueryRowContext(ctx, `
SELECT `+listingColumns+` FROM stuff WHERE url = ?;`, url)
	l, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get by url: %w", err)
	}
	return &l, nil
}

// GetAll returns every listing, newest first.
func (d *DB) GetAll(ctx context.Context) ([]domain.Listing, error) {
	return d.query(ctx, `
SELECT `+listingColumns+` FROM stuff ORDER BY time DESC;`)
}

// GetUndelivered returns listings still waiting on delivery, newest first,
// skipping rows whose attempt count has reached maxAttempts (those are
// dead-lettered in place). maxAttempts <= 0 means no cap.
func (d *DB) GetUndelivered(ctx context.Context, maxAttempts int) ([]domain.Listing, error) {
	if maxAttempts <= 0 {
		return d.query(ctx, `
SELECT `+listingColumns+` FROM stuff WHERE delivered = 0 ORDER BY time DESC;`)
	}
	return d.query(ctx, `
SELECT `+listingColumns+` FROM stuff WHERE delivered = 0 AND attempts < ? ORDER BY time DESC;`, maxAttempts)
}

// Update overwrites the full row identified by l.ID.
func (d *DB) Update(ctx context.Context, l domain.Listing) error {
	res, err := d.Pool.ExecContext(ctx, `
UPDATE stuff
SET title = ?, url = ?, price = ?, time = ?, neighborhood = ?, city = ?,
    longitude = ?, latitude = ?, image_urls = ?, delivered = ?, attempts = ?
WHERE id = ?;`,
		l.Title,
		l.URL,
		l.Price,
		l.PostedAt.Format(timeLayout),
		l.Neighborhood,
		l.City,
		longitudeOf(l),
		latitudeOf(l),
		imageJSON(l.ImageURLs),
		l.Delivered,
		l.Attempts,
		l.ID,
	)
	if err != nil {
		return fmt.Errorf("update listing: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, l.ID)
	}
	return nil
}

// MarkDelivered flips delivered to true. The transition is one-way; nothing
// ever sets it back.
func (d *DB) MarkDelivered(ctx context.Context, id int64) error {
	res, err := d.Pool.ExecContext(ctx, `UPDATE stuff SET delivered = 1 WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return nil
}

// BumpAttempts records one failed delivery attempt.
func (d *DB) BumpAttempts(ctx context.Context, id int64) error {
	res, err := d.Pool.ExecContext(ctx, `UPDATE stuff SET attempts = attempts + 1 WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("bump attempts: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return nil
}

func (d *DB) query(ctx context.Context, q string, args ...any) ([]domain.Listing, error) {
	rows, err := d.Pool.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanListing(s interface{ Scan(...any) error }) (domain.Listing, error) {
	var l domain.Listing
	var ts, imgs string
	var lon, lat sql.NullFloat64

	err := s.Scan(
		&l.ID,
		&l.Title,
		&l.URL,
		&l.Price,
		&ts,
		&l.Neighborhood,
		&l.City,
		&lon,
		&lat,
		&imgs,
		&l.Delivered,
		&l.Attempts,
	)
	if err != nil {
		return domain.Listing{}, err
	}

	l.PostedAt, err = time.Parse(timeLayout, ts)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("bad time column %q: %w", ts, err)
	}
	// "null" round-trips a nil slice, so never-enriched stays
	// distinguishable from enriched-and-empty
	if err := json.Unmarshal([]byte(imgs), &l.ImageURLs); err != nil {
		return domain.Listing{}, fmt.Errorf("bad image_urls column %q: %w", imgs, err)
	}
	if lon.Valid && lat.Valid {
		l.Coordinates = &domain.Coordinates{Longitude: lon.Float64, Latitude: lat.Float64}
	}
	return l, nil
}

func imageJSON(urls []string) string {
	b, _ := json.Marshal(urls)
	return string(b)
}

func longitudeOf(l domain.Listing) any {
	if l.Coordinates == nil {
		return nil
	}
	return l.Coordinates.Longitude
}

func latitudeOf(l domain.Listing) any {
	if l.Coordinates == nil {
		return nil
	}
	return l.Coordinates.Latitude
}
