package library

import (
	"context"
	"database/sql"
	"errors"
)

// SavePosition stores an opaque position token for a book.
func (l *Library) SavePosition(ctx context.Context, bookID, position string) error {
	_, err := l.db.ExecContext(ctx, `
INSERT INTO positions (book_id, position, updated_at) VALUES (?, ?, ?)
ON CONFLICT(book_id) DO UPDATE SET position = excluded.position, updated_at = excluded.updated_at`,
		bookID, position, l.now().UnixMilli())
	return err
}

// Position returns the stored position token, or ErrNotFound.
func (l *Library) Position(ctx context.Context, bookID string) (string, error) {
	var position string
	err := l.db.QueryRowContext(ctx, "SELECT position FROM positions WHERE book_id = ?", bookID).Scan(&position)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return position, err
}

// SaveLocations stores an encoded pagination index for a book.
func (l *Library) SaveLocations(ctx context.Context, bookID string, data []byte) error {
	_, err := l.db.ExecContext(ctx, `
INSERT INTO locations (book_id, data, updated_at) VALUES (?, ?, ?)
ON CONFLICT(book_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		bookID, data, l.now().UnixMilli())
	return err
}

// Locations returns the encoded pagination index, or ErrNotFound.
func (l *Library) Locations(ctx context.Context, bookID string) ([]byte, error) {
	var data []byte
	err := l.db.QueryRowContext(ctx, "SELECT data FROM locations WHERE book_id = ?", bookID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return data, err
}

// SetPreference stores a numeric preference.
func (l *Library) SetPreference(ctx context.Context, key string, value float64) error {
	_, err := l.db.ExecContext(ctx, `
INSERT INTO preferences (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// Preference returns a numeric preference and whether it was set.
func (l *Library) Preference(ctx context.Context, key string) (float64, bool, error) {
	var value float64
	err := l.db.QueryRowContext(ctx, "SELECT value FROM preferences WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return value, true, nil
}
