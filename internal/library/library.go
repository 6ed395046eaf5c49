// Package library is the local record store: recently opened books, reading
// positions, cached pagination indexes and numeric preferences.
package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// MaxBooks is how many recent books are kept; older ones are pruned.
const MaxBooks = 50

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("library: not found")

// Book is one entry in the recent-books ledger.
type Book struct {
	ID              string
	Title           string
	Author          string
	CoverURL        string
	LastOpened      time.Time
	Progress        float64
	CurrentPosition string
	FileType        string
	FilePath        string
}

// Library wraps a single-connection SQLite database.
type Library struct {
	db  *sql.DB
	log *zap.Logger
	now func() time.Time
}

// Open creates the database file and schema if needed.
func Open(path string, logger *zap.Logger) (*Library, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &Library{db: db, log: logger.Named("library"), now: time.Now}, nil
}

// Close releases the database.
func (l *Library) Close() error {
	return l.db.Close()
}

// Upsert records that a book was opened and prunes the ledger to MaxBooks.
// Progress and position are kept when the caller leaves them zero.
func (l *Library) Upsert(ctx context.Context, b Book) error {
	if strings.TrimSpace(b.ID) == "" {
		return errors.New("library: book id is required")
	}
	if b.LastOpened.IsZero() {
		b.LastOpened = l.now()
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
INSERT INTO books (id, title, author, cover_url, last_opened, progress, current_position, file_type, file_path)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	title = excluded.title,
	author = excluded.author,
	cover_url = excluded.cover_url,
	last_opened = excluded.last_opened,
	progress = CASE WHEN excluded.progress > 0 THEN excluded.progress ELSE books.progress END,
	current_position = CASE WHEN excluded.current_position <> '' THEN excluded.current_position ELSE books.current_position END,
	file_type = excluded.file_type,
	file_path = excluded.file_path`,
		b.ID, b.Title, b.Author, b.CoverURL, b.LastOpened.UnixMilli(), clampProgress(b.Progress),
		b.CurrentPosition, b.FileType, b.FilePath)
	if err != nil {
		return fmt.Errorf("upsert book: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
DELETE FROM books WHERE id NOT IN (
	SELECT id FROM books ORDER BY last_opened DESC, id LIMIT ?
)`, MaxBooks)
	if err != nil {
		return fmt.Errorf("prune books: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		l.log.Debug("pruned recent books", zap.Int64("count", n))
	}
	return tx.Commit()
}

// Book returns one ledger entry.
func (l *Library) Book(ctx context.Context, id string) (Book, error) {
	row := l.db.QueryRowContext(ctx, `
SELECT id, title, author, cover_url, last_opened, progress, current_position, file_type, file_path
FROM books WHERE id = ?`, id)
	b, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Book{}, ErrNotFound
	}
	return b, err
}

// Recent lists books most recently opened first.
func (l *Library) Recent(ctx context.Context, limit int) ([]Book, error) {
	if limit <= 0 || limit > MaxBooks {
		limit = MaxBooks
	}
	rows, err := l.db.QueryContext(ctx, `
SELECT id, title, author, cover_url, last_opened, progress, current_position, file_type, file_path
FROM books ORDER BY last_opened DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// Remove deletes a book and everything stored for it.
func (l *Library) Remove(ctx context.Context, id string) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, stmt := range []string{
		"DELETE FROM books WHERE id = ?",
		"DELETE FROM positions WHERE book_id = ?",
		"DELETE FROM locations WHERE book_id = ?",
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// UpdateProgress stores the reading percentage and position token of a book.
func (l *Library) UpdateProgress(ctx context.Context, id string, progress float64, position string) error {
	res, err := l.db.ExecContext(ctx,
		"UPDATE books SET progress = ?, current_position = ? WHERE id = ?",
		clampProgress(progress), position, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBook(s scanner) (Book, error) {
	var (
		b      Book
		millis int64
	)
	if err := s.Scan(&b.ID, &b.Title, &b.Author, &b.CoverURL, &millis, &b.Progress, &b.CurrentPosition, &b.FileType, &b.FilePath); err != nil {
		return Book{}, err
	}
	b.LastOpened = time.UnixMilli(millis)
	return b, nil
}

func clampProgress(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
