// Package store is the single source of truth for notes and their audio
// blocks: a SQLite database plus the transactional save path that keeps a
// note's stored block set consistent with what its content references.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/SarcasticNickname/AudioNotes-sub000/internal/domain"
)

//go:embed schema.sql
var schema string

// ErrNotFound is returned when a note id has no row.
var ErrNotFound = errors.New("note not found")

// Store handles database operations.
type Store struct {
	db        *sqlx.DB
	observers *observerRegistry
}

// New creates a new Store with the given database path.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection keeps in-memory databases coherent and serializes
	// writers the way SQLite wants them anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, observers: newObserverRegistry()}, nil
}

// NewWithDB wraps an existing database handle. Used by tests that inject a
// mocked connection.
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{db: db, observers: newObserverRegistry()}
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.observers.closeAll()
	return s.db.Close()
}

// GetNote retrieves a note by id. Returns ErrNotFound for a missing row.
func (s *Store) GetNote(ctx context.Context, id int64) (*domain.Note, error) {
	var n domain.Note
	err := s.db.GetContext(ctx, &n,
		"SELECT id, title, content, category, is_archived, reminder_at, created_at, updated_at FROM notes WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get note: %w", err)
	}
	// A corrupt stored category name must not propagate.
	n.Category = domain.CategoryFromName(string(n.Category))
	return &n, nil
}

// GetAudioBlocks returns a note's blocks in persisted display order.
func (s *Store) GetAudioBlocks(ctx context.Context, noteID int64) ([]domain.AudioBlock, error) {
	var blocks []domain.AudioBlock
	err := s.db.SelectContext(ctx, &blocks,
		"SELECT id, note_id, order_index, file_path, duration_ms FROM audio_blocks WHERE note_id = ? ORDER BY order_index", noteID)
	if err != nil {
		return nil, fmt.Errorf("get audio blocks: %w", err)
	}
	return blocks, nil
}

// ListFilter narrows and orders a note listing.
type ListFilter struct {
	Archived *bool
	Category *domain.Category
	Query    string // substring match on title or content
	SortBy   string // updated_at (default), created_at, title
	SortAsc  bool
	Limit    int
}

// ListNotes returns notes matching the filter.
func (s *Store) ListNotes(ctx context.Context, filter ListFilter) ([]domain.Note, error) {
	var sortBy string
	switch strings.ToLower(filter.SortBy) {
	case "created_at", "title", "updated_at":
		sortBy = strings.ToLower(filter.SortBy)
	default:
		sortBy = "updated_at"
	}
	dir := "DESC"
	if filter.SortAsc {
		dir = "ASC"
	}

	q := sq.Select("id", "title", "content", "category", "is_archived", "reminder_at", "created_at", "updated_at").
		From("notes").
		OrderBy(fmt.Sprintf("%s %s", sortBy, dir))

	if filter.Archived != nil {
		q = q.Where(sq.Eq{"is_archived": *filter.Archived})
	}
	if filter.Category != nil {
		q = q.Where(sq.Eq{"category": string(*filter.Category)})
	}
	if filter.Query != "" {
		like := "%" + filter.Query + "%"
		q = q.Where(sq.Or{sq.Like{"title": like}, sq.Like{"content": like}})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	var notes []domain.Note
	if err := s.db.SelectContext(ctx, &notes, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	for i := range notes {
		notes[i].Category = domain.CategoryFromName(string(notes[i].Category))
	}
	return notes, nil
}

// SetArchived toggles a note's archive flag.
func (s *Store) SetArchived(ctx context.Context, id int64, archived bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE notes SET is_archived = ?, updated_at = ? WHERE id = ?", archived, time.Now(), id)
	if err != nil {
		return fmt.Errorf("set archived: %w", err)
	}
	if ra, err := res.RowsAffected(); err == nil && ra == 0 {
		return ErrNotFound
	}
	s.notifyNote(ctx, id)
	return nil
}

// DeleteNote removes a note and, via cascade, its audio-block rows. It
// returns the file paths of the removed blocks so the caller can clean up
// the media files; row deletion never touches the filesystem itself.
//
// Path collection and row deletion run in one transaction so the returned
// paths are exactly the files the deleted rows pointed at, even with a
// concurrent save in flight.
func (s *Store) DeleteNote(ctx context.Context, id int64) ([]string, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	var paths []string
	if err := tx.SelectContext(ctx, &paths,
		"SELECT file_path FROM audio_blocks WHERE note_id = ? ORDER BY order_index", id); err != nil {
		return nil, fmt.Errorf("collect audio paths: %w", err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM notes WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("delete note: %w", err)
	}
	if ra, err := res.RowsAffected(); err == nil && ra == 0 {
		return nil, ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete: %w", err)
	}

	s.observers.notify(id, nil)
	return paths, nil
}
