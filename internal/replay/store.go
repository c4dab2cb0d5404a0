package replay

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound reports a recording id with no row.
var ErrNotFound = errors.New("replay: recording not found")

// Recording describes a stored recording without its bytes.
type Recording struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	Entries   int       `json:"entries"`
	Duration  float64   `json:"duration"`
	Size      int       `json:"size"`
}

// Store keeps recordings in SQLite under ULID keys, so listing by id is also
// listing by creation time.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// OpenStore creates or opens the database at path. ":memory:" is accepted
// for tests.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open recordings database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect recordings database: %w", err)
	}
	// SQLite has a single writer; a single connection also keeps an
	// in-memory database alive across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply recordings schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save validates and stores a recording.
func (s *Store) Save(ctx context.Context, name string, data []byte) (Recording, error) {
	entries, err := Decode(data)
	if err != nil {
		return Recording{}, err
	}
	created := s.now()
	rec := Recording{
		ID:        ulid.MustNew(ulid.Timestamp(created), ulid.DefaultEntropy()).String(),
		Name:      name,
		CreatedAt: created,
		Entries:   len(entries),
		Duration:  Duration(entries),
		Size:      len(data),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO recordings (id, name, created_at, entries, duration, data) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, created.UnixMilli(), rec.Entries, rec.Duration, data)
	if err != nil {
		return Recording{}, fmt.Errorf("save recording %q: %w", name, err)
	}
	return rec, nil
}

// Load returns the bytes of recording id.
func (s *Store) Load(ctx context.Context, id string) ([]byte, error) {
	if _, err := ulid.ParseStrict(id); err != nil {
		return nil, fmt.Errorf("%w: %q is not a recording id", ErrNotFound, id)
	}
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM recordings WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load recording %s: %w", id, err)
	}
	return data, nil
}

// List returns every recording, oldest first.
func (s *Store) List(ctx context.Context) ([]Recording, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at, entries, duration, length(data) FROM recordings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	defer rows.Close()

	var out []Recording
	for rows.Next() {
		var rec Recording
		var created int64
		if err := rows.Scan(&rec.ID, &rec.Name, &created, &rec.Entries, &rec.Duration, &rec.Size); err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		rec.CreatedAt = time.UnixMilli(created)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete removes recording id.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM recordings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete recording %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
