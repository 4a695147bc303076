package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hazyhaar/pagedrive/dbopen"
	"github.com/hazyhaar/pagedrive/dom"
)

// RestorationData is what a history entry needs to be restored.
type RestorationData struct {
	ScrollPosition *dom.Position `json:"scroll_position,omitempty"`
}

// merge overlays the set fields of other.
func (d RestorationData) merge(other RestorationData) RestorationData {
	if other.ScrollPosition != nil {
		p := *other.ScrollPosition
		d.ScrollPosition = &p
	}
	return d
}

// RestorationStore keeps restoration data by restoration identifier.
type RestorationStore interface {
	Get(ctx context.Context, id string) (RestorationData, error)
	Update(ctx context.Context, id string, data RestorationData) error
}

// MemoryStore is the default in-process store.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]RestorationData
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]RestorationData)}
}

// Get returns the data for id, zero if unknown.
func (s *MemoryStore) Get(_ context.Context, id string) (RestorationData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[id], nil
}

// Update merges data into the record for id.
func (s *MemoryStore) Update(_ context.Context, id string, data RestorationData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = s.data[id].merge(data)
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS restoration_data (
	restoration_id TEXT PRIMARY KEY,
	scroll_x       REAL,
	scroll_y       REAL,
	updated_at     INTEGER NOT NULL
);`

// SQLiteStore persists restoration data so a restarted session can restore
// scroll positions of entries recorded before.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the store at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(schema))
	if err != nil {
		return nil, fmt.Errorf("history: open store: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// NewSQLiteStore uses an already opened database.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("history: schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Get returns the data for id, zero if unknown.
func (s *SQLiteStore) Get(ctx context.Context, id string) (RestorationData, error) {
	var x, y sql.NullFloat64
	err := dbopen.QueryRow(ctx, s.db,
		`SELECT scroll_x, scroll_y FROM restoration_data WHERE restoration_id = ?`, []any{id}, &x, &y)
	if errors.Is(err, sql.ErrNoRows) {
		return RestorationData{}, nil
	}
	if err != nil {
		return RestorationData{}, fmt.Errorf("history: get: %w", err)
	}
	var d RestorationData
	if x.Valid && y.Valid {
		d.ScrollPosition = &dom.Position{X: x.Float64, Y: y.Float64}
	}
	return d, nil
}

// Update upserts the set fields of data for id.
func (s *SQLiteStore) Update(ctx context.Context, id string, data RestorationData) error {
	var x, y sql.NullFloat64
	if data.ScrollPosition != nil {
		x = sql.NullFloat64{Float64: data.ScrollPosition.X, Valid: true}
		y = sql.NullFloat64{Float64: data.ScrollPosition.Y, Valid: true}
	}
	_, err := dbopen.Exec(ctx, s.db, `
		INSERT INTO restoration_data (restoration_id, scroll_x, scroll_y, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(restoration_id) DO UPDATE SET
			scroll_x   = COALESCE(excluded.scroll_x, scroll_x),
			scroll_y   = COALESCE(excluded.scroll_y, scroll_y),
			updated_at = excluded.updated_at`,
		id, x, y, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("history: update: %w", err)
	}
	return nil
}
