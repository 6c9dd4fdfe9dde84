// Package sqlite implements ports.BeaconStore on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bft-labs/beacons/internal/domain"
)

const timeLayout = time.RFC3339Nano

// Store persists beacon records in a single table.
type Store struct {
	db    *sql.DB
	clock func() time.Time
}

// Open opens (or creates) the database at path and migrates the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Single writer; SQLite serializes anyway and this avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, clock: time.Now}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS beacons (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			payload TEXT NOT NULL,
			mode TEXT NOT NULL,
			tx_power TEXT NOT NULL,
			connectable INTEGER NOT NULL DEFAULT 0,
			flags INTEGER NOT NULL DEFAULT 0,
			name TEXT NOT NULL DEFAULT '',
			desired TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_beacons_desired ON beacons(desired);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Insert implements ports.BeaconStore.
func (s *Store) Insert(ctx context.Context, r domain.Record) (int64, error) {
	payload, err := json.Marshal(r.Payload)
	if err != nil {
		return 0, fmt.Errorf("encode payload: %w", err)
	}
	now := s.clock().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO beacons (kind, payload, mode, tx_power, connectable, flags, name, desired, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		r.Kind.String(), string(payload), r.Mode.String(), r.TxPower.String(),
		r.Connectable, r.Flags, r.Name, r.Desired.String(),
		r.CreatedAt.UTC().Format(timeLayout), now.Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("insert beacon: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert beacon: %w", err)
	}
	return id, nil
}

// Update implements ports.BeaconStore.
func (s *Store) Update(ctx context.Context, r domain.Record) error {
	payload, err := json.Marshal(r.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE beacons SET kind = ?, payload = ?, mode = ?, tx_power = ?, connectable = ?,
		 flags = ?, name = ?, desired = ?, updated_at = ? WHERE id = ?;`,
		r.Kind.String(), string(payload), r.Mode.String(), r.TxPower.String(),
		r.Connectable, r.Flags, r.Name, r.Desired.String(),
		s.clock().UTC().Format(timeLayout), r.StorageID,
	)
	if err != nil {
		return fmt.Errorf("update beacon %d: %w", r.StorageID, err)
	}
	return nil
}

// UpdateState implements ports.BeaconStore.
func (s *Store) UpdateState(ctx context.Context, id int64, st domain.ActiveState) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE beacons SET desired = ?, updated_at = ? WHERE id = ?;`,
		st.String(), s.clock().UTC().Format(timeLayout), id,
	)
	if err != nil {
		return fmt.Errorf("update beacon %d state: %w", id, err)
	}
	return nil
}

// Delete implements ports.BeaconStore.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM beacons WHERE id = ?;`, id); err != nil {
		return fmt.Errorf("delete beacon %d: %w", id, err)
	}
	return nil
}

const selectColumns = `SELECT id, kind, payload, mode, tx_power, connectable, flags, name, desired, created_at, updated_at FROM beacons`

// Get implements ports.BeaconStore.
func (s *Store) Get(ctx context.Context, id int64) (domain.Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?;`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Record{}, fmt.Errorf("beacon %d: %w", id, domain.ErrNotFound)
	}
	return r, err
}

// List implements ports.BeaconStore.
func (s *Store) List(ctx context.Context) ([]domain.Record, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY id;`)
	if err != nil {
		return nil, fmt.Errorf("list beacons: %w", err)
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (domain.Record, error) {
	var (
		r                             domain.Record
		kind, payload, mode, power    string
		desired, createdAt, updatedAt string
	)
	if err := sc.Scan(&r.StorageID, &kind, &payload, &mode, &power, &r.Connectable,
		&r.Flags, &r.Name, &desired, &createdAt, &updatedAt); err != nil {
		return domain.Record{}, err
	}

	var err error
	if r.Kind, err = domain.ParseKind(kind); err != nil {
		return domain.Record{}, fmt.Errorf("beacon %d: %w", r.StorageID, err)
	}
	if err := json.Unmarshal([]byte(payload), &r.Payload); err != nil {
		return domain.Record{}, fmt.Errorf("beacon %d payload: %w", r.StorageID, err)
	}
	if err := r.Mode.UnmarshalText([]byte(mode)); err != nil {
		return domain.Record{}, fmt.Errorf("beacon %d: %w", r.StorageID, err)
	}
	if err := r.TxPower.UnmarshalText([]byte(power)); err != nil {
		return domain.Record{}, fmt.Errorf("beacon %d: %w", r.StorageID, err)
	}
	if err := r.Desired.UnmarshalText([]byte(desired)); err != nil {
		return domain.Record{}, fmt.Errorf("beacon %d: %w", r.StorageID, err)
	}
	r.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	r.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return r, nil
}
