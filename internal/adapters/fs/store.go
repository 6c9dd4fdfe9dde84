// Package fs implements ports.BeaconStore as a single JSON file.
package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bft-labs/beacons/internal/domain"
)

// FileName is the name of the store file inside its directory.
const FileName = "beacons.json"

type document struct {
	NextID  int64           `json:"next_id"`
	Records []domain.Record `json:"records"`
}

// Store keeps every record in memory and rewrites the file on each change.
type Store struct {
	mu      sync.Mutex
	dir     string
	clock   func() time.Time
	nextID  int64
	records map[int64]domain.Record
}

// Open loads the store file from dir. A missing file yields an empty store.
func Open(dir string) (*Store, error) {
	s := &Store{
		dir:     dir,
		clock:   time.Now,
		records: make(map[int64]domain.Record),
	}

	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.Path(), err)
	}
	s.nextID = doc.NextID
	for _, r := range doc.Records {
		s.records[r.StorageID] = r
		if r.StorageID > s.nextID {
			s.nextID = r.StorageID
		}
	}
	return s, nil
}

// Path returns the full path to the store file.
func (s *Store) Path() string {
	return filepath.Join(s.dir, FileName)
}

// Insert implements ports.BeaconStore.
func (s *Store) Insert(_ context.Context, r domain.Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock().UTC()
	s.nextID++
	r.StorageID = s.nextID
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	s.records[r.StorageID] = r
	if err := s.flush(); err != nil {
		delete(s.records, r.StorageID)
		s.nextID--
		return 0, err
	}
	return r.StorageID, nil
}

// Update implements ports.BeaconStore.
func (s *Store) Update(_ context.Context, r domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.records[r.StorageID]
	if !ok {
		return nil
	}
	r.CreatedAt = old.CreatedAt
	r.UpdatedAt = s.clock().UTC()
	s.records[r.StorageID] = r
	if err := s.flush(); err != nil {
		s.records[r.StorageID] = old
		return err
	}
	return nil
}

// UpdateState implements ports.BeaconStore.
func (s *Store) UpdateState(_ context.Context, id int64, st domain.ActiveState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.records[id]
	if !ok {
		return nil
	}
	r := old
	r.Desired = st
	r.UpdatedAt = s.clock().UTC()
	s.records[id] = r
	if err := s.flush(); err != nil {
		s.records[id] = old
		return err
	}
	return nil
}

// Delete implements ports.BeaconStore.
func (s *Store) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.records[id]
	if !ok {
		return nil
	}
	delete(s.records, id)
	if err := s.flush(); err != nil {
		s.records[id] = old
		return err
	}
	return nil
}

// Get implements ports.BeaconStore.
func (s *Store) Get(_ context.Context, id int64) (domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return domain.Record{}, fmt.Errorf("beacon %d: %w", id, domain.ErrNotFound)
	}
	return r, nil
}

// List implements ports.BeaconStore.
func (s *Store) List(_ context.Context) ([]domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(), nil
}

// Close implements ports.BeaconStore. The file is always up to date.
func (s *Store) Close() error { return nil }

func (s *Store) sorted() []domain.Record {
	out := make([]domain.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StorageID < out[j].StorageID })
	return out
}

// flush writes the whole document to a temp file and renames it into place.
func (s *Store) flush() error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(document{NextID: s.nextID, Records: s.sorted()}, "", "  ")
	if err != nil {
		return err
	}

	path := s.Path()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
