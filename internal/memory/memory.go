// Package memory is an in-process record backend, used for local development
// and as the test double of the record service.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"adquisiciones/internal/core"
	"adquisiciones/internal/ports"
)

// Store keeps records and their change log in memory.
type Store struct {
	mu      sync.Mutex
	items   []core.Record
	history []core.HistoryEntry
	nextID  int64
	nextHID int64
	// Actor is attributed to changes when the context carries none.
	Actor string
}

var _ ports.Backend = (*Store)(nil)

// New returns a store holding copies of the given records. Records without
// an id get one assigned.
func New(seed []core.Record) *Store {
	s := &Store{nextID: 1, nextHID: 1, Actor: "sistema"}
	for _, r := range seed {
		if r.ID == 0 {
			r.ID = s.nextID
		}
		if r.ID >= s.nextID {
			s.nextID = r.ID + 1
		}
		s.items = append(s.items, r)
	}
	return s
}

// NewFromFile seeds the store from a JSON array of records in the API's
// format. An empty path yields an empty store.
func NewFromFile(path string) (*Store, error) {
	if path == "" {
		return New(nil), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed []core.Record
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return New(seed), nil
}

// List returns a copy of every record in insertion order.
func (s *Store) List(_ context.Context) ([]core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Record(nil), s.items...), nil
}

func (s *Store) Get(_ context.Context, id int64) (core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return core.Record{}, fmt.Errorf("record %d: %w", id, core.ErrNotFound)
	}
	return s.items[i], nil
}

// Create stores a new active record.
func (s *Store) Create(_ context.Context, r core.Record) (core.Record, error) {
	r = r.WithComputedTotal()
	if err := r.Validate(); err != nil {
		return core.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r.ID = s.nextID
	s.nextID++
	r.Active = true
	r.CreatedAt = core.Timestamp{Time: core.NowFunc()}
	r.ModifiedAt = core.Timestamp{}
	s.items = append(s.items, r)
	return r, nil
}

// Update replaces the editable fields of an existing record and logs one
// history entry per changed field.
func (s *Store) Update(ctx context.Context, r core.Record) (core.Record, error) {
	r = r.WithComputedTotal()
	if err := r.Validate(); err != nil {
		return core.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(r.ID)
	if i < 0 {
		return core.Record{}, fmt.Errorf("record %d: %w", r.ID, core.ErrNotFound)
	}
	old := s.items[i]
	r.Active = old.Active
	r.CreatedAt = old.CreatedAt

	changes := core.Diff(old, r)
	if len(changes) == 0 {
		return old, nil
	}
	now := core.NowFunc()
	r.ModifiedAt = core.Timestamp{Time: now}
	s.items[i] = r
	s.log(r.ID, changes, core.ActorFrom(ctx, s.Actor), now)
	return r, nil
}

func (s *Store) Deactivate(ctx context.Context, id int64) error {
	return s.setActive(ctx, id, false)
}

func (s *Store) Reactivate(ctx context.Context, id int64) error {
	return s.setActive(ctx, id, true)
}

func (s *Store) setActive(ctx context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("record %d: %w", id, core.ErrNotFound)
	}
	old := s.items[i]
	if old.Active == active {
		return nil
	}
	updated := old
	updated.Active = active
	now := core.NowFunc()
	updated.ModifiedAt = core.Timestamp{Time: now}
	s.items[i] = updated
	s.log(id, core.Diff(old, updated), core.ActorFrom(ctx, s.Actor), now)
	return nil
}

// History returns the change log of a record, oldest first.
func (s *Store) History(_ context.Context, id int64) ([]core.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOf(id) < 0 {
		return nil, fmt.Errorf("record %d: %w", id, core.ErrNotFound)
	}
	var out []core.HistoryEntry
	for _, h := range s.history {
		if h.RecordID == id {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *Store) log(id int64, changes []core.FieldChange, actor string, at time.Time) {
	for _, h := range core.HistoryEntries(id, changes, actor, at) {
		h.ID = s.nextHID
		s.nextHID++
		s.history = append(s.history, h)
	}
}

func (s *Store) indexOf(id int64) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}
