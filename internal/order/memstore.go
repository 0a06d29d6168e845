package order

import (
	"context"
	"fmt"
	"sync"
)

// MemStore is a map-backed Store used by tests and local development.
type MemStore struct {
	mu     sync.Mutex
	orders map[int64]*Order
	notes  map[int64][]string
}

// NewMemStore constructs an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{orders: map[int64]*Order{}, notes: map[int64][]string{}}
}

// Put inserts or replaces an order. Test setup helper.
func (s *MemStore) Put(o *Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.Meta == nil {
		o.Meta = map[string]string{}
	}
	s.orders[o.ID] = o
}

// Notes returns the audit notes recorded for an order.
func (s *MemStore) Notes(id int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.notes[id]))
	copy(out, s.notes[id])
	return out
}

// Get loads an order with its metadata.
func (s *MemStore) Get(_ context.Context, id int64) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *o
	clone.Meta = make(map[string]string, len(o.Meta))
	for k, v := range o.Meta {
		clone.Meta[k] = v
	}
	return &clone, nil
}

// UpdateStatus transitions the order and records a note when provided.
func (s *MemStore) UpdateStatus(_ context.Context, id int64, status Status, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	if note != "" {
		s.notes[id] = append(s.notes[id], note)
	}
	return nil
}

// SetMeta upserts one metadata key.
func (s *MemStore) SetMeta(_ context.Context, id int64, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.Meta[key] = value
	return nil
}

// DeleteMeta removes one metadata key.
func (s *MemStore) DeleteMeta(_ context.Context, id int64, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return ErrNotFound
	}
	delete(o.Meta, key)
	return nil
}

// FindIDByMeta resolves an order id by a stored metadata value.
func (s *MemStore) FindIDByMeta(_ context.Context, key, value string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, o := range s.orders {
		if o.Meta[key] == value {
			return id, nil
		}
	}
	return 0, ErrNotFound
}

// AddNote appends an audit note.
func (s *MemStore) AddNote(_ context.Context, id int64, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[id]; !ok {
		return ErrNotFound
	}
	s.notes[id] = append(s.notes[id], note)
	return nil
}

// MarkPaid marks the order paid and records the settlement reference.
func (s *MemStore) MarkPaid(ctx context.Context, id int64, trxID string) error {
	if err := s.UpdateStatus(ctx, id, StatusPaid, ""); err != nil {
		return err
	}
	return s.SetMeta(ctx, id, MetaTransactionID, trxID)
}

var _ Store = (*MemStore)(nil)

// String implements fmt.Stringer for debugging test failures.
func (s *MemStore) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("memstore(%d orders)", len(s.orders))
}
