package channel

import "sync"

// Store is the keyed record store shared between the Consumer Worker
// (inserts) and the event loop (removes). It is named after the channel it
// is paired with, guaranteeing a one-to-one correspondence (spec.md §4.3).
//
// Contention is low by construction — one writer, one reader — so a single
// mutex is adequate; there is no third-party concurrent map in the
// examples pack worth pulling in for this (see DESIGN.md).
type Store struct {
	name string
	mu   sync.Mutex
	recs map[string]RecordEnvelope
}

func NewStore(name string) *Store {
	return &Store{name: name, recs: make(map[string]RecordEnvelope)}
}

func (s *Store) Name() string { return s.name }

// Insert is called from the Consumer Worker thread.
func (s *Store) Insert(token string, rec RecordEnvelope) {
	s.mu.Lock()
	s.recs[token] = rec
	s.mu.Unlock()
}

// Remove is called from the event loop. ok is false if the token is stale
// (already removed, or the endpoint was closed and the store cleared).
func (s *Store) Remove(token string) (rec RecordEnvelope, ok bool) {
	s.mu.Lock()
	rec, ok = s.recs[token]
	if ok {
		delete(s.recs, token)
	}
	s.mu.Unlock()
	return rec, ok
}

// Len reports the number of records currently held, for the memory-bound
// property in spec.md §8.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

// Clear discards all held records (endpoint close).
func (s *Store) Clear() {
	s.mu.Lock()
	s.recs = make(map[string]RecordEnvelope)
	s.mu.Unlock()
}
