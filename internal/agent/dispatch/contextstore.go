package dispatch

import "sync"

// ContextStore carries the structured-data specialist's generated query to the
// geospatial specialist within a single dispatcher turn. It holds one slot:
// a second structured-data delegation in the same turn overwrites the first,
// so the geospatial specialist only ever sees the latest query. The store is
// cleared at the start of every turn.
type ContextStore struct {
	mu    sync.Mutex
	query string
}

func NewContextStore() *ContextStore {
	return &ContextStore{}
}

// Put records the latest generated query.
func (s *ContextStore) Put(query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.query = query
}

// Get returns the stored query, or "" when nothing was stored this turn.
func (s *ContextStore) Get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

// Clear resets the slot for a new turn.
func (s *ContextStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.query = ""
}
