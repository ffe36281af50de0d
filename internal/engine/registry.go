package engine

import "sync"

// Registry holds the live market aggregates by ID. Aggregates are hydrated
// lazily from the store by the service layer and kept here so repeated calls
// hit the same serialized state machine.
type Registry struct {
	mu      sync.RWMutex
	markets map[string]*Market
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{markets: make(map[string]*Market)}
}

// Get returns the aggregate for id, if present.
func (r *Registry) Get(id string) (*Market, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.markets[id]
	return m, ok
}

// Put stores an aggregate, returning the existing one if another goroutine
// hydrated the same market first.
func (r *Registry) Put(id string, m *Market) *Market {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.markets[id]; ok {
		return existing
	}
	r.markets[id] = m
	return m
}

// Remove drops an aggregate, typically after the sweeper closed it.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.markets, id)
}

// Len returns the number of live aggregates.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.markets)
}
