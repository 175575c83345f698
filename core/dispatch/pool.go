package dispatch

import "sync"

// Pool is the routine candidate pool: bins due for scheduled pickup
// accumulate here and are consumed when a driver requests a routine route.
// Membership is deduplicated; arrival order is preserved.
type Pool struct {
	mu    sync.Mutex
	order []string
	seen  map[string]struct{}
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{seen: make(map[string]struct{})}
}

// Add queues a bin id. Duplicates are ignored.
func (p *Pool) Add(binID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.seen[binID]; ok {
		return
	}
	p.seen[binID] = struct{}{}
	p.order = append(p.order, binID)
}

// Take removes and returns every queued bin id.
func (p *Pool) Take() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.order
	p.order = nil
	p.seen = make(map[string]struct{})
	return out
}

// Return puts ids back after a failed route creation, preserving their
// eligibility for the next request.
func (p *Pool) Return(ids []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		if _, ok := p.seen[id]; ok {
			continue
		}
		p.seen[id] = struct{}{}
		p.order = append(p.order, id)
	}
}

// Len returns the number of queued bins.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}

// Contains reports whether the bin is queued.
func (p *Pool) Contains(binID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.seen[binID]
	return ok
}
