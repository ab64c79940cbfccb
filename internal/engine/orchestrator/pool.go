package orchestrator

import (
	"sync"

	"golang.org/x/sync/errgroup"

	"go.trai.ch/parablock/internal/core/domain"
)

// flight is one identity being worked on. dirty is set when the identity is submitted again
// while the flight runs; the worker then runs it once more before releasing it.
type flight struct {
	dirty bool
}

// pool runs work for identities on at most limit workers, one flight per identity.
type pool struct {
	work  func(domain.Identity)
	limit int
	group errgroup.Group

	mu      sync.Mutex
	active  int
	closed  bool
	pending []domain.Identity
	queued  map[domain.Identity]bool
	flights map[domain.Identity]*flight
}

func newPool(limit int, work func(domain.Identity)) *pool {
	limit = max(limit, 1)
	p := &pool{
		work:    work,
		limit:   limit,
		queued:  make(map[domain.Identity]bool),
		flights: make(map[domain.Identity]*flight),
	}
	p.group.SetLimit(limit)
	return p
}

// Submit schedules id. An identity already queued is not queued twice; an identity in flight
// is marked dirty instead.
func (p *pool) Submit(id domain.Identity) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if f, ok := p.flights[id]; ok {
		f.dirty = true
		p.mu.Unlock()
		return
	}
	if !p.queued[id] {
		p.queued[id] = true
		p.pending = append(p.pending, id)
	}
	start := p.active < p.limit
	if start {
		p.active++
	}
	p.mu.Unlock()

	if start {
		p.group.Go(func() error {
			p.worker()
			return nil
		})
	}
}

// InFlight reports whether id is queued or running.
func (p *pool) InFlight(id domain.Identity) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, running := p.flights[id]
	return running || p.queued[id]
}

// Close drops queued work and rejects new submissions. Running flights finish.
func (p *pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.pending = nil
	clear(p.queued)
}

// Wait blocks until every worker has returned.
func (p *pool) Wait() {
	_ = p.group.Wait()
}

func (p *pool) worker() {
	for {
		id, ok := p.next()
		if !ok {
			return
		}
		for {
			p.work(id)
			if !p.land(id) {
				break
			}
		}
	}
}

// next takes the oldest queued identity and opens its flight. A worker that finds nothing
// to do retires while holding the lock so Submit never strands an identity.
func (p *pool) next() (domain.Identity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		p.active--
		return domain.Identity{}, false
	}
	id := p.pending[0]
	p.pending = p.pending[1:]
	delete(p.queued, id)
	p.flights[id] = &flight{}
	return id, true
}

// land closes the flight of id and reports whether it must run again.
func (p *pool) land(id domain.Identity) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	f := p.flights[id]
	if f.dirty && !p.closed {
		f.dirty = false
		return true
	}
	delete(p.flights, id)
	return false
}
