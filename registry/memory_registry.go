package registry

import (
	"context"
	"sort"
	"sync"
)

// MemoryRegistry keeps endpoints in process. TTLs are ignored: entries live
// until Deregister.
type MemoryRegistry struct {
	mu       sync.Mutex
	entries  map[string]map[string]Endpoint // name → addr → endpoint
	watchers map[string][]chan []Endpoint
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		entries:  make(map[string]map[string]Endpoint),
		watchers: make(map[string][]chan []Endpoint),
	}
}

func (r *MemoryRegistry) Register(ctx context.Context, ep Endpoint, ttl int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[ep.Name] == nil {
		r.entries[ep.Name] = make(map[string]Endpoint)
	}
	r.entries[ep.Name][ep.Addr] = ep
	r.notify(ep.Name)
	return nil
}

func (r *MemoryRegistry) Deregister(ctx context.Context, name, addr string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries[name], addr)
	r.notify(name)
	return nil
}

// Discover returns endpoints sorted by address.
func (r *MemoryRegistry) Discover(ctx context.Context, name string) ([]Endpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(name), nil
}

func (r *MemoryRegistry) Watch(ctx context.Context, name string) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)
	r.mu.Lock()
	r.watchers[name] = append(r.watchers[name], ch)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		ws := r.watchers[name]
		for i, w := range ws {
			if w == ch {
				r.watchers[name] = append(ws[:i], ws[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

// list must be called with mu held.
func (r *MemoryRegistry) list(name string) []Endpoint {
	endpoints := make([]Endpoint, 0, len(r.entries[name]))
	for _, ep := range r.entries[name] {
		endpoints = append(endpoints, ep)
	}
	sort.Slice(endpoints, func(i, j int) bool { return endpoints[i].Addr < endpoints[j].Addr })
	return endpoints
}

// notify must be called with mu held. A watcher that has not consumed the
// previous list gets it replaced by the newest one.
func (r *MemoryRegistry) notify(name string) {
	endpoints := r.list(name)
	for _, ch := range r.watchers[name] {
		select {
		case <-ch:
		default:
		}
		ch <- endpoints
	}
}
