package registry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/juju/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// KeyPrefix is the root of every key this registry writes:
//
//	Key:   /nvim-rpc/{Name}/{Addr}
//	Value: JSON-encoded Endpoint
//
// Registration uses TTL leases: if the editor host dies, the lease expires and
// the entry disappears on its own.
const KeyPrefix = "/nvim-rpc/"

// EtcdRegistry implements Registry on etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // Thread-safe, shared across goroutines
	log    logr.Logger

	mu     sync.Mutex
	leases map[string]context.CancelFunc // Keep-alive loops by key
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string, log logr.Logger) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, errors.Annotate(err, "connecting to etcd")
	}
	return &EtcdRegistry{client: c, log: log, leases: make(map[string]context.CancelFunc)}, nil
}

func key(name, addr string) string {
	return KeyPrefix + name + "/" + addr
}

func prefix(name string) string {
	return KeyPrefix + name + "/"
}

// Register stores ep under a lease of ttl seconds and keeps the lease alive in
// the background until Deregister or Close. The lease id stays local: one
// registry may register many endpoints concurrently.
func (r *EtcdRegistry) Register(ctx context.Context, ep Endpoint, ttl int64) error {
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return errors.Annotatef(err, "granting lease for %s", ep.Addr)
	}

	val, err := json.Marshal(ep)
	if err != nil {
		return errors.Trace(err)
	}

	k := key(ep.Name, ep.Addr)
	if _, err := r.client.Put(ctx, k, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return errors.Annotatef(err, "registering %s", k)
	}

	// The keep-alive must outlive ctx, which only bounds registration itself.
	keepCtx, cancel := context.WithCancel(context.Background())
	ch, err := r.client.KeepAlive(keepCtx, lease.ID)
	if err != nil {
		cancel()
		return errors.Annotatef(err, "keeping %s alive", k)
	}

	r.mu.Lock()
	if old, ok := r.leases[k]; ok {
		old()
	}
	r.leases[k] = cancel
	r.mu.Unlock()

	go func() {
		// Drain responses so the client does not warn about a full channel.
		for range ch {
		}
		r.log.V(1).Info("lease keep-alive stopped", "key", k)
	}()
	return nil
}

// Deregister removes an endpoint, e.g. during graceful shutdown.
func (r *EtcdRegistry) Deregister(ctx context.Context, name, addr string) error {
	k := key(name, addr)
	r.mu.Lock()
	if cancel, ok := r.leases[k]; ok {
		cancel()
		delete(r.leases, k)
	}
	r.mu.Unlock()

	_, err := r.client.Delete(ctx, k)
	return errors.Annotatef(err, "deregistering %s", k)
}

// Discover lists every endpoint currently registered under name.
func (r *EtcdRegistry) Discover(ctx context.Context, name string) ([]Endpoint, error) {
	resp, err := r.client.Get(ctx, prefix(name), clientv3.WithPrefix())
	if err != nil {
		return nil, errors.Annotatef(err, "discovering %s", name)
	}

	endpoints := make([]Endpoint, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var ep Endpoint
		if err := json.Unmarshal(kv.Value, &ep); err != nil {
			r.log.Info("skipping malformed registry entry", "key", string(kv.Key))
			continue
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints, nil
}

// Watch uses etcd's server push rather than polling. On any change under the
// prefix the full list is fetched again, which is simpler than applying
// individual events.
func (r *EtcdRegistry) Watch(ctx context.Context, name string) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)

	go func() {
		defer close(ch)
		for range r.client.Watch(ctx, prefix(name), clientv3.WithPrefix()) {
			endpoints, err := r.Discover(ctx, name)
			if err != nil {
				r.log.Error(err, "refreshing endpoints after watch event", "name", name)
				continue
			}
			select {
			case ch <- endpoints:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

// Close stops every keep-alive and the etcd client. Leases then expire after
// their TTL.
func (r *EtcdRegistry) Close() error {
	r.mu.Lock()
	for k, cancel := range r.leases {
		cancel()
		delete(r.leases, k)
	}
	r.mu.Unlock()
	return r.client.Close()
}
