// Package registry lets editors listening on TCP announce themselves so that
// clients can find one by name.
package registry

import "context"

// Endpoint is one editor instance reachable over TCP.
type Endpoint struct {
	Name    string `json:"name"`
	Addr    string `json:"addr"`
	Weight  int    `json:"weight"` // Weight for load balancing
	Version string `json:"version,omitempty"`
}

type Registry interface {
	// Register announces ep for ttl seconds, renewed until Deregister.
	Register(ctx context.Context, ep Endpoint, ttl int64) error
	Deregister(ctx context.Context, name, addr string) error
	Discover(ctx context.Context, name string) ([]Endpoint, error)
	// Watch emits the full endpoint list after every change, until ctx is done.
	Watch(ctx context.Context, name string) <-chan []Endpoint
}
