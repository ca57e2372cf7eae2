package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRegistry(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	ep1 := Endpoint{Name: "editor", Addr: "127.0.0.1:8002", Weight: 1}
	ep2 := Endpoint{Name: "editor", Addr: "127.0.0.1:8001", Weight: 2}
	require.NoError(t, reg.Register(ctx, ep1, 10))
	require.NoError(t, reg.Register(ctx, ep2, 10))
	require.NoError(t, reg.Register(ctx, Endpoint{Name: "other", Addr: "127.0.0.1:9000"}, 10))

	endpoints, err := reg.Discover(ctx, "editor")
	require.NoError(t, err)
	assert.Equal(t, []Endpoint{ep2, ep1}, endpoints, "sorted by address")

	require.NoError(t, reg.Deregister(ctx, "editor", ep2.Addr))
	endpoints, err = reg.Discover(ctx, "editor")
	require.NoError(t, err)
	assert.Equal(t, []Endpoint{ep1}, endpoints)

	endpoints, err = reg.Discover(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, endpoints)
}

func TestMemoryRegistryWatch(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx, cancel := context.WithCancel(context.Background())

	updates := reg.Watch(ctx, "editor")

	ep := Endpoint{Name: "editor", Addr: "127.0.0.1:8001"}
	require.NoError(t, reg.Register(context.Background(), ep, 10))
	assert.Equal(t, []Endpoint{ep}, <-updates)

	// Unread updates collapse into the latest list.
	require.NoError(t, reg.Register(context.Background(), Endpoint{Name: "editor", Addr: "127.0.0.1:8002"}, 10))
	require.NoError(t, reg.Deregister(context.Background(), "editor", "127.0.0.1:8002"))
	assert.Equal(t, []Endpoint{ep}, <-updates)

	cancel()
	select {
	case _, open := <-updates:
		assert.False(t, open)
	case <-time.After(5 * time.Second):
		t.Fatal("watch channel not closed after cancel")
	}
}

func TestMemoryRegistryCancelledContext(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, reg.Register(ctx, Endpoint{Name: "editor", Addr: "x"}, 1), context.Canceled)
	_, err := reg.Discover(ctx, "editor")
	assert.ErrorIs(t, err, context.Canceled)
}
