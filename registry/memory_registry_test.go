package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRegisterAndDiscover(t *testing.T) {
	reg := NewMemoryRegistry()
	defer reg.Close()
	ctx := context.Background()

	b := ServiceInstance{Addr: "127.0.0.1:8002", Weight: 5}
	a := ServiceInstance{Addr: "127.0.0.1:8001", Weight: 10}
	require.NoError(t, reg.Register(ctx, "lobby", b, time.Second))
	require.NoError(t, reg.Register(ctx, "lobby", a, time.Second))

	got, err := reg.Discover(ctx, "lobby")
	require.NoError(t, err)
	assert.Equal(t, []ServiceInstance{a, b}, got)

	empty, err := reg.Discover(ctx, "chat")
	require.NoError(t, err)
	assert.Empty(t, empty)

	// Re-registering replaces the entry.
	a.Weight = 1
	require.NoError(t, reg.Register(ctx, "lobby", a, time.Second))
	require.NoError(t, reg.Deregister(ctx, "lobby", b.Addr))
	require.NoError(t, reg.Deregister(ctx, "lobby", "127.0.0.1:9999"))
	got, err = reg.Discover(ctx, "lobby")
	require.NoError(t, err)
	assert.Equal(t, []ServiceInstance{a}, got)
}

func TestMemoryWatch(t *testing.T) {
	reg := NewMemoryRegistry()
	defer reg.Close()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := reg.Watch(ctx, "lobby")
	require.NoError(t, err)
	assert.Empty(t, <-ch)

	inst := ServiceInstance{Addr: "127.0.0.1:8001"}
	require.NoError(t, reg.Register(ctx, "lobby", inst, time.Second))
	assert.Equal(t, []ServiceInstance{inst}, <-ch)

	// Two changes without a read collapse into the latest state.
	other := ServiceInstance{Addr: "127.0.0.1:8002"}
	require.NoError(t, reg.Register(ctx, "lobby", other, time.Second))
	require.NoError(t, reg.Deregister(ctx, "lobby", inst.Addr))
	assert.Equal(t, []ServiceInstance{other}, <-ch)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel closed after cancel")
	case <-time.After(time.Second):
		t.Fatal("watch not closed")
	}
}

func TestMemoryCloseEndsWatches(t *testing.T) {
	reg := NewMemoryRegistry()
	ch, err := reg.Watch(context.Background(), "lobby")
	require.NoError(t, err)
	<-ch
	require.NoError(t, reg.Close())
	_, ok := <-ch
	assert.False(t, ok)
}

var _ Registry = (*MemoryRegistry)(nil)
var _ Registry = (*EtcdRegistry)(nil)
