package registry

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestEtcd connects to $ETCD_ENDPOINT (default localhost:2379) and skips
// the test when no etcd answers.
func newTestEtcd(t *testing.T) *EtcdRegistry {
	t.Helper()
	endpoint := os.Getenv("ETCD_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:2379"
	}
	reg, err := NewEtcdRegistry([]string{endpoint},
		WithDialTimeout(time.Second),
		WithPrefix("/gamewire-test/"+t.Name()+"/"))
	if err != nil {
		t.Skipf("etcd unavailable: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := reg.Discover(ctx, "probe"); err != nil {
		reg.Close()
		t.Skipf("etcd unavailable: %v", err)
	}
	t.Cleanup(func() { reg.Close() })
	return reg
}

func TestEtcdRegisterAndDiscover(t *testing.T) {
	reg := newTestEtcd(t)
	ctx := context.Background()

	inst1 := ServiceInstance{Addr: "127.0.0.1:8001", Weight: 10, Version: "1.0"}
	inst2 := ServiceInstance{Addr: "127.0.0.1:8002", Weight: 5, Version: "1.0", Codec: "cbor"}
	require.NoError(t, reg.Register(ctx, "lobby", inst1, 10*time.Second))
	require.NoError(t, reg.Register(ctx, "lobby", inst2, 10*time.Second))

	instances, err := reg.Discover(ctx, "lobby")
	require.NoError(t, err)
	assert.ElementsMatch(t, []ServiceInstance{inst1, inst2}, instances)

	require.NoError(t, reg.Deregister(ctx, "lobby", inst1.Addr))
	instances, err = reg.Discover(ctx, "lobby")
	require.NoError(t, err)
	assert.Equal(t, []ServiceInstance{inst2}, instances)

	require.NoError(t, reg.Deregister(ctx, "lobby", inst2.Addr))
}

func TestEtcdWatch(t *testing.T) {
	reg := newTestEtcd(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := reg.Watch(ctx, "lobby")
	require.NoError(t, err)
	assert.Empty(t, <-ch)

	inst := ServiceInstance{Addr: "127.0.0.1:9001", Weight: 1}
	require.NoError(t, reg.Register(ctx, "lobby", inst, 10*time.Second))

	select {
	case got := <-ch:
		assert.Equal(t, []ServiceInstance{inst}, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no watch update")
	}
	require.NoError(t, reg.Deregister(ctx, "lobby", inst.Addr))
}
