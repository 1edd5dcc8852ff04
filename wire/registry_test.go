package wire

import (
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type inventory struct {
	Owner uint64
	Slots [4]uint16
	Items []item
	Note  string
}

type item struct {
	ID    uint32
	Count int16
	Tags  []string
}

func TestRegistryConcurrentGet(t *testing.T) {
	reg := NewRegistry()
	d := DescriptorOf[inventory]()

	const workers = 64
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		got   = make([]*Codec, workers)
		errs  = make([]error, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			got[i], errs[i] = reg.Get(d)
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, got[0], got[i])
	}

	// One compilation per distinct type in the graph, no matter how many
	// callers raced for it.
	fresh := NewRegistry()
	_, err := fresh.Get(d)
	require.NoError(t, err)
	assert.Equal(t, fresh.Compiles(), reg.Compiles())
	assert.Equal(t, fresh.Len(), reg.Len())
}

func TestRegistrySharesNestedCodecs(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Get(DescriptorOf[inventory]())
	require.NoError(t, err)
	before := reg.Compiles()

	a, ok := reg.Lookup(DescriptorOf[item]())
	require.True(t, ok, "nested types are published with their parent")
	b, err := reg.Get(DescriptorOf[item]())
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, before, reg.Compiles())
}

// flakyStrategy refuses the first plan it is asked for.
type flakyStrategy struct {
	calls *atomic.Int32
}

func (flakyStrategy) Name() string { return "flaky" }

func (flakyStrategy) CanHandle(d Descriptor) bool {
	return d.Type() == reflect.TypeOf((*fixedPoint)(nil)).Elem()
}

func (s flakyStrategy) PlanEncode(res Resolver, d Descriptor) (EncodeFunc, error) {
	if s.calls.Add(1) == 1 {
		return nil, errors.New("not ready")
	}
	return fixedPointStrategy{}.PlanEncode(res, d)
}

func (flakyStrategy) PlanDecode(res Resolver, d Descriptor) (DecodeFunc, error) {
	return fixedPointStrategy{}.PlanDecode(res, d)
}

func TestRegistryDoesNotCacheFailures(t *testing.T) {
	calls := &atomic.Int32{}
	reg := NewRegistry(WithStrategies(flakyStrategy{calls: calls}))
	d := DescriptorOf[fixedPoint]()

	_, err := reg.Get(d)
	require.EqualError(t, err, "not ready")
	_, ok := reg.Lookup(d)
	assert.False(t, ok)

	c, err := reg.Get(d)
	require.NoError(t, err)
	assert.Equal(t, "flaky", c.Strategy())
	assert.EqualValues(t, 2, calls.Load())
}

func TestRegistrySeal(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Preload(DescriptorOf[inventory](), DescriptorOf[[]uint32]()))
	reg.Seal()
	assert.True(t, reg.Sealed())

	_, err := reg.Get(DescriptorOf[item]())
	assert.NoError(t, err, "compiled before sealing")

	_, err = reg.Get(DescriptorOf[[]int64]())
	assert.ErrorIs(t, err, ErrSealed)

	data, err := reg.Marshal([]uint32{7})
	require.NoError(t, err)
	var out []uint32
	require.NoError(t, reg.Unmarshal(data, &out))
	assert.Equal(t, []uint32{7}, out)
}

func TestRegistryPreloadJoinsErrors(t *testing.T) {
	reg := NewRegistry()
	err := reg.Preload(
		DescriptorOf[int](),
		DescriptorOf[item](),
		DescriptorOf[map[uint8]uint8](),
		DescriptorOf[node](),
	)
	require.Error(t, err)

	var unsupported *UnsupportedTypeError
	assert.ErrorAs(t, err, &unsupported)
	var cyc *CyclicTypeError
	assert.ErrorAs(t, err, &cyc)

	_, ok := reg.Lookup(DescriptorOf[item]())
	assert.True(t, ok, "good descriptors still load")
	_, ok = reg.Lookup(DescriptorOf[node]())
	assert.False(t, ok)
}

func TestRegistryEntries(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Preload(DescriptorOf[item](), DescriptorOf[vec2]()))

	entries := reg.Entries()
	require.Len(t, entries, reg.Len())

	byType := map[string]Entry{}
	for _, e := range entries {
		byType[e.Descriptor.String()] = e
	}
	assert.Equal(t, "composite", byType["wire.item"].Strategy)
	assert.Equal(t, ShapeSequence, byType["[]string"].Shape)
	assert.Equal(t, "marshaler", byType["wire.vec2"].Strategy)
	assert.Equal(t, "primitive", byType["uint32"].Strategy)

	for i := 1; i < len(entries); i++ {
		assert.Less(t, entries[i-1].Descriptor.String(), entries[i].Descriptor.String())
	}
}

func TestRegistryLogsCompiles(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	reg := NewRegistry(WithLogger(zap.New(core)))

	_, err := reg.Get(DescriptorOf[[]uint16]())
	require.NoError(t, err)

	entries := logs.FilterMessage("wire codec compiled").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "uint16", entries[0].ContextMap()["type"])
	assert.Equal(t, "sequence", entries[1].ContextMap()["strategy"])
}

func TestRegistryUnmarshalNeedsPointer(t *testing.T) {
	reg := NewRegistry()
	var v uint16
	assert.ErrorIs(t, reg.Unmarshal([]byte{0, 1}, v), ErrTypeMismatch)
	assert.ErrorIs(t, reg.Unmarshal([]byte{0, 1}, nil), ErrTypeMismatch)
	require.NoError(t, reg.Unmarshal([]byte{0, 1}, &v))
	assert.EqualValues(t, 1, v)
}

func TestDefaultRegistryHelpers(t *testing.T) {
	type hello struct {
		Greeting string
	}
	data, err := Marshal(hello{Greeting: "hi"})
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 2, 'h', 'i'}, data)

	var out hello
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, "hi", out.Greeting)

	_, ok := Default.Lookup(DescriptorOf[hello]())
	assert.True(t, ok)
}
