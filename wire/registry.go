package wire

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Registry caches one Codec per Descriptor for the life of the process.
//
// Reads of published codecs take no lock. A miss takes the compile mutex,
// checks again, and compiles; concurrent callers asking for the same type
// block on the mutex and then find the published codec, so every caller
// sees the same *Codec. Failed compilations are not cached.
//
// The usual lifecycle is Preload every protocol type at startup, Seal, and
// only then start accepting connections.
type Registry struct {
	compiler *Compiler
	logger   *zap.Logger

	codecs   sync.Map // reflect.Type -> *Codec
	mu       sync.Mutex
	sealed   atomic.Bool
	size     atomic.Int64
	compiles atomic.Int64
}

func NewRegistry(opts ...Option) *Registry {
	o := buildOptions(opts)
	return &Registry{
		compiler: &Compiler{strategies: o.strategies, order: o.order},
		logger:   o.logger,
	}
}

// Default backs the package-level Get, Marshal and Unmarshal helpers.
var Default = NewRegistry()

func (r *Registry) Compiler() *Compiler { return r.compiler }

// Lookup returns the codec for d if it has been compiled.
func (r *Registry) Lookup(d Descriptor) (*Codec, bool) {
	if !d.Valid() {
		return nil, false
	}
	c, ok := r.codecs.Load(d.typ)
	if !ok {
		return nil, false
	}
	return c.(*Codec), true
}

// Get returns the codec for d, compiling and publishing it on first use.
func (r *Registry) Get(d Descriptor) (*Codec, error) {
	if c, ok := r.Lookup(d); ok {
		return c, nil
	}
	if r.sealed.Load() {
		return nil, fmt.Errorf("%w: %s was not preloaded", ErrSealed, d)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check: another caller may have compiled it while we waited.
	if c, ok := r.Lookup(d); ok {
		return c, nil
	}
	if r.sealed.Load() {
		return nil, fmt.Errorf("%w: %s was not preloaded", ErrSealed, d)
	}

	s := &session{compiler: r.compiler, store: (*registryStore)(r)}
	c, err := s.Resolve(d)
	for _, nc := range s.compiled {
		r.compiles.Add(1)
		r.logger.Debug("wire codec compiled",
			zap.Stringer("type", nc.desc),
			zap.String("strategy", nc.strategy))
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Preload compiles every descriptor and reports all failures together.
func (r *Registry) Preload(ds ...Descriptor) error {
	var errs []error
	for _, d := range ds {
		if _, err := r.Get(d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Seal stops further compilation. Lookups of already compiled types keep
// working; anything else fails with ErrSealed.
func (r *Registry) Seal() { r.sealed.Store(true) }

func (r *Registry) Sealed() bool { return r.sealed.Load() }

// Len returns the number of published codecs.
func (r *Registry) Len() int { return int(r.size.Load()) }

// Compiles returns how many codecs this registry has compiled.
func (r *Registry) Compiles() int64 { return r.compiles.Load() }

// Entry describes one published codec.
type Entry struct {
	Descriptor Descriptor
	Shape      Shape
	Strategy   string
}

// Entries returns a snapshot of the published codecs sorted by type name.
func (r *Registry) Entries() []Entry {
	var out []Entry
	r.codecs.Range(func(_, v any) bool {
		c := v.(*Codec)
		out = append(out, Entry{Descriptor: c.desc, Shape: c.desc.Shape(), Strategy: c.strategy})
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].Descriptor.String() < out[j].Descriptor.String()
	})
	return out
}

// Marshal encodes v with the codec for its dynamic type.
func (r *Registry) Marshal(v any) ([]byte, error) {
	c, err := r.Get(DescriptorOfValue(v))
	if err != nil {
		return nil, err
	}
	return c.Marshal(v)
}

// Unmarshal decodes data into the value ptr points to.
func (r *Registry) Unmarshal(data []byte, ptr any) error {
	t := reflect.TypeOf(ptr)
	if t == nil || t.Kind() != reflect.Pointer {
		return fmt.Errorf("%w: Unmarshal needs a pointer, have %T", ErrTypeMismatch, ptr)
	}
	c, err := r.Get(DescriptorFor(t.Elem()))
	if err != nil {
		return err
	}
	return c.Unmarshal(data, ptr)
}

type registryStore Registry

func (s *registryStore) load(t reflect.Type) (*Codec, bool) {
	c, ok := s.codecs.Load(t)
	if !ok {
		return nil, false
	}
	return c.(*Codec), true
}

// store runs with the compile mutex held.
func (s *registryStore) store(c *Codec) {
	s.codecs.Store(c.desc.typ, c)
	s.size.Add(1)
}

func Get(d Descriptor) (*Codec, error) { return Default.Get(d) }

func Marshal(v any) ([]byte, error) { return Default.Marshal(v) }

func Unmarshal(data []byte, ptr any) error { return Default.Unmarshal(data, ptr) }
