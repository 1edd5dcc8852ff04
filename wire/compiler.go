package wire

import (
	"reflect"
	"slices"

	"go.uber.org/zap"
)

type options struct {
	order      ByteOrder
	strategies []Strategy
	logger     *zap.Logger
}

// Option configures a Compiler or Registry.
type Option func(*options)

// WithByteOrder sets the byte order of every multi-byte scalar, the
// sequence count included. The default is big endian.
func WithByteOrder(order ByteOrder) Option {
	return func(o *options) {
		o.order = order
	}
}

// WithStrategies puts custom strategies ahead of the built-in ones.
func WithStrategies(s ...Strategy) Option {
	return func(o *options) {
		o.strategies = append(slices.Clone(s), o.strategies...)
	}
}

// WithOnlyStrategies replaces the strategy list entirely.
func WithOnlyStrategies(s ...Strategy) Option {
	return func(o *options) {
		o.strategies = slices.Clone(s)
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func buildOptions(opts []Option) options {
	o := options{
		order:      DefaultByteOrder,
		strategies: DefaultStrategies(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.order == nil {
		o.order = DefaultByteOrder
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// Compiler turns descriptors into codecs. It holds no cache of its own
// beyond a single Compile call; Registry adds the process-wide cache.
type Compiler struct {
	strategies []Strategy
	order      ByteOrder
}

func NewCompiler(opts ...Option) *Compiler {
	o := buildOptions(opts)
	return &Compiler{strategies: o.strategies, order: o.order}
}

func (c *Compiler) Order() ByteOrder { return c.order }

func (c *Compiler) Strategies() []Strategy { return slices.Clone(c.strategies) }

// Compile builds the codec for d and every type nested in it.
func (c *Compiler) Compile(d Descriptor) (*Codec, error) {
	s := &session{compiler: c, store: localStore{}}
	return s.Resolve(d)
}

func (c *Compiler) pick(d Descriptor) Strategy {
	for _, s := range c.strategies {
		if s.CanHandle(d) {
			return s
		}
	}
	return nil
}

type codecStore interface {
	load(t reflect.Type) (*Codec, bool)
	store(c *Codec)
}

type localStore map[reflect.Type]*Codec

func (m localStore) load(t reflect.Type) (*Codec, bool) {
	c, ok := m[t]
	return c, ok
}

func (m localStore) store(c *Codec) { m[c.desc.typ] = c }

// session is one top-level compilation. stack holds the descriptors being
// planned right now; meeting one of them again means the type graph loops.
type session struct {
	compiler *Compiler
	store    codecStore
	stack    []Descriptor
	compiled []*Codec
}

func (s *session) Resolve(d Descriptor) (*Codec, error) {
	if !d.Valid() {
		return nil, &UnsupportedTypeError{Descriptor: d, Reason: "nil type"}
	}
	if c, ok := s.store.load(d.typ); ok {
		return c, nil
	}
	if slices.Contains(s.stack, d) {
		path := append(slices.Clone(s.stack), d)
		return nil, &CyclicTypeError{Path: path}
	}

	strat := s.compiler.pick(d)
	if strat == nil {
		return nil, &UnsupportedTypeError{Descriptor: d, Reason: unsupportedReason(d)}
	}

	s.stack = append(s.stack, d)
	enc, err := strat.PlanEncode(s, d)
	var dec DecodeFunc
	if err == nil {
		dec, err = strat.PlanDecode(s, d)
	}
	s.stack = s.stack[:len(s.stack)-1]
	if err != nil {
		return nil, err
	}

	c := &Codec{
		desc:     d,
		strategy: strat.Name(),
		order:    s.compiler.order,
		encode:   enc,
		decode:   dec,
	}
	s.store.store(c)
	s.compiled = append(s.compiled, c)
	return c, nil
}

func unsupportedReason(d Descriptor) string {
	switch d.Kind() {
	case reflect.Int, reflect.Uint, reflect.Uintptr:
		return "platform-sized integer has no fixed width, use a sized integer"
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Chan, reflect.Func,
		reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return d.Kind().String() + " has no wire form"
	}
	return "no strategy accepts it"
}
