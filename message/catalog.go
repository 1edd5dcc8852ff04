package message

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"gamewire/wire"
)

// Opcode identifies a message type on the wire.
type Opcode uint16

func (op Opcode) String() string {
	return fmt.Sprintf("0x%04x", uint16(op))
}

var (
	ErrUnknownOpcode = errors.New("message: unknown opcode")
	ErrUnknownType   = errors.New("message: type not in catalog")
)

type catalogEntry struct {
	op   Opcode
	name string
	typ  reflect.Type
}

// Catalog maps opcodes to message types and back. Registration normally
// happens once at startup; lookups are safe for concurrent use.
type Catalog struct {
	mu     sync.RWMutex
	byOp   map[Opcode]catalogEntry
	byType map[reflect.Type]Opcode
}

func NewCatalog() *Catalog {
	return &Catalog{
		byOp:   make(map[Opcode]catalogEntry),
		byType: make(map[reflect.Type]Opcode),
	}
}

// Register binds op to the type of prototype. A pointer prototype registers
// its element type. An opcode or a type can only be registered once.
func (c *Catalog) Register(op Opcode, name string, prototype any) error {
	t := reflect.TypeOf(prototype)
	if t == nil {
		return fmt.Errorf("message: nil prototype for %s", op)
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if name == "" {
		name = t.Name()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.byOp[op]; ok {
		return fmt.Errorf("message: opcode %s already bound to %s", op, prev.name)
	}
	if prev, ok := c.byType[t]; ok {
		return fmt.Errorf("message: type %s already bound to opcode %s", t, prev)
	}
	c.byOp[op] = catalogEntry{op: op, name: name, typ: t}
	c.byType[t] = op
	return nil
}

// MustRegister is Register for static catalogs.
func (c *Catalog) MustRegister(op Opcode, name string, prototype any) {
	if err := c.Register(op, name, prototype); err != nil {
		panic(err)
	}
}

// New returns a pointer to a fresh zero value of the type bound to op.
func (c *Catalog) New(op Opcode) (any, error) {
	t, ok := c.Type(op)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOpcode, op)
	}
	return reflect.New(t).Interface(), nil
}

// Type returns the Go type bound to op.
func (c *Catalog) Type(op Opcode) (reflect.Type, bool) {
	c.mu.RLock()
	e, ok := c.byOp[op]
	c.mu.RUnlock()
	return e.typ, ok
}

// OpcodeOf returns the opcode of v's type. v may be a value or a pointer.
func (c *Catalog) OpcodeOf(v any) (Opcode, error) {
	t := reflect.TypeOf(v)
	if t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	c.mu.RLock()
	op, ok := c.byType[t]
	c.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %T", ErrUnknownType, v)
	}
	return op, nil
}

// Name returns the registered name of op, or its hex form when unknown.
func (c *Catalog) Name(op Opcode) string {
	c.mu.RLock()
	e, ok := c.byOp[op]
	c.mu.RUnlock()
	if !ok {
		return op.String()
	}
	return e.name
}

// Opcodes returns every registered opcode in ascending order.
func (c *Catalog) Opcodes() []Opcode {
	c.mu.RLock()
	ops := make([]Opcode, 0, len(c.byOp))
	for op := range c.byOp {
		ops = append(ops, op)
	}
	c.mu.RUnlock()
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

// Descriptors returns the wire descriptors of every registered type, in
// opcode order, ready for wire.Registry.Preload.
func (c *Catalog) Descriptors() []wire.Descriptor {
	ops := c.Opcodes()
	ds := make([]wire.Descriptor, 0, len(ops))
	for _, op := range ops {
		t, _ := c.Type(op)
		ds = append(ds, wire.DescriptorFor(t))
	}
	return ds
}
