package wire

import "reflect"

// EncodeFunc writes v, a value of the codec's type, to w.
type EncodeFunc func(w *Writer, v reflect.Value) error

// DecodeFunc reads one value from r into v. v is always settable. On error
// the caller discards v.
type DecodeFunc func(r *Reader, v reflect.Value) error

// Resolver hands a strategy the compiled codec of a nested type. Strategies
// call it while planning, never from inside the returned funcs.
type Resolver interface {
	Resolve(d Descriptor) (*Codec, error)
}

// Strategy recognises a family of types and plans their codecs.
//
// Strategies are consulted in priority order and the first one whose
// CanHandle returns true compiles the type. Planning happens once per type.
type Strategy interface {
	Name() string
	CanHandle(d Descriptor) bool
	PlanEncode(res Resolver, d Descriptor) (EncodeFunc, error)
	PlanDecode(res Resolver, d Descriptor) (DecodeFunc, error)
}

// DefaultStrategies returns the built-in strategies in priority order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		MarshalerStrategy{},
		PrimitiveStrategy{},
		ArrayStrategy{},
		SequenceStrategy{},
		StringStrategy{},
		CompositeStrategy{},
	}
}
