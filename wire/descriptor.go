package wire

import (
	"reflect"
)

// Shape is the coarse category of a wire type. Built-in strategies switch on
// it; custom strategies are free to look at the full reflect.Type instead.
type Shape uint8

const (
	ShapeInvalid    Shape = iota
	ShapeScalar           // bool, sized integers, floats, [N]byte
	ShapeFixedArray       // [N]T for non-byte T
	ShapeSequence         // []T, int16 length prefixed
	ShapeString           // string, framed like []byte
	ShapeComposite        // struct, fields in declaration order
	ShapeCustom           // *T implements Marshaler and Unmarshaler
)

var shapeNames = [...]string{
	ShapeInvalid:    "invalid",
	ShapeScalar:     "scalar",
	ShapeFixedArray: "fixed-array",
	ShapeSequence:   "sequence",
	ShapeString:     "string",
	ShapeComposite:  "composite",
	ShapeCustom:     "custom",
}

func (s Shape) String() string {
	if int(s) < len(shapeNames) {
		return shapeNames[s]
	}
	return "unknown"
}

// Descriptor identifies a type on the wire. It is comparable, so it can key
// maps directly: two descriptors for the same Go type are equal.
type Descriptor struct {
	typ reflect.Type
}

// DescriptorOf returns the descriptor for T.
func DescriptorOf[T any]() Descriptor {
	return Descriptor{typ: reflect.TypeOf((*T)(nil)).Elem()}
}

// DescriptorFor returns the descriptor for t.
func DescriptorFor(t reflect.Type) Descriptor {
	return Descriptor{typ: t}
}

// DescriptorOfValue returns the descriptor for the dynamic type of v. A
// pointer is dereferenced once so that DescriptorOfValue(&msg) and
// DescriptorOfValue(msg) agree.
func DescriptorOfValue(v any) Descriptor {
	t := reflect.TypeOf(v)
	if t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return Descriptor{typ: t}
}

func (d Descriptor) Valid() bool { return d.typ != nil }

func (d Descriptor) Type() reflect.Type { return d.typ }

func (d Descriptor) Kind() reflect.Kind {
	if d.typ == nil {
		return reflect.Invalid
	}
	return d.typ.Kind()
}

// Elem returns the element descriptor of an array or slice.
func (d Descriptor) Elem() Descriptor {
	switch d.Kind() {
	case reflect.Array, reflect.Slice:
		return Descriptor{typ: d.typ.Elem()}
	}
	return Descriptor{}
}

// Len returns the length of a fixed array and -1 for anything else.
func (d Descriptor) Len() int {
	if d.Kind() != reflect.Array {
		return -1
	}
	return d.typ.Len()
}

// IsByte reports whether the type is a single byte, which is what the
// sequence fast path keys on. Named byte types count.
func (d Descriptor) IsByte() bool {
	return d.Kind() == reflect.Uint8
}

func (d Descriptor) Shape() Shape {
	if d.typ == nil {
		return ShapeInvalid
	}
	if implementsMarshaler(d.typ) {
		return ShapeCustom
	}
	switch d.typ.Kind() {
	case reflect.Bool,
		reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return ShapeScalar
	case reflect.Array:
		if d.Elem().IsByte() {
			return ShapeScalar
		}
		return ShapeFixedArray
	case reflect.Slice:
		return ShapeSequence
	case reflect.String:
		return ShapeString
	case reflect.Struct:
		return ShapeComposite
	}
	return ShapeInvalid
}

func (d Descriptor) String() string {
	if d.typ == nil {
		return "<nil>"
	}
	return d.typ.String()
}

// FixedSize returns the encoded size of a scalar kind, or -1.
func FixedSize(k reflect.Kind) int {
	switch k {
	case reflect.Bool, reflect.Int8, reflect.Uint8:
		return 1
	case reflect.Int16, reflect.Uint16:
		return 2
	case reflect.Int32, reflect.Uint32, reflect.Float32:
		return 4
	case reflect.Int64, reflect.Uint64, reflect.Float64:
		return 8
	default:
		return -1
	}
}
