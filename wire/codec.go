package wire

import (
	"bytes"
	"fmt"
	"io"
	"reflect"
)

// Codec is the compiled encoder/decoder pair for one Descriptor. A Codec is
// immutable once compiled and safe for concurrent use.
type Codec struct {
	desc     Descriptor
	strategy string
	order    ByteOrder
	encode   EncodeFunc
	decode   DecodeFunc
}

func (c *Codec) Descriptor() Descriptor { return c.desc }

// Strategy names the strategy that compiled this codec.
func (c *Codec) Strategy() string { return c.strategy }

func (c *Codec) Order() ByteOrder { return c.order }

// EncodeValue appends v to w. Strategies use it to delegate to sub-codecs.
func (c *Codec) EncodeValue(w *Writer, v reflect.Value) error { return c.encode(w, v) }

// DecodeValue reads one value from r into the settable v.
func (c *Codec) DecodeValue(r *Reader, v reflect.Value) error { return c.decode(r, v) }

// Encode writes the wire form of v to w. v is a value of the codec's type or
// a pointer to one. The value is encoded into a scratch buffer first and
// handed to w in a single Write, so a failed encode leaves w untouched.
func (c *Codec) Encode(w io.Writer, v any) error {
	rv, err := c.source(v)
	if err != nil {
		return err
	}
	return c.encodeTo(w, rv)
}

// Marshal returns the wire form of v.
func (c *Codec) Marshal(v any) ([]byte, error) {
	rv, err := c.source(v)
	if err != nil {
		return nil, err
	}
	return c.marshal(rv)
}

// Decode reads exactly one value from r and returns it by value.
func (c *Codec) Decode(r io.Reader) (any, error) {
	p := reflect.New(c.desc.typ)
	if err := c.decode(NewReader(r, c.order), p.Elem()); err != nil {
		return nil, err
	}
	return p.Elem().Interface(), nil
}

// DecodeInto reads exactly one value from r into ptr, which must point to
// the codec's type. ptr is only written when the whole value decoded.
func (c *Codec) DecodeInto(r io.Reader, ptr any) error {
	dst, err := c.target(ptr)
	if err != nil {
		return err
	}
	tmp := reflect.New(c.desc.typ).Elem()
	if err := c.decode(NewReader(r, c.order), tmp); err != nil {
		return err
	}
	dst.Set(tmp)
	return nil
}

// Unmarshal decodes data into ptr. data must hold exactly one value.
func (c *Codec) Unmarshal(data []byte, ptr any) error {
	br := bytes.NewReader(data)
	if err := c.DecodeInto(br, ptr); err != nil {
		return err
	}
	if br.Len() > 0 {
		return fmt.Errorf("%w: %d bytes after %s", ErrTrailingData, br.Len(), c.desc)
	}
	return nil
}

func (c *Codec) encodeTo(w io.Writer, rv reflect.Value) error {
	buf := getWriter(c.order)
	defer putWriter(buf)
	if err := c.encode(buf, rv); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func (c *Codec) marshal(rv reflect.Value) ([]byte, error) {
	buf := getWriter(c.order)
	defer putWriter(buf)
	if err := c.encode(buf, rv); err != nil {
		return nil, err
	}
	return bytes.Clone(buf.Bytes()), nil
}

func (c *Codec) source(v any) (reflect.Value, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return reflect.Value{}, fmt.Errorf("%w: have nil, want %s", ErrTypeMismatch, c.desc)
	}
	if rv.Kind() == reflect.Pointer && rv.Type().Elem() == c.desc.typ {
		if rv.IsNil() {
			return reflect.Value{}, fmt.Errorf("%w: nil *%s", ErrTypeMismatch, c.desc)
		}
		return rv.Elem(), nil
	}
	if rv.Type() != c.desc.typ {
		return reflect.Value{}, fmt.Errorf("%w: have %s, want %s", ErrTypeMismatch, rv.Type(), c.desc)
	}
	return rv, nil
}

func (c *Codec) target(ptr any) (reflect.Value, error) {
	rv := reflect.ValueOf(ptr)
	if !rv.IsValid() || rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Type().Elem() != c.desc.typ {
		return reflect.Value{}, fmt.Errorf("%w: have %T, want *%s", ErrTypeMismatch, ptr, c.desc)
	}
	return rv.Elem(), nil
}

// Typed is a Codec bound to T at compile time of the caller, which removes
// the any conversions from the hot path.
type Typed[T any] struct {
	codec *Codec
}

// For returns the typed codec for T from reg, compiling it if needed.
func For[T any](reg *Registry) (*Typed[T], error) {
	c, err := reg.Get(DescriptorOf[T]())
	if err != nil {
		return nil, err
	}
	return &Typed[T]{codec: c}, nil
}

// MustFor is For for package-level variables; it panics on error.
func MustFor[T any](reg *Registry) *Typed[T] {
	t, err := For[T](reg)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Typed[T]) Codec() *Codec { return t.codec }

func (t *Typed[T]) Encode(w io.Writer, v T) error {
	return t.codec.encodeTo(w, reflect.ValueOf(&v).Elem())
}

func (t *Typed[T]) Marshal(v T) ([]byte, error) {
	return t.codec.marshal(reflect.ValueOf(&v).Elem())
}

func (t *Typed[T]) Decode(r io.Reader) (T, error) {
	var v T
	if err := t.codec.decode(NewReader(r, t.codec.order), reflect.ValueOf(&v).Elem()); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

func (t *Typed[T]) Unmarshal(data []byte) (T, error) {
	br := bytes.NewReader(data)
	v, err := t.Decode(br)
	if err != nil {
		return v, err
	}
	if br.Len() > 0 {
		var zero T
		return zero, fmt.Errorf("%w: %d bytes after %s", ErrTrailingData, br.Len(), t.codec.desc)
	}
	return v, nil
}
