package wire

import (
	"fmt"
	"reflect"
)

// CompositeStrategy encodes a struct as its exported fields in declaration
// order with no tags, names or padding. A field tagged `wire:"-"` is not
// sent.
type CompositeStrategy struct{}

func (CompositeStrategy) Name() string { return "composite" }

func (CompositeStrategy) CanHandle(d Descriptor) bool {
	return d.Kind() == reflect.Struct
}

type fieldCodec struct {
	index int
	name  string
	codec *Codec
}

func compositeFields(res Resolver, d Descriptor) ([]fieldCodec, error) {
	t := d.Type()
	fields := make([]fieldCodec, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() || sf.Tag.Get("wire") == "-" {
			continue
		}
		c, err := res.Resolve(DescriptorFor(sf.Type))
		if err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", t, sf.Name, err)
		}
		fields = append(fields, fieldCodec{index: i, name: sf.Name, codec: c})
	}
	return fields, nil
}

func (CompositeStrategy) PlanEncode(res Resolver, d Descriptor) (EncodeFunc, error) {
	fields, err := compositeFields(res, d)
	if err != nil {
		return nil, err
	}
	encs := make([]EncodeFunc, len(fields))
	idx := make([]int, len(fields))
	for i, f := range fields {
		encs[i], idx[i] = f.codec.encode, f.index
	}
	return func(w *Writer, v reflect.Value) error {
		for i, enc := range encs {
			if err := enc(w, v.Field(idx[i])); err != nil {
				return err
			}
		}
		return nil
	}, nil
}

func (CompositeStrategy) PlanDecode(res Resolver, d Descriptor) (DecodeFunc, error) {
	fields, err := compositeFields(res, d)
	if err != nil {
		return nil, err
	}
	decs := make([]DecodeFunc, len(fields))
	idx := make([]int, len(fields))
	for i, f := range fields {
		decs[i], idx[i] = f.codec.decode, f.index
	}
	return func(r *Reader, v reflect.Value) error {
		for i, dec := range decs {
			if err := dec(r, v.Field(idx[i])); err != nil {
				return err
			}
		}
		return nil
	}, nil
}

// Marshaler is implemented by types that write themselves, typically
// through code generated by wiregen.
type Marshaler interface {
	MarshalWire(w *Writer) error
}

// Unmarshaler is the decoding half of Marshaler.
type Unmarshaler interface {
	UnmarshalWire(r *Reader) error
}

var (
	marshalerType   = reflect.TypeOf((*Marshaler)(nil)).Elem()
	unmarshalerType = reflect.TypeOf((*Unmarshaler)(nil)).Elem()
)

func implementsMarshaler(t reflect.Type) bool {
	pt := reflect.PointerTo(t)
	return pt.Implements(marshalerType) && pt.Implements(unmarshalerType)
}

// MarshalerStrategy hands types implementing Marshaler and Unmarshaler (on
// the pointer receiver) their own methods. It runs first so hand-written
// and generated codecs win over reflection.
type MarshalerStrategy struct{}

func (MarshalerStrategy) Name() string { return "marshaler" }

func (MarshalerStrategy) CanHandle(d Descriptor) bool {
	return d.Valid() && d.Kind() != reflect.Pointer && d.Kind() != reflect.Interface && implementsMarshaler(d.Type())
}

func (MarshalerStrategy) PlanEncode(_ Resolver, d Descriptor) (EncodeFunc, error) {
	t := d.Type()
	byValue := t.Implements(marshalerType)
	return func(w *Writer, v reflect.Value) error {
		switch {
		case v.CanAddr():
			return v.Addr().Interface().(Marshaler).MarshalWire(w)
		case byValue:
			return v.Interface().(Marshaler).MarshalWire(w)
		}
		p := reflect.New(t)
		p.Elem().Set(v)
		return p.Interface().(Marshaler).MarshalWire(w)
	}, nil
}

func (MarshalerStrategy) PlanDecode(_ Resolver, _ Descriptor) (DecodeFunc, error) {
	return func(r *Reader, v reflect.Value) error {
		return v.Addr().Interface().(Unmarshaler).UnmarshalWire(r)
	}, nil
}
