package wire

import (
	"reflect"
)

// PrimitiveStrategy covers fixed-width scalars and fixed-size byte arrays.
// Every other strategy bottoms out here.
type PrimitiveStrategy struct{}

func (PrimitiveStrategy) Name() string { return "primitive" }

func (PrimitiveStrategy) CanHandle(d Descriptor) bool {
	if FixedSize(d.Kind()) > 0 {
		return true
	}
	return d.Kind() == reflect.Array && d.Elem().IsByte()
}

func (PrimitiveStrategy) PlanEncode(_ Resolver, d Descriptor) (EncodeFunc, error) {
	switch d.Kind() {
	case reflect.Bool:
		return func(w *Writer, v reflect.Value) error {
			w.WriteBool(v.Bool())
			return nil
		}, nil
	case reflect.Int8:
		return func(w *Writer, v reflect.Value) error {
			w.WriteInt8(int8(v.Int()))
			return nil
		}, nil
	case reflect.Uint8:
		return func(w *Writer, v reflect.Value) error {
			w.WriteUint8(uint8(v.Uint()))
			return nil
		}, nil
	case reflect.Int16:
		return func(w *Writer, v reflect.Value) error {
			w.WriteInt16(int16(v.Int()))
			return nil
		}, nil
	case reflect.Uint16:
		return func(w *Writer, v reflect.Value) error {
			w.WriteUint16(uint16(v.Uint()))
			return nil
		}, nil
	case reflect.Int32:
		return func(w *Writer, v reflect.Value) error {
			w.WriteInt32(int32(v.Int()))
			return nil
		}, nil
	case reflect.Uint32:
		return func(w *Writer, v reflect.Value) error {
			w.WriteUint32(uint32(v.Uint()))
			return nil
		}, nil
	case reflect.Int64:
		return func(w *Writer, v reflect.Value) error {
			w.WriteInt64(v.Int())
			return nil
		}, nil
	case reflect.Uint64:
		return func(w *Writer, v reflect.Value) error {
			w.WriteUint64(v.Uint())
			return nil
		}, nil
	case reflect.Float32:
		return func(w *Writer, v reflect.Value) error {
			w.WriteFloat32(float32(v.Float()))
			return nil
		}, nil
	case reflect.Float64:
		return func(w *Writer, v reflect.Value) error {
			w.WriteFloat64(v.Float())
			return nil
		}, nil
	case reflect.Array:
		return encodeByteArray, nil
	}
	return nil, &UnsupportedTypeError{Descriptor: d, Reason: "not a primitive"}
}

func (PrimitiveStrategy) PlanDecode(_ Resolver, d Descriptor) (DecodeFunc, error) {
	switch d.Kind() {
	case reflect.Bool:
		return func(r *Reader, v reflect.Value) error {
			b, err := r.ReadBool()
			v.SetBool(b)
			return err
		}, nil
	case reflect.Int8:
		return func(r *Reader, v reflect.Value) error {
			n, err := r.ReadInt8()
			v.SetInt(int64(n))
			return err
		}, nil
	case reflect.Uint8:
		return func(r *Reader, v reflect.Value) error {
			n, err := r.ReadUint8()
			v.SetUint(uint64(n))
			return err
		}, nil
	case reflect.Int16:
		return func(r *Reader, v reflect.Value) error {
			n, err := r.ReadInt16()
			v.SetInt(int64(n))
			return err
		}, nil
	case reflect.Uint16:
		return func(r *Reader, v reflect.Value) error {
			n, err := r.ReadUint16()
			v.SetUint(uint64(n))
			return err
		}, nil
	case reflect.Int32:
		return func(r *Reader, v reflect.Value) error {
			n, err := r.ReadInt32()
			v.SetInt(int64(n))
			return err
		}, nil
	case reflect.Uint32:
		return func(r *Reader, v reflect.Value) error {
			n, err := r.ReadUint32()
			v.SetUint(uint64(n))
			return err
		}, nil
	case reflect.Int64:
		return func(r *Reader, v reflect.Value) error {
			n, err := r.ReadInt64()
			v.SetInt(n)
			return err
		}, nil
	case reflect.Uint64:
		return func(r *Reader, v reflect.Value) error {
			n, err := r.ReadUint64()
			v.SetUint(n)
			return err
		}, nil
	case reflect.Float32:
		return func(r *Reader, v reflect.Value) error {
			f, err := r.ReadFloat32()
			v.SetFloat(float64(f))
			return err
		}, nil
	case reflect.Float64:
		return func(r *Reader, v reflect.Value) error {
			f, err := r.ReadFloat64()
			v.SetFloat(f)
			return err
		}, nil
	case reflect.Array:
		return decodeByteArray, nil
	}
	return nil, &UnsupportedTypeError{Descriptor: d, Reason: "not a primitive"}
}

func encodeByteArray(w *Writer, v reflect.Value) error {
	if v.CanAddr() {
		w.WriteRaw(v.Bytes())
		return nil
	}
	for i := 0; i < v.Len(); i++ {
		w.WriteUint8(uint8(v.Index(i).Uint()))
	}
	return nil
}

func decodeByteArray(r *Reader, v reflect.Value) error {
	return r.ReadFull(v.Bytes())
}

// ArrayStrategy encodes [N]T as N consecutive elements with no prefix; the
// length is part of the type.
type ArrayStrategy struct{}

func (ArrayStrategy) Name() string { return "array" }

func (ArrayStrategy) CanHandle(d Descriptor) bool {
	return d.Kind() == reflect.Array && !d.Elem().IsByte()
}

func (ArrayStrategy) PlanEncode(res Resolver, d Descriptor) (EncodeFunc, error) {
	elem, err := res.Resolve(d.Elem())
	if err != nil {
		return nil, err
	}
	n, enc := d.Len(), elem.encode
	return func(w *Writer, v reflect.Value) error {
		for i := 0; i < n; i++ {
			if err := enc(w, v.Index(i)); err != nil {
				return err
			}
		}
		return nil
	}, nil
}

func (ArrayStrategy) PlanDecode(res Resolver, d Descriptor) (DecodeFunc, error) {
	elem, err := res.Resolve(d.Elem())
	if err != nil {
		return nil, err
	}
	n, dec := d.Len(), elem.decode
	return func(r *Reader, v reflect.Value) error {
		for i := 0; i < n; i++ {
			if err := dec(r, v.Index(i)); err != nil {
				return err
			}
		}
		return nil
	}, nil
}
