package wire

import (
	"reflect"
)

// SequenceStrategy encodes slices as an int16 element count followed by the
// elements in order.
//
//	[]int32{1, 2, 3}  ->  00 03 | 00 00 00 01 | 00 00 00 02 | 00 00 00 03
//	[]byte("hi")      ->  00 02 | 68 69
//	nil or empty      ->  00 00
//
// Byte slices skip the per-element loop and move the run in one copy. On
// decode any count below 1 yields the canonical empty slice and consumes
// only the prefix; a slice longer than MaxSequenceLen fails before anything
// is written.
type SequenceStrategy struct{}

func (SequenceStrategy) Name() string { return "sequence" }

func (SequenceStrategy) CanHandle(d Descriptor) bool {
	return d.Kind() == reflect.Slice
}

func (SequenceStrategy) PlanEncode(res Resolver, d Descriptor) (EncodeFunc, error) {
	if d.Elem().IsByte() {
		return func(w *Writer, v reflect.Value) error {
			return w.WriteByteSequence(v.Bytes())
		}, nil
	}

	elem, err := res.Resolve(d.Elem())
	if err != nil {
		return nil, err
	}
	enc := elem.encode
	return func(w *Writer, v reflect.Value) error {
		n := v.Len()
		if err := w.WriteSequenceLen(n); err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if err := enc(w, v.Index(i)); err != nil {
				return err
			}
		}
		return nil
	}, nil
}

func (SequenceStrategy) PlanDecode(res Resolver, d Descriptor) (DecodeFunc, error) {
	t := d.Type()
	// Shared like a static empty array: zero capacity, so appends by the
	// caller always reallocate.
	empty := reflect.MakeSlice(t, 0, 0)

	if d.Elem().IsByte() {
		return func(r *Reader, v reflect.Value) error {
			n, err := r.ReadSequenceLen()
			if err != nil {
				return err
			}
			if n == 0 {
				v.Set(empty)
				return nil
			}
			s := reflect.MakeSlice(t, n, n)
			if err := r.ReadFull(s.Bytes()); err != nil {
				return err
			}
			v.Set(s)
			return nil
		}, nil
	}

	elem, err := res.Resolve(d.Elem())
	if err != nil {
		return nil, err
	}
	dec := elem.decode
	return func(r *Reader, v reflect.Value) error {
		n, err := r.ReadSequenceLen()
		if err != nil {
			return err
		}
		if n == 0 {
			v.Set(empty)
			return nil
		}
		s := reflect.MakeSlice(t, n, n)
		for i := 0; i < n; i++ {
			if err := dec(r, s.Index(i)); err != nil {
				return err
			}
		}
		v.Set(s)
		return nil
	}, nil
}

// StringStrategy frames strings exactly like []byte.
type StringStrategy struct{}

func (StringStrategy) Name() string { return "string" }

func (StringStrategy) CanHandle(d Descriptor) bool {
	return d.Kind() == reflect.String
}

func (StringStrategy) PlanEncode(_ Resolver, _ Descriptor) (EncodeFunc, error) {
	return func(w *Writer, v reflect.Value) error {
		return w.WriteString(v.String())
	}, nil
}

func (StringStrategy) PlanDecode(_ Resolver, _ Descriptor) (DecodeFunc, error) {
	return func(r *Reader, v reflect.Value) error {
		s, err := r.ReadString()
		if err != nil {
			return err
		}
		v.SetString(s)
		return nil
	}, nil
}
