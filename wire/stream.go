package wire

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
)

// MaxSequenceLen is the largest element count a sequence frame can carry.
const MaxSequenceLen = math.MaxInt16

// ByteOrder is satisfied by binary.BigEndian and binary.LittleEndian.
type ByteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// DefaultByteOrder is network byte order.
var DefaultByteOrder ByteOrder = binary.BigEndian

// Writer is the byte sink compiled encoders append to. It never fails on
// its own; only frame helpers with a size limit return errors.
type Writer struct {
	buf   []byte
	order ByteOrder
}

func NewWriter(order ByteOrder) *Writer {
	if order == nil {
		order = DefaultByteOrder
	}
	return &Writer{order: order}
}

func (w *Writer) Order() ByteOrder { return w.order }

func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

func (w *Writer) WriteUint8(v uint8)   { w.buf = append(w.buf, v) }
func (w *Writer) WriteInt8(v int8)     { w.buf = append(w.buf, byte(v)) }
func (w *Writer) WriteUint16(v uint16) { w.buf = w.order.AppendUint16(w.buf, v) }
func (w *Writer) WriteInt16(v int16)   { w.buf = w.order.AppendUint16(w.buf, uint16(v)) }
func (w *Writer) WriteUint32(v uint32) { w.buf = w.order.AppendUint32(w.buf, v) }
func (w *Writer) WriteInt32(v int32)   { w.buf = w.order.AppendUint32(w.buf, uint32(v)) }
func (w *Writer) WriteUint64(v uint64) { w.buf = w.order.AppendUint64(w.buf, v) }
func (w *Writer) WriteInt64(v int64)   { w.buf = w.order.AppendUint64(w.buf, uint64(v)) }

func (w *Writer) WriteFloat32(v float32) { w.WriteUint32(math.Float32bits(v)) }
func (w *Writer) WriteFloat64(v float64) { w.WriteUint64(math.Float64bits(v)) }

// WriteRaw appends p with no framing.
func (w *Writer) WriteRaw(p []byte) { w.buf = append(w.buf, p...) }

// WriteSequenceLen writes the int16 count of a sequence frame. It checks the
// limit before touching the buffer.
func (w *Writer) WriteSequenceLen(n int) error {
	if n > MaxSequenceLen {
		return &SequenceTooLongError{Len: n}
	}
	w.WriteInt16(int16(n))
	return nil
}

// WriteByteSequence writes p as a sequence frame of bytes: count then the
// raw run.
func (w *Writer) WriteByteSequence(p []byte) error {
	if err := w.WriteSequenceLen(len(p)); err != nil {
		return err
	}
	w.buf = append(w.buf, p...)
	return nil
}

// WriteString writes s framed exactly like a []byte.
func (w *Writer) WriteString(s string) error {
	if err := w.WriteSequenceLen(len(s)); err != nil {
		return err
	}
	w.buf = append(w.buf, s...)
	return nil
}

func (w *Writer) Len() int      { return len(w.buf) }
func (w *Writer) Bytes() []byte { return w.buf }
func (w *Writer) Reset()        { w.buf = w.buf[:0] }

var writerPool = sync.Pool{
	New: func() any { return &Writer{buf: make([]byte, 0, 512)} },
}

func getWriter(order ByteOrder) *Writer {
	w := writerPool.Get().(*Writer)
	w.order = order
	w.buf = w.buf[:0]
	return w
}

func putWriter(w *Writer) {
	// Large one-off messages would pin memory in the pool.
	if cap(w.buf) > 64<<10 {
		return
	}
	writerPool.Put(w)
}

// Reader is the byte source compiled decoders pull from. It reads exactly
// the bytes each call asks for and never buffers ahead, so the underlying
// io.Reader is positioned right after the decoded value.
type Reader struct {
	r        io.Reader
	order    ByteOrder
	consumed int64
	scratch  [8]byte
}

func NewReader(r io.Reader, order ByteOrder) *Reader {
	if order == nil {
		order = DefaultByteOrder
	}
	return &Reader{r: r, order: order}
}

func (r *Reader) Order() ByteOrder { return r.order }

// Consumed returns the number of bytes read so far.
func (r *Reader) Consumed() int64 { return r.consumed }

func (r *Reader) fill(n int) ([]byte, error) {
	b := r.scratch[:n]
	if err := r.ReadFull(b); err != nil {
		return nil, err
	}
	return b, nil
}

// ReadFull fills p from the source. A stream ending after part of a value
// has been read reports io.ErrUnexpectedEOF, even when the short read falls
// on a primitive boundary.
func (r *Reader) ReadFull(p []byte) error {
	m, err := io.ReadFull(r.r, p)
	if err == io.EOF && r.consumed > 0 {
		err = io.ErrUnexpectedEOF
	}
	r.consumed += int64(m)
	return err
}

// ReadRaw reads n bytes into a new slice.
func (r *Reader) ReadRaw(n int) ([]byte, error) {
	p := make([]byte, n)
	if err := r.ReadFull(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Reader) ReadBool() (bool, error) {
	b, err := r.fill(1)
	if err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.fill(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadInt8() (int8, error) {
	v, err := r.ReadUint8()
	return int8(v), err
}

func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.fill(2)
	if err != nil {
		return 0, err
	}
	return r.order.Uint16(b), nil
}

func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.fill(4)
	if err != nil {
		return 0, err
	}
	return r.order.Uint32(b), nil
}

func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.fill(8)
	if err != nil {
		return 0, err
	}
	return r.order.Uint64(b), nil
}

func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	return math.Float32frombits(v), err
}

func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	return math.Float64frombits(v), err
}

// ReadSequenceLen reads the int16 count of a sequence frame. Zero and every
// negative count both come back as 0: the frame is empty and no element
// bytes follow.
func (r *Reader) ReadSequenceLen() (int, error) {
	n, err := r.ReadInt16()
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, nil
	}
	return int(n), nil
}

// ReadByteSequence reads a sequence frame of bytes. The empty frame yields a
// non-nil empty slice.
func (r *Reader) ReadByteSequence() ([]byte, error) {
	n, err := r.ReadSequenceLen()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return []byte{}, nil
	}
	return r.ReadRaw(n)
}

func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadSequenceLen()
	if err != nil || n == 0 {
		return "", err
	}
	p, err := r.ReadRaw(n)
	if err != nil {
		return "", err
	}
	return string(p), nil
}
