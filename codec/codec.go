// Package codec turns message values into frame bodies and back. The frame
// header carries the codec type, so peers can mix codecs per frame.
//
//   - Binary is the game wire format, compiled per type by a wire.Registry.
//   - JSON is for tooling and debugging.
//   - CBOR is for services that want a self-describing binary form.
package codec

import (
	"fmt"

	"gamewire/wire"
)

type CodecType byte

const (
	CodecTypeJSON   CodecType = 0
	CodecTypeBinary CodecType = 1
	CodecTypeCBOR   CodecType = 2
)

func (t CodecType) String() string {
	switch t {
	case CodecTypeJSON:
		return "json"
	case CodecTypeBinary:
		return "binary"
	case CodecTypeCBOR:
		return "cbor"
	}
	return fmt.Sprintf("codec(%d)", byte(t))
}

// ParseCodecType maps a config name to its CodecType.
func ParseCodecType(name string) (CodecType, error) {
	switch name {
	case "json":
		return CodecTypeJSON, nil
	case "binary", "":
		return CodecTypeBinary, nil
	case "cbor":
		return CodecTypeCBOR, nil
	}
	return 0, fmt.Errorf("codec: unknown codec %q", name)
}

// Codec encodes one message value per frame body. Decode takes a pointer to
// the destination value.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType
}

// GetCodec returns the codec for t backed by the default wire registry.
func GetCodec(t CodecType) (Codec, error) {
	return New(t, wire.Default)
}

// New returns the codec for t. reg backs the binary codec and is ignored by
// the others.
func New(t CodecType, reg *wire.Registry) (Codec, error) {
	switch t {
	case CodecTypeJSON:
		return &JSONCodec{}, nil
	case CodecTypeBinary:
		if reg == nil {
			reg = wire.Default
		}
		return &BinaryCodec{Registry: reg}, nil
	case CodecTypeCBOR:
		return &CBORCodec{}, nil
	}
	return nil, fmt.Errorf("codec: unsupported codec type %d", byte(t))
}

// Set holds one instance of every codec so per-frame lookups do not
// allocate.
type Set struct {
	codecs [3]Codec
}

func NewSet(reg *wire.Registry) *Set {
	s := &Set{}
	for _, t := range []CodecType{CodecTypeJSON, CodecTypeBinary, CodecTypeCBOR} {
		c, _ := New(t, reg)
		s.codecs[t] = c
	}
	return s
}

func (s *Set) Get(t CodecType) (Codec, error) {
	if int(t) >= len(s.codecs) {
		return nil, fmt.Errorf("codec: unsupported codec type %d", byte(t))
	}
	return s.codecs[t], nil
}
