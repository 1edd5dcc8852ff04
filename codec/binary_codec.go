package codec

import (
	"gamewire/wire"
)

// BinaryCodec writes the game wire format: fields in declaration order,
// fixed-width scalars, int16 counted sequences. Codecs are compiled once
// per type by Registry; a sealed registry only serves preloaded types.
type BinaryCodec struct {
	Registry *wire.Registry
}

func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	return c.Registry.Marshal(v)
}

func (c *BinaryCodec) Decode(data []byte, v any) error {
	return c.Registry.Unmarshal(data, v)
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}
