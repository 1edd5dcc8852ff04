package codec

import (
	"bytes"
	"encoding/json"
	"errors"
)

var errJSONTrailing = errors.New("codec: trailing data after JSON body")

// JSONCodec uses encoding/json. Field names travel with every message, so
// it is for admin tools and debugging rather than the game hot path.
// Like the binary codec, a body must hold exactly one value.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errJSONTrailing
	}
	return nil
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
