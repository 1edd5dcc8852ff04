package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// cborEnc uses Core Deterministic Encoding (RFC 8949 §4.2): the same value
// always produces the same bytes.
var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// CBORCodec is a self-describing binary codec. Unknown fields are ignored
// on decode, so it tolerates peers one message version ahead.
type CBORCodec struct{}

func (c *CBORCodec) Encode(v any) ([]byte, error) {
	return cborEnc.Marshal(v)
}

func (c *CBORCodec) Decode(data []byte, v any) error {
	return cborDec.Unmarshal(data, v)
}

func (c *CBORCodec) Type() CodecType {
	return CodecTypeCBOR
}
