// Package protocol implements the gamewire frame: a fixed 16-byte header
// followed by a body of bodyLen bytes. The receiver reads the header, checks
// it, then reads exactly the body, which is how message boundaries survive
// TCP's byte stream.
//
// Frame format:
//
//	0      3  4  5  6       8          12         16
//	┌──────┬──┬──┬──┬───────┬──────────┬──────────┬───────────────┐
//	│magic │v │ct│mt│opcode │   seq    │ bodyLen  │    body ...   │
//	│ gwp  │01│  │  │uint16 │  uint32  │  uint32  │ bodyLen bytes │
//	└──────┴──┴──┴──┴───────┴──────────┴──────────┴───────────────┘
//
// Header fields are always big endian. The body byte order is the codec's
// business.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	MagicNumber byte = 0x67 // 'g'
	MagicByte2  byte = 0x77 // 'w'
	MagicByte3  byte = 0x70 // 'p'
	Version     byte = 0x01
	HeaderSize  int  = 16 // 3 (magic) + 1 (version) + 1 (codec) + 1 (msgType) + 2 (opcode) + 4 (seq) + 4 (bodyLen)

	// DefaultMaxBodySize bounds the body Decode accepts.
	DefaultMaxBodySize uint32 = 4 << 20
)

// MsgType says what a frame is for.
type MsgType byte

const (
	MsgTypeRequest   MsgType = 0 // client → server, expects a response with the same seq
	MsgTypeResponse  MsgType = 1 // server → client, answers seq
	MsgTypePush      MsgType = 2 // server → client, unsolicited, seq 0
	MsgTypeHeartbeat MsgType = 3 // keepalive, no body
	MsgTypeError     MsgType = 4 // server → client, body is an ErrorAck for seq
)

func (t MsgType) String() string {
	switch t {
	case MsgTypeRequest:
		return "request"
	case MsgTypeResponse:
		return "response"
	case MsgTypePush:
		return "push"
	case MsgTypeHeartbeat:
		return "heartbeat"
	case MsgTypeError:
		return "error"
	}
	return fmt.Sprintf("msgtype(%d)", byte(t))
}

// Codec type constants, mirrored from the codec package to avoid an import
// cycle.
const (
	CodecTypeJSON   byte = 0
	CodecTypeBinary byte = 1
	CodecTypeCBOR   byte = 2
)

var ErrBodyTooLarge = errors.New("protocol: frame body too large")

// Header is the fixed 16-byte frame header.
type Header struct {
	CodecType byte
	MsgType   MsgType
	Opcode    uint16 // message type of the body, see message.Opcode
	Seq       uint32 // matches a response to its request
	BodyLen   uint32
}

// Encode writes header and body to w in a single Write. BodyLen is taken
// from len(body). Callers sharing w between goroutines still need to hold a
// lock so that partial writes of two frames cannot interleave.
func Encode(w io.Writer, h *Header, body []byte) error {
	if uint64(len(body)) > uint64(^uint32(0)) {
		return ErrBodyTooLarge
	}
	buf := make([]byte, HeaderSize+len(body))
	buf[0], buf[1], buf[2] = MagicNumber, MagicByte2, MagicByte3
	buf[3] = Version
	buf[4] = h.CodecType
	buf[5] = byte(h.MsgType)
	binary.BigEndian.PutUint16(buf[6:8], h.Opcode)
	binary.BigEndian.PutUint32(buf[8:12], h.Seq)
	binary.BigEndian.PutUint32(buf[12:16], uint32(len(body)))
	copy(buf[HeaderSize:], body)

	_, err := w.Write(buf)
	return err
}

// Decode reads one frame from r with the default body limit.
func Decode(r io.Reader) (*Header, []byte, error) {
	return DecodeLimit(r, DefaultMaxBodySize)
}

// DecodeLimit reads one frame from r. A header announcing more than
// maxBody bytes is rejected before the body is allocated or read.
func DecodeLimit(r io.Reader, maxBody uint32) (*Header, []byte, error) {
	var hb [HeaderSize]byte
	if _, err := io.ReadFull(r, hb[:]); err != nil {
		return nil, nil, err
	}

	if hb[0] != MagicNumber || hb[1] != MagicByte2 || hb[2] != MagicByte3 {
		return nil, nil, fmt.Errorf("invalid magic number: %x", hb[0:3])
	}
	if hb[3] != Version {
		return nil, nil, fmt.Errorf("unsupported version: %d", hb[3])
	}
	if hb[4] > CodecTypeCBOR {
		return nil, nil, fmt.Errorf("unsupported codec type: %d", hb[4])
	}
	msgType := MsgType(hb[5])
	if msgType > MsgTypeError {
		return nil, nil, fmt.Errorf("unsupported message type: %d", hb[5])
	}

	h := &Header{
		CodecType: hb[4],
		MsgType:   msgType,
		Opcode:    binary.BigEndian.Uint16(hb[6:8]),
		Seq:       binary.BigEndian.Uint32(hb[8:12]),
		BodyLen:   binary.BigEndian.Uint32(hb[12:16]),
	}
	if h.BodyLen > maxBody {
		return nil, nil, fmt.Errorf("%w: %d bytes, limit %d", ErrBodyTooLarge, h.BodyLen, maxBody)
	}

	body := make([]byte, h.BodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, nil, err
	}
	return h, body, nil
}
