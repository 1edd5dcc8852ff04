// Package message defines what travels inside a gamewire frame: the opcode
// catalog that maps numbers to Go types, the in-process Request/Response
// pair that middleware sees, and the game messages themselves.
//
// A frame body is a single message value encoded by the codec named in the
// frame header. The opcode in the header picks the Go type to decode into.
package message

import "net"

// Request is one decoded inbound frame on its way through the middleware
// chain to a handler.
//
//   - Body is a pointer to the decoded message (e.g. *LoginReq).
//   - Name is the catalog name of Opcode, used by logging and metrics.
type Request struct {
	Opcode    Opcode
	Name      string
	Seq       uint32
	SessionID uint64
	Remote    net.Addr
	Body      any
}

// Response is what a handler hands back. A nil Body with an empty Error
// means nothing is written back to the peer.
type Response struct {
	Opcode Opcode
	Body   any
	Error  string
}

// Failed reports whether the handler chain produced an error.
func (r *Response) Failed() bool {
	return r != nil && r.Error != ""
}

// ErrorResponse builds a Response carrying only an error string.
func ErrorResponse(msg string) *Response {
	return &Response{Error: msg}
}
