package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamewire/codec"
	"gamewire/message"
	"gamewire/protocol"
)

// fakeServer answers LoginReq with a LoginAck echoing the username, fails
// ClanInfoReq with an error frame, and echoes ChatMessage as a push followed
// by a ServerResultAck.
type fakeServer struct {
	ln      net.Listener
	catalog *message.Catalog
	codecs  *codec.Set

	mu    sync.Mutex
	conns []net.Conn
}

func startFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakeServer{ln: ln, catalog: message.GameCatalog(), codecs: codec.NewSet(nil)}
	go s.accept()
	t.Cleanup(s.close)
	return s
}

func (s *fakeServer) addr() string { return s.ln.Addr().String() }

func (s *fakeServer) accept() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		go s.serve(conn)
	}
}

// dropAll closes every accepted connection but keeps listening.
func (s *fakeServer) dropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		c.Close()
	}
	s.conns = nil
}

func (s *fakeServer) close() {
	s.ln.Close()
	s.dropAll()
}

func (s *fakeServer) serve(conn net.Conn) {
	var mu sync.Mutex
	write := func(h *protocol.Header, ct codec.Codec, v any) {
		body, err := ct.Encode(v)
		if err != nil {
			panic(err)
		}
		h.CodecType = byte(ct.Type())
		mu.Lock()
		defer mu.Unlock()
		protocol.Encode(conn, h, body)
	}

	for {
		h, body, err := protocol.Decode(conn)
		if err != nil {
			return
		}
		if h.MsgType == protocol.MsgTypeHeartbeat {
			continue
		}
		ct, _ := s.codecs.Get(codec.CodecType(h.CodecType))
		req, err := s.catalog.New(message.Opcode(h.Opcode))
		if err != nil {
			return
		}
		if err := ct.Decode(body, req); err != nil {
			return
		}

		// Answer concurrently so responses can arrive out of order.
		go func(h *protocol.Header, req any) {
			switch m := req.(type) {
			case *message.LoginReq:
				if m.ClientVersion > 0 {
					time.Sleep(time.Duration(m.ClientVersion) * time.Millisecond)
				}
				write(&protocol.Header{MsgType: protocol.MsgTypeResponse, Opcode: uint16(message.OpLoginAck), Seq: h.Seq},
					ct, &message.LoginAck{AccountID: m.AccountID, Nickname: m.Username})
			case *message.ClanInfoReq:
				write(&protocol.Header{MsgType: protocol.MsgTypeError, Opcode: uint16(message.OpErrorAck), Seq: h.Seq},
					ct, &message.ErrorAck{Opcode: h.Opcode, Message: "no such clan"})
			case *message.ChatMessage:
				write(&protocol.Header{MsgType: protocol.MsgTypePush, Opcode: uint16(message.OpChatMessage)}, ct, m)
				write(&protocol.Header{MsgType: protocol.MsgTypeResponse, Opcode: uint16(message.OpServerResultAck), Seq: h.Seq},
					ct, &message.ServerResultAck{Result: message.ServerResultWelcome})
			}
		}(h, req)
	}
}

func dialTransport(t *testing.T, addr string, opts ...Option) *ClientTransport {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	ct, err := NewClientTransport(conn, message.GameCatalog(), append([]Option{WithHeartbeat(0)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { ct.Close() })
	return ct
}

func TestClientTransportSerial(t *testing.T) {
	srv := startFakeServer(t)
	ct := dialTransport(t, srv.addr())

	for _, name := range []string{"neo", "trinity", "morpheus"} {
		resp, err := ct.Call(context.Background(), &message.LoginReq{Username: name})
		require.NoError(t, err)
		ack, ok := resp.(*message.LoginAck)
		require.True(t, ok, "got %T", resp)
		assert.Equal(t, name, ack.Nickname)
	}
}

func TestClientTransportConcurrent(t *testing.T) {
	srv := startFakeServer(t)
	ct := dialTransport(t, srv.addr())

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Later requests answer sooner, so replies come back out of order.
			resp, err := ct.Call(context.Background(), &message.LoginReq{
				AccountID:     uint64(i),
				ClientVersion: uint32(n - i),
			})
			if err != nil {
				errs <- err
				return
			}
			if got := resp.(*message.LoginAck).AccountID; got != uint64(i) {
				errs <- errors.New("reply routed to the wrong caller")
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestClientTransportCodecs(t *testing.T) {
	srv := startFakeServer(t)
	for _, ct := range []codec.CodecType{codec.CodecTypeJSON, codec.CodecTypeBinary, codec.CodecTypeCBOR} {
		t.Run(ct.String(), func(t *testing.T) {
			tr := dialTransport(t, srv.addr(), WithCodec(ct))
			resp, err := tr.Call(context.Background(), &message.LoginReq{AccountID: 9, Username: "switch"})
			require.NoError(t, err)
			assert.Equal(t, &message.LoginAck{AccountID: 9, Nickname: "switch"}, resp)
		})
	}
}

func TestClientTransportRemoteError(t *testing.T) {
	srv := startFakeServer(t)
	ct := dialTransport(t, srv.addr())

	_, err := ct.Call(context.Background(), &message.ClanInfoReq{ClanID: 404})
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, message.OpClanInfoReq, remote.Opcode)
	assert.Equal(t, "no such clan", remote.Message)
	assert.False(t, ct.Closed(), "error frames do not close the connection")
}

func TestClientTransportPush(t *testing.T) {
	srv := startFakeServer(t)
	pushes := make(chan any, 1)
	ct := dialTransport(t, srv.addr(), WithPushHandler(func(op message.Opcode, msg any) {
		if op == message.OpChatMessage {
			pushes <- msg
		}
	}))

	resp, err := ct.Call(context.Background(), &message.ChatMessage{Channel: 1, Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, message.ServerResultWelcome, resp.(*message.ServerResultAck).Result)

	select {
	case msg := <-pushes:
		assert.Equal(t, "hello", msg.(*message.ChatMessage).Text)
	case <-time.After(time.Second):
		t.Fatal("push not delivered")
	}
}

func TestClientTransportUnknownMessage(t *testing.T) {
	srv := startFakeServer(t)
	ct := dialTransport(t, srv.addr())

	type notInCatalog struct{ X uint8 }
	_, _, err := ct.Send(&notInCatalog{})
	assert.ErrorIs(t, err, message.ErrUnknownType)
}

func TestClientTransportContextCancel(t *testing.T) {
	srv := startFakeServer(t)
	ct := dialTransport(t, srv.addr())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := ct.Call(ctx, &message.LoginReq{ClientVersion: 500})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClientTransportConnectionLoss(t *testing.T) {
	srv := startFakeServer(t)
	ct := dialTransport(t, srv.addr())

	_, ch, err := ct.Send(&message.LoginReq{ClientVersion: 1000})
	require.NoError(t, err)
	srv.dropAll()

	select {
	case reply := <-ch:
		assert.Error(t, reply.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("pending call not released")
	}
	assert.Eventually(t, ct.Closed, time.Second, 10*time.Millisecond)

	_, _, err = ct.Send(&message.LoginReq{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClientTransportClose(t *testing.T) {
	srv := startFakeServer(t)
	ct := dialTransport(t, srv.addr())

	_, ch, err := ct.Send(&message.LoginReq{ClientVersion: 1000})
	require.NoError(t, err)
	require.NoError(t, ct.Close())

	reply := <-ch
	assert.ErrorIs(t, reply.Err, ErrClosed)
}

func TestClientTransportHeartbeat(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	beats := make(chan protocol.MsgType, 4)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			h, _, err := protocol.Decode(conn)
			if err != nil {
				return
			}
			beats <- h.MsgType
		}
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	ct, err := NewClientTransport(conn, message.GameCatalog(), WithHeartbeat(10*time.Millisecond))
	require.NoError(t, err)
	defer ct.Close()

	select {
	case mt := <-beats:
		assert.Equal(t, protocol.MsgTypeHeartbeat, mt)
	case <-time.After(time.Second):
		t.Fatal("no heartbeat")
	}
}

func TestPool(t *testing.T) {
	srv := startFakeServer(t)
	var dials int
	var mu sync.Mutex
	base := TCPDialer(message.GameCatalog(), WithHeartbeat(0))
	p := NewPool(srv.addr(), 2, func(ctx context.Context, addr string) (*ClientTransport, error) {
		mu.Lock()
		dials++
		mu.Unlock()
		return base(ctx, addr)
	})
	defer p.Close()

	seen := map[*ClientTransport]bool{}
	for i := 0; i < 6; i++ {
		tr, err := p.Get(context.Background())
		require.NoError(t, err)
		seen[tr] = true
		_, err = tr.Call(context.Background(), &message.LoginReq{Username: "pool"})
		require.NoError(t, err)
	}
	assert.Len(t, seen, 2)
	assert.Equal(t, 2, dials)
	assert.Equal(t, 2, p.Len())

	// A dead transport is replaced on the next Get for its slot.
	for tr := range seen {
		tr.Close()
	}
	assert.Eventually(t, func() bool { return p.Len() == 0 }, time.Second, 10*time.Millisecond)
	tr, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, seen[tr])

	require.NoError(t, p.Close())
	_, err = p.Get(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
}
