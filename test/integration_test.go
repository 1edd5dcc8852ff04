package test

import (
	"context"
	"errors"
	"net"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"gamewire/client"
	"gamewire/codec"
	"gamewire/loadbalance"
	"gamewire/message"
	"gamewire/middleware"
	"gamewire/registry"
	"gamewire/server"
	"gamewire/transport"
)

// lobby is a toy game service: login, a player list, clan lookups and a
// chat channel that fans out to every session.
type lobby struct {
	srv   *server.Server
	clans map[uint32]*message.ClanInfoAck
}

func newLobby(opts ...server.Option) *lobby {
	l := &lobby{
		srv: server.NewServer(opts...),
		clans: map[uint32]*message.ClanInfoAck{
			7: {
				ClanID:    7,
				Name:      "Nebuchadnezzar",
				Emblem:    [4]byte{0xde, 0xad, 0xbe, 0xef},
				MemberIDs: []uint64{1, 2, 3},
				Notice:    "wake up",
				Ranks:     []message.ClanRank{{AccountID: 1, Rank: 1}, {AccountID: 2, Rank: 2}},
			},
		},
	}
	server.MustHandle(l.srv, message.OpLoginReq, l.login)
	server.MustHandle(l.srv, message.OpPlayerListReq, l.players)
	server.MustHandle(l.srv, message.OpClanInfoReq, l.clanInfo)
	server.MustHandle(l.srv, message.OpChatMessage, l.chat)
	return l
}

func (l *lobby) login(ctx context.Context, sess *server.Session, req *message.LoginReq) (any, error) {
	if req.ClientVersion < 2 {
		return &message.LoginAck{Result: message.LoginWrongVersion}, nil
	}
	sess.Set("nickname", req.Username)
	return &message.LoginAck{Result: message.LoginOK, AccountID: req.AccountID, Nickname: req.Username, ServerTime: 1700000000}, nil
}

func (l *lobby) players(ctx context.Context, sess *server.Session, req *message.PlayerListReq) (any, error) {
	nick, _ := sess.Get("nickname")
	name, _ := nick.(string)
	return &message.PlayerList{
		Channel: req.Channel,
		Players: []message.PlayerInfo{
			{AccountID: 1, Nickname: name, Level: 10, Online: true, Tags: []string{"self"}},
			{AccountID: 2, Nickname: "agent smith", Level: 99, Exp: 1 << 20, ClanID: 7},
		},
	}, nil
}

func (l *lobby) clanInfo(ctx context.Context, sess *server.Session, req *message.ClanInfoReq) (any, error) {
	clan, ok := l.clans[req.ClanID]
	if !ok {
		return nil, errors.New("no such clan")
	}
	return clan, nil
}

func (l *lobby) chat(ctx context.Context, sess *server.Session, req *message.ChatMessage) (any, error) {
	nick, _ := sess.Get("nickname")
	req.Nickname, _ = nick.(string)
	l.srv.Broadcast(req)
	return &message.ServerResultAck{Result: message.ServerResultWelcome}, nil
}

func (l *lobby) start(t *testing.T, reg registry.Registry) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	go l.srv.ServeListener(ln, addr, reg)
	t.Cleanup(func() { l.srv.Shutdown(2 * time.Second) })

	require.Eventually(t, func() bool {
		got, _ := reg.Discover(context.Background(), "game")
		for _, inst := range got {
			if inst.Addr == addr {
				return true
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)
	return addr
}

func TestFullIntegration(t *testing.T) {
	for _, ct := range []codec.CodecType{codec.CodecTypeBinary, codec.CodecTypeJSON, codec.CodecTypeCBOR} {
		t.Run(ct.String(), func(t *testing.T) {
			reg := registry.NewMemoryRegistry()
			defer reg.Close()

			core, logs := observer.New(zap.DebugLevel)
			metrics := middleware.NewMetrics(prometheus.NewRegistry(), "lobby")
			limiter := middleware.NewSessionRateLimiter(1000, 100)

			l := newLobby()
			l.srv.Use(middleware.LoggingMiddleware(zap.New(core)))
			l.srv.Use(metrics.Middleware())
			l.srv.Use(middleware.TracingMiddleware())
			l.srv.Use(limiter.Middleware())
			l.srv.Use(middleware.TimeOutMiddleware(time.Second))
			l.srv.OnClose(func(s *server.Session) { limiter.Forget(s.ID()) })
			l.start(t, reg)

			pushes := make(chan *message.ChatMessage, 4)
			cli := client.NewClient(reg,
				client.WithCodec(ct),
				client.WithHeartbeat(0),
				client.WithMiddleware(middleware.RetryMiddleware(2, 10*time.Millisecond, nil)),
				client.WithPushHandler(func(op message.Opcode, msg any) {
					if m, ok := msg.(*message.ChatMessage); ok {
						pushes <- m
					}
				}))
			defer cli.Close()
			ctx := context.Background()

			resp, err := cli.Call(ctx, "game", &message.LoginReq{AccountID: 1, Username: "neo", ClientVersion: 1})
			require.NoError(t, err)
			assert.Equal(t, message.LoginWrongVersion, resp.(*message.LoginAck).Result)

			resp, err = cli.Call(ctx, "game", &message.LoginReq{AccountID: 1, Username: "neo", ClientVersion: 3})
			require.NoError(t, err)
			assert.Equal(t, &message.LoginAck{Result: message.LoginOK, AccountID: 1, Nickname: "neo", ServerTime: 1700000000}, resp)

			resp, err = cli.Call(ctx, "game", &message.PlayerListReq{Channel: 3})
			require.NoError(t, err)
			list := resp.(*message.PlayerList)
			assert.EqualValues(t, 3, list.Channel)
			require.Len(t, list.Players, 2)
			assert.Equal(t, "agent smith", list.Players[1].Nickname)

			resp, err = cli.Call(ctx, "game", &message.ClanInfoReq{ClanID: 7})
			require.NoError(t, err)
			assert.Equal(t, l.clans[7], resp)

			_, err = cli.Call(ctx, "game", &message.ClanInfoReq{ClanID: 8})
			var remote *transport.RemoteError
			require.ErrorAs(t, err, &remote)
			assert.Equal(t, "no such clan", remote.Message)

			_, err = cli.Call(ctx, "game", &message.ChatMessage{Channel: 1, Text: "there is no spoon"})
			require.NoError(t, err)
			select {
			case got := <-pushes:
				assert.Equal(t, "there is no spoon", got.Text)
			case <-time.After(2 * time.Second):
				t.Fatal("chat broadcast not received")
			}

			assert.Len(t, logs.FilterMessage("message handled").All(), 5)
			assert.Len(t, logs.FilterMessage("message failed").All(), 1)
		})
	}
}

func TestMultiServer(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	defer reg.Close()
	first := newLobby()
	a := first.start(t, reg)
	b := newLobby().start(t, reg)

	cli := client.NewClient(reg, client.WithHeartbeat(0), client.WithBalancer(&loadbalance.WeightedRandomBalancer{}))
	defer cli.Close()

	for i := 1; i <= 20; i++ {
		resp, err := cli.Call(context.Background(), "game", &message.LoginReq{AccountID: uint64(i), Username: "x", ClientVersion: 2})
		require.NoError(t, err, "request %d", i)
		assert.EqualValues(t, i, resp.(*message.LoginAck).AccountID)
	}

	// Shutdown deregisters a; the client follows the registry to b.
	require.NoError(t, first.srv.Shutdown(time.Second))
	require.Eventually(t, func() bool {
		got, _ := reg.Discover(context.Background(), "game")
		return len(got) == 1 && got[0].Addr == b
	}, time.Second, 10*time.Millisecond)
	// Until the client sees the update some calls may still pick a.
	assert.Eventually(t, func() bool {
		for i := 0; i < 10; i++ {
			if _, err := cli.Call(context.Background(), "game", &message.LoginReq{Username: "x", ClientVersion: 2}); err != nil {
				return false
			}
		}
		return true
	}, 2*time.Second, 20*time.Millisecond)
	for i := 0; i < 5; i++ {
		_, err := cli.Call(context.Background(), "game", &message.LoginReq{Username: "x", ClientVersion: 2})
		assert.NoError(t, err, "after %s left", a)
	}
}

// TestIntegrationWithEtcd runs the same flow against a real etcd when
// $ETCD_ENDPOINT is set.
func TestIntegrationWithEtcd(t *testing.T) {
	endpoint := os.Getenv("ETCD_ENDPOINT")
	if endpoint == "" {
		t.Skip("ETCD_ENDPOINT not set")
	}
	reg, err := registry.NewEtcdRegistry([]string{endpoint},
		registry.WithDialTimeout(2*time.Second),
		registry.WithPrefix("/gamewire-it/"))
	require.NoError(t, err)
	defer reg.Close()

	newLobby().start(t, reg)
	cli := client.NewClient(reg, client.WithHeartbeat(0))
	defer cli.Close()

	resp, err := cli.Call(context.Background(), "game", &message.LoginReq{AccountID: 3, Username: "trinity", ClientVersion: 2})
	require.NoError(t, err)
	assert.Equal(t, "trinity", resp.(*message.LoginAck).Nickname)
}
