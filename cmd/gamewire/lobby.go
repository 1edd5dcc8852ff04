package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"gamewire/message"
	"gamewire/server"
)

// lobby is the minimal game service serve runs: it logs players in, lists
// who is online on a channel and relays chat. Clans live elsewhere.
type lobby struct {
	srv *server.Server

	mu      sync.Mutex
	players map[uint64]message.PlayerInfo // session ID -> player
}

func registerLobby(srv *server.Server) error {
	l := &lobby{srv: srv, players: make(map[uint64]message.PlayerInfo)}
	srv.OnClose(l.leave)
	return errors.Join(
		server.Handle(srv, message.OpLoginReq, l.login),
		server.Handle(srv, message.OpPlayerListReq, l.list),
		server.Handle(srv, message.OpChatMessage, l.chat),
		server.Handle(srv, message.OpClanInfoReq, l.clanInfo),
	)
}

func (l *lobby) login(ctx context.Context, sess *server.Session, req *message.LoginReq) (any, error) {
	if req.Username == "" {
		return &message.LoginAck{Result: message.LoginChooseNickname}, nil
	}
	l.mu.Lock()
	for _, p := range l.players {
		if p.Nickname == req.Username && p.AccountID != req.AccountID {
			l.mu.Unlock()
			return &message.ServerResultAck{Result: message.ServerResultNicknameTaken}, nil
		}
	}
	l.players[sess.ID()] = message.PlayerInfo{AccountID: req.AccountID, Nickname: req.Username, Level: 1, Online: true}
	l.mu.Unlock()

	sess.Set("account", req.AccountID)
	return &message.LoginAck{
		Result:     message.LoginOK,
		AccountID:  req.AccountID,
		Nickname:   req.Username,
		ServerTime: time.Now().Unix(),
	}, nil
}

func (l *lobby) list(ctx context.Context, sess *server.Session, req *message.PlayerListReq) (any, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := &message.PlayerList{Channel: req.Channel, Players: make([]message.PlayerInfo, 0, len(l.players))}
	for _, p := range l.players {
		out.Players = append(out.Players, p)
	}
	return out, nil
}

func (l *lobby) chat(ctx context.Context, sess *server.Session, req *message.ChatMessage) (any, error) {
	l.mu.Lock()
	p, ok := l.players[sess.ID()]
	l.mu.Unlock()
	if !ok {
		return nil, errors.New("login first")
	}
	req.SenderID, req.Nickname = p.AccountID, p.Nickname
	l.srv.Broadcast(req)
	return &message.ServerResultAck{Result: message.ServerResultWelcome}, nil
}

func (l *lobby) clanInfo(ctx context.Context, sess *server.Session, req *message.ClanInfoReq) (any, error) {
	return nil, errors.New("clan service unavailable")
}

func (l *lobby) leave(sess *server.Session) {
	l.mu.Lock()
	delete(l.players, sess.ID())
	l.mu.Unlock()
}
