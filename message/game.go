package message

//go:generate go run gamewire/cmd/wiregen --in game.go --out message_wire.go

// Opcodes of the game protocol. The high byte groups them by feature.
const (
	OpLoginReq        Opcode = 0x0101
	OpLoginAck        Opcode = 0x0102
	OpServerResultAck Opcode = 0x0104
	OpChatMessage     Opcode = 0x0201
	OpPlayerListReq   Opcode = 0x0203
	OpPlayerList      Opcode = 0x0204
	OpClanInfoReq     Opcode = 0x0301
	OpClanInfoAck     Opcode = 0x0302
	OpErrorAck        Opcode = 0x7FFF
)

type LoginResult uint8

const (
	LoginOK LoginResult = iota
	LoginChooseNickname
	LoginSessionTimeout
	LoginAuthenticationFailed
	LoginServerFull
	LoginWrongVersion
)

type ServerResult uint32

const (
	ServerResultWelcome ServerResult = iota + 1
	ServerResultIPLocked
	ServerResultTaskFailed
	ServerResultNicknameTaken
)

// LoginReq is the first message a client sends.
//
//wire:generate
type LoginReq struct {
	AccountID     uint64
	Username      string
	SessionKey    [16]byte
	ClientVersion uint32
}

type LoginAck struct {
	Result     LoginResult
	AccountID  uint64
	Nickname   string
	ServerTime int64
}

// ServerResultAck carries a server-wide notice code.
type ServerResultAck struct {
	Result ServerResult
}

type ChatMessage struct {
	Channel  uint32
	SenderID uint64
	Nickname string
	Text     string
}

type PlayerListReq struct {
	Channel uint32
}

//wire:generate
type PlayerInfo struct {
	AccountID uint64
	Nickname  string
	Level     uint8
	Exp       uint32
	ClanID    uint32
	Online    bool
	Tags      []string
}

//wire:generate
type PlayerList struct {
	Channel uint32
	Players []PlayerInfo
}

type ClanInfoReq struct {
	ClanID uint32
}

type ClanInfoAck struct {
	ClanID    uint32
	Name      string
	Emblem    [4]byte
	MemberIDs []uint64
	Notice    string
	Ranks     []ClanRank
}

type ClanRank struct {
	AccountID uint64
	Rank      uint8
}

// ErrorAck is sent in place of a response when a handler fails.
type ErrorAck struct {
	Opcode  uint16
	Message string
}

// GameCatalog returns a catalog holding every message of the game protocol.
func GameCatalog() *Catalog {
	c := NewCatalog()
	c.MustRegister(OpLoginReq, "LoginReq", LoginReq{})
	c.MustRegister(OpLoginAck, "LoginAck", LoginAck{})
	c.MustRegister(OpServerResultAck, "ServerResultAck", ServerResultAck{})
	c.MustRegister(OpChatMessage, "ChatMessage", ChatMessage{})
	c.MustRegister(OpPlayerListReq, "PlayerListReq", PlayerListReq{})
	c.MustRegister(OpPlayerList, "PlayerList", PlayerList{})
	c.MustRegister(OpClanInfoReq, "ClanInfoReq", ClanInfoReq{})
	c.MustRegister(OpClanInfoAck, "ClanInfoAck", ClanInfoAck{})
	c.MustRegister(OpErrorAck, "ErrorAck", ErrorAck{})
	return c
}
