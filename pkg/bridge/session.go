package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-logr/logr"
	"github.com/rs/xid"

	"go.bbrapi.dev/runner/pkg/module"
	"go.bbrapi.dev/runner/pkg/server"
)

// ErrDisconnected is returned by commands while the game server is away.
var ErrDisconnected = errors.New("game server is not connected")

const writeTimeout = 5 * time.Second

// Session is a game server identified by its address. It outlives single
// websocket connections so that a reconnecting server keeps its modules.
type Session struct {
	addr string
	log  logr.Logger

	mu      sync.RWMutex
	name    string
	conn    *websocket.Conn
	connID  xid.ID
	players map[uint64]module.Player
	host    *server.Host
}

var _ module.Server = (*Session)(nil)

func newSession(addr string, log logr.Logger) *Session {
	return &Session{
		addr:    addr,
		log:     log.WithValues("server", addr),
		players: map[uint64]module.Player{},
	}
}

// Addr is the "ip:port" the game server announced.
func (s *Session) Addr() string { return s.addr }

// Name is the display name of the game server.
func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// Connected reports whether the game server is currently connected.
func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn != nil
}

// ConnID identifies the current connection, empty while disconnected.
func (s *Session) ConnID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return ""
	}
	return s.connID.String()
}

// Host returns the module host of the server.
func (s *Session) Host() *server.Host {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.host
}

// Players returns the connected players ordered by Steam ID.
func (s *Session) Players() []module.Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	players := make([]module.Player, 0, len(s.players))
	for _, p := range s.players {
		players = append(players, p)
	}
	slices.SortFunc(players, func(a, b module.Player) int {
		switch {
		case a.SteamID < b.SteamID:
			return -1
		case a.SteamID > b.SteamID:
			return 1
		}
		return 0
	})
	return players
}

// Say broadcasts a chat message.
func (s *Session) Say(msg string) error {
	return s.command(CommandSay, Command{Message: msg})
}

// MessageTo sends a message to one player.
func (s *Session) MessageTo(steamID uint64, msg string) error {
	return s.command(CommandMessageTo, Command{SteamID: steamID, Message: msg})
}

// Kick removes a player from the server.
func (s *Session) Kick(steamID uint64, reason string) error {
	return s.command(CommandKick, Command{SteamID: steamID, Message: reason})
}

func (s *Session) command(name string, cmd Command) error {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return ErrDisconnected
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	return write(conn, &Frame{Type: TypeCommand, Name: name, Data: data})
}

func write(conn *websocket.Conn, f *Frame) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, f)
}

// bind makes conn the current connection. It fails if another connection
// is active.
func (s *Session) bind(conn *websocket.Conn, id xid.ID, hello *Hello) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return false
	}
	s.conn = conn
	s.connID = id
	s.name = hello.Name
	clear(s.players)
	for _, p := range hello.Players {
		s.players[p.SteamID] = p
	}
	return true
}

func (s *Session) unbind(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == conn {
		s.conn = nil
		clear(s.players)
	}
}

// observe keeps the player snapshot current.
func (s *Session) observe(c module.Callback, p *Payload) {
	if p.Player == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch c {
	case module.PlayerConnected:
		s.players[p.Player.SteamID] = *p.Player
	case module.PlayerDisconnected:
		delete(s.players, p.Player.SteamID)
	default:
		if _, ok := s.players[p.Player.SteamID]; ok {
			s.players[p.Player.SteamID] = *p.Player
		}
	}
}
