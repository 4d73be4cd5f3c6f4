package bridge

import (
	"encoding/json"

	"go.bbrapi.dev/runner/pkg/module"
)

// Frame types.
const (
	// TypeHello is the first frame a game server sends.
	TypeHello = "hello"
	// TypeEvent carries a callback from the game server.
	TypeEvent = "event"
	// TypeReply answers an event that expects an answer.
	TypeReply = "reply"
	// TypeCommand asks the game server to do something.
	TypeCommand = "command"
)

// Frame is one JSON message on the bridge websocket.
type Frame struct {
	Type string `json:"type"`
	// ID correlates an event with its reply. Zero for events without reply.
	ID   uint64          `json:"id,omitempty"`
	Name string          `json:"name,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Hello identifies a game server.
type Hello struct {
	IP      string          `json:"ip"`
	Port    uint16          `json:"port"`
	Name    string          `json:"name"`
	Players []module.Player `json:"players,omitempty"`
}

// Payload is the data of an event frame. Each callback uses the fields
// matching its arguments.
type Payload struct {
	Player     *module.Player      `json:"player,omitempty"`
	From       *module.Player      `json:"from,omitempty"`
	To         *module.Player      `json:"to,omitempty"`
	SteamID    uint64              `json:"steamId,omitempty"`
	Role       module.GameRole     `json:"role,omitempty"`
	Team       module.Team         `json:"team,omitempty"`
	Squad      module.Squad        `json:"squad,omitempty"`
	Channel    module.ChatChannel  `json:"channel,omitempty"`
	Message    string              `json:"message,omitempty"`
	Request    module.SpawnRequest `json:"request,omitempty"`
	Joining    module.JoiningArgs  `json:"joining,omitempty"`
	Stats      module.PlayerStats  `json:"stats,omitempty"`
	Kill       module.KillArgs     `json:"kill,omitempty"`
	Reason     module.ReportReason `json:"reason,omitempty"`
	Additional string              `json:"additional,omitempty"`
	OldState   module.GameState    `json:"oldState,omitempty"`
	NewState   module.GameState    `json:"newState,omitempty"`
}

// Reply is the data of a reply frame.
type Reply struct {
	// Allow answers veto events.
	Allow bool `json:"allow"`
	// Request and OK answer OnPlayerSpawning.
	Request *module.SpawnRequest `json:"request,omitempty"`
	OK      bool                 `json:"ok,omitempty"`
}

// Command names.
const (
	CommandSay       = "say"
	CommandMessageTo = "messageTo"
	CommandKick      = "kick"
)

// Command is the data of a command frame.
type Command struct {
	SteamID uint64 `json:"steamId,omitempty"`
	Message string `json:"message,omitempty"`
}
