package module

import "fmt"

// ChatChannel is the chat a message was typed in.
type ChatChannel uint8

const (
	AllChat ChatChannel = iota
	TeamChat
	SquadChat
)

func (c ChatChannel) String() string {
	switch c {
	case AllChat:
		return "all"
	case TeamChat:
		return "team"
	case SquadChat:
		return "squad"
	}
	return fmt.Sprintf("ChatChannel(%d)", c)
}

// GameRole is a player class.
type GameRole uint8

const (
	Assault GameRole = iota
	Medic
	Support
	Engineer
	Recon
	Leader
)

var roleNames = [...]string{"Assault", "Medic", "Support", "Engineer", "Recon", "Leader"}

func (r GameRole) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return fmt.Sprintf("GameRole(%d)", r)
}

// Team identifies one side of a round.
type Team uint8

const (
	TeamA Team = iota
	TeamB
	NoTeam
)

func (t Team) String() string {
	switch t {
	case TeamA:
		return "TeamA"
	case TeamB:
		return "TeamB"
	case NoTeam:
		return "None"
	}
	return fmt.Sprintf("Team(%d)", t)
}

// Squad is a squad slot within a team. NoSquad means the player is alone.
type Squad uint8

const (
	NoSquad Squad = iota
	Alpha
	Bravo
	Charlie
	Delta
	Echo
	Foxtrot
	Golf
	Hotel
)

var squadNames = [...]string{"NoSquad", "Alpha", "Bravo", "Charlie", "Delta", "Echo", "Foxtrot", "Golf", "Hotel"}

func (s Squad) String() string {
	if int(s) < len(squadNames) {
		return squadNames[s]
	}
	return fmt.Sprintf("Squad(%d)", s)
}

// GameState is the state of the current round.
type GameState uint8

const (
	WaitingForPlayers GameState = iota
	CountingDown
	Playing
	EndingGame
)

var gameStateNames = [...]string{"WaitingForPlayers", "CountingDown", "Playing", "EndingGame"}

func (s GameState) String() string {
	if int(s) < len(gameStateNames) {
		return gameStateNames[s]
	}
	return fmt.Sprintf("GameState(%d)", s)
}

// ReportReason is the reason a player gave when reporting another player.
type ReportReason uint8

const (
	Cheating ReportReason = iota
	UsingInsultingLanguage
	Harassment
	TeamKilling
	Spamming
	Other
)

// Stance is the body stance a player spawns in.
type Stance uint8

const (
	Standing Stance = iota
	Crouching
	Proning
)

// Vector3 is a world position or direction.
type Vector3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// Player is the host's view of a connected player.
type Player struct {
	SteamID uint64   `json:"steamId"`
	Name    string   `json:"name"`
	Role    GameRole `json:"role"`
	Team    Team     `json:"team"`
	Squad   Squad    `json:"squad"`
	Alive   bool     `json:"alive"`
	Ping    int      `json:"ping"`
}

func (p *Player) String() string {
	if p == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s (%d)", p.Name, p.SteamID)
}

// Loadout is the equipment a player spawns with.
type Loadout struct {
	Primary   string   `json:"primary"`
	Secondary string   `json:"secondary"`
	Throwable string   `json:"throwable"`
	Gadgets   []string `json:"gadgets,omitempty"`
}

// SpawnRequest is what a player asked for when spawning.
// Modules may hand back a modified copy from OnPlayerSpawning.
type SpawnRequest struct {
	Point      int     `json:"point"`
	Loadout    Loadout `json:"loadout"`
	Position   Vector3 `json:"position"`
	Direction  Vector3 `json:"direction"`
	Stance     Stance  `json:"stance"`
	Protection float32 `json:"protection"`
}

// KillArgs describes a player downing another player.
type KillArgs struct {
	Killer   *Player `json:"killer"`
	Victim   *Player `json:"victim"`
	Tool     string  `json:"tool"`
	BodyPart string  `json:"bodyPart"`
	Distance float32 `json:"distance"`
}

// PlayerStats is the persistent progress of a player.
type PlayerStats struct {
	Rank     uint32 `json:"rank"`
	Prestige uint32 `json:"prestige"`
	Kills    uint32 `json:"kills"`
	Deaths   uint32 `json:"deaths"`
	IsBanned bool   `json:"isBanned"`
	Roles    uint64 `json:"roles"`
}

// JoiningArgs is handed to OnPlayerJoiningToServer.
type JoiningArgs struct {
	Stats PlayerStats `json:"stats"`
	Team  Team        `json:"team"`
	Squad Squad       `json:"squad"`
}
