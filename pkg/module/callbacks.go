package module

import "fmt"

// Callback identifies one hook of the host callback surface.
type Callback uint8

const (
	ModulesLoaded Callback = iota
	ModuleUnloading
	Connected
	Tick
	Reconnected
	Disconnected
	PlayerConnected
	PlayerDisconnected
	PlayerTypedMessage
	PlayerJoiningToServer
	SavePlayerStats
	PlayerRequestingToChangeRole
	PlayerRequestingToChangeTeam
	PlayerChangedRole
	PlayerJoinedSquad
	PlayerLeftSquad
	PlayerChangeTeam
	PlayerSpawning
	PlayerSpawned
	PlayerDied
	PlayerGivenUp
	APlayerDownedAnotherPlayer
	APlayerRevivedAnotherPlayer
	PlayerReported
	GameStateChanged
	RoundStarted
	RoundEnded

	callbackCount
)

// Kind is how the results of a callback are combined across modules.
type Kind uint8

const (
	// Notify callbacks return nothing.
	Notify Kind = iota
	// Veto callbacks return a bool; a single false denies.
	Veto
	// Chain callbacks pass each module's returned value on to the next module.
	Chain
)

func (k Kind) String() string {
	switch k {
	case Notify:
		return "notify"
	case Veto:
		return "veto"
	case Chain:
		return "chain"
	}
	return fmt.Sprintf("Kind(%d)", k)
}

var callbackInfo = [callbackCount]struct {
	method string
	kind   Kind
}{
	ModulesLoaded:                {"OnModulesLoaded", Notify},
	ModuleUnloading:              {"OnModuleUnloading", Notify},
	Connected:                    {"OnConnected", Notify},
	Tick:                         {"OnTick", Notify},
	Reconnected:                  {"OnReconnected", Notify},
	Disconnected:                 {"OnDisconnected", Notify},
	PlayerConnected:              {"OnPlayerConnected", Notify},
	PlayerDisconnected:           {"OnPlayerDisconnected", Notify},
	PlayerTypedMessage:           {"OnPlayerTypedMessage", Veto},
	PlayerJoiningToServer:        {"OnPlayerJoiningToServer", Notify},
	SavePlayerStats:              {"OnSavePlayerStats", Notify},
	PlayerRequestingToChangeRole: {"OnPlayerRequestingToChangeRole", Veto},
	PlayerRequestingToChangeTeam: {"OnPlayerRequestingToChangeTeam", Veto},
	PlayerChangedRole:            {"OnPlayerChangedRole", Notify},
	PlayerJoinedSquad:            {"OnPlayerJoinedSquad", Notify},
	PlayerLeftSquad:              {"OnPlayerLeftSquad", Notify},
	PlayerChangeTeam:             {"OnPlayerChangeTeam", Notify},
	PlayerSpawning:               {"OnPlayerSpawning", Chain},
	PlayerSpawned:                {"OnPlayerSpawned", Notify},
	PlayerDied:                   {"OnPlayerDied", Notify},
	PlayerGivenUp:                {"OnPlayerGivenUp", Notify},
	APlayerDownedAnotherPlayer:   {"OnAPlayerDownedAnotherPlayer", Notify},
	APlayerRevivedAnotherPlayer:  {"OnAPlayerRevivedAnotherPlayer", Notify},
	PlayerReported:               {"OnPlayerReported", Notify},
	GameStateChanged:             {"OnGameStateChanged", Notify},
	RoundStarted:                 {"OnRoundStarted", Notify},
	RoundEnded:                   {"OnRoundEnded", Notify},
}

// String returns the method name a module implements to receive the callback.
func (c Callback) String() string {
	if c < callbackCount {
		return callbackInfo[c].method
	}
	return fmt.Sprintf("Callback(%d)", c)
}

// Kind returns how results of c are combined.
func (c Callback) Kind() Kind {
	if c < callbackCount {
		return callbackInfo[c].kind
	}
	return Notify
}

// Callbacks returns the whole catalogue in declaration order.
func Callbacks() []Callback {
	cs := make([]Callback, callbackCount)
	for i := range cs {
		cs[i] = Callback(i)
	}
	return cs
}

// CallbackByMethod looks up a callback by its method name, e.g. "OnTick".
func CallbackByMethod(method string) (Callback, bool) {
	for i, info := range callbackInfo {
		if info.method == method {
			return Callback(i), true
		}
	}
	return 0, false
}

// Handlers are the typed callbacks one module instance registered.
// A nil field means the module does not implement that callback.
type Handlers struct {
	ModulesLoaded                func()
	ModuleUnloading              func()
	Connected                    func()
	Tick                         func()
	Reconnected                  func()
	Disconnected                 func()
	PlayerConnected              func(player *Player)
	PlayerDisconnected           func(player *Player)
	PlayerTypedMessage           func(player *Player, channel ChatChannel, msg string) bool
	PlayerJoiningToServer        func(steamID uint64, args JoiningArgs)
	SavePlayerStats              func(steamID uint64, stats PlayerStats)
	PlayerRequestingToChangeRole func(player *Player, role GameRole) bool
	PlayerRequestingToChangeTeam func(player *Player, team Team) bool
	PlayerChangedRole            func(player *Player, role GameRole)
	PlayerJoinedSquad            func(player *Player, squad Squad)
	PlayerLeftSquad              func(player *Player, squad Squad)
	PlayerChangeTeam             func(player *Player, team Team)
	PlayerSpawning               func(player *Player, request SpawnRequest) (SpawnRequest, bool)
	PlayerSpawned                func(player *Player)
	PlayerDied                   func(player *Player)
	PlayerGivenUp                func(player *Player)
	APlayerDownedAnotherPlayer   func(args KillArgs)
	APlayerRevivedAnotherPlayer  func(from, to *Player)
	PlayerReported               func(from, to *Player, reason ReportReason, additional string)
	GameStateChanged             func(oldState, newState GameState)
	RoundStarted                 func()
	RoundEnded                   func()
}

// Has reports whether a handler for c is registered.
func (h *Handlers) Has(c Callback) bool {
	switch c {
	case ModulesLoaded:
		return h.ModulesLoaded != nil
	case ModuleUnloading:
		return h.ModuleUnloading != nil
	case Connected:
		return h.Connected != nil
	case Tick:
		return h.Tick != nil
	case Reconnected:
		return h.Reconnected != nil
	case Disconnected:
		return h.Disconnected != nil
	case PlayerConnected:
		return h.PlayerConnected != nil
	case PlayerDisconnected:
		return h.PlayerDisconnected != nil
	case PlayerTypedMessage:
		return h.PlayerTypedMessage != nil
	case PlayerJoiningToServer:
		return h.PlayerJoiningToServer != nil
	case SavePlayerStats:
		return h.SavePlayerStats != nil
	case PlayerRequestingToChangeRole:
		return h.PlayerRequestingToChangeRole != nil
	case PlayerRequestingToChangeTeam:
		return h.PlayerRequestingToChangeTeam != nil
	case PlayerChangedRole:
		return h.PlayerChangedRole != nil
	case PlayerJoinedSquad:
		return h.PlayerJoinedSquad != nil
	case PlayerLeftSquad:
		return h.PlayerLeftSquad != nil
	case PlayerChangeTeam:
		return h.PlayerChangeTeam != nil
	case PlayerSpawning:
		return h.PlayerSpawning != nil
	case PlayerSpawned:
		return h.PlayerSpawned != nil
	case PlayerDied:
		return h.PlayerDied != nil
	case PlayerGivenUp:
		return h.PlayerGivenUp != nil
	case APlayerDownedAnotherPlayer:
		return h.APlayerDownedAnotherPlayer != nil
	case APlayerRevivedAnotherPlayer:
		return h.APlayerRevivedAnotherPlayer != nil
	case PlayerReported:
		return h.PlayerReported != nil
	case GameStateChanged:
		return h.GameStateChanged != nil
	case RoundStarted:
		return h.RoundStarted != nil
	case RoundEnded:
		return h.RoundEnded != nil
	}
	return false
}

// Registration methods. The generated module factory calls these once per
// instance with the module's method values.

func (i *Instance) OnModulesLoaded(fn func())   { i.set(func(h *Handlers) { h.ModulesLoaded = fn }) }
func (i *Instance) OnModuleUnloading(fn func()) { i.set(func(h *Handlers) { h.ModuleUnloading = fn }) }
func (i *Instance) OnConnected(fn func())       { i.set(func(h *Handlers) { h.Connected = fn }) }
func (i *Instance) OnTick(fn func())            { i.set(func(h *Handlers) { h.Tick = fn }) }
func (i *Instance) OnReconnected(fn func())     { i.set(func(h *Handlers) { h.Reconnected = fn }) }
func (i *Instance) OnDisconnected(fn func())    { i.set(func(h *Handlers) { h.Disconnected = fn }) }
func (i *Instance) OnPlayerConnected(fn func(player *Player)) {
	i.set(func(h *Handlers) { h.PlayerConnected = fn })
}
func (i *Instance) OnPlayerDisconnected(fn func(player *Player)) {
	i.set(func(h *Handlers) { h.PlayerDisconnected = fn })
}
func (i *Instance) OnPlayerTypedMessage(fn func(player *Player, channel ChatChannel, msg string) bool) {
	i.set(func(h *Handlers) { h.PlayerTypedMessage = fn })
}
func (i *Instance) OnPlayerJoiningToServer(fn func(steamID uint64, args JoiningArgs)) {
	i.set(func(h *Handlers) { h.PlayerJoiningToServer = fn })
}
func (i *Instance) OnSavePlayerStats(fn func(steamID uint64, stats PlayerStats)) {
	i.set(func(h *Handlers) { h.SavePlayerStats = fn })
}
func (i *Instance) OnPlayerRequestingToChangeRole(fn func(player *Player, role GameRole) bool) {
	i.set(func(h *Handlers) { h.PlayerRequestingToChangeRole = fn })
}
func (i *Instance) OnPlayerRequestingToChangeTeam(fn func(player *Player, team Team) bool) {
	i.set(func(h *Handlers) { h.PlayerRequestingToChangeTeam = fn })
}
func (i *Instance) OnPlayerChangedRole(fn func(player *Player, role GameRole)) {
	i.set(func(h *Handlers) { h.PlayerChangedRole = fn })
}
func (i *Instance) OnPlayerJoinedSquad(fn func(player *Player, squad Squad)) {
	i.set(func(h *Handlers) { h.PlayerJoinedSquad = fn })
}
func (i *Instance) OnPlayerLeftSquad(fn func(player *Player, squad Squad)) {
	i.set(func(h *Handlers) { h.PlayerLeftSquad = fn })
}
func (i *Instance) OnPlayerChangeTeam(fn func(player *Player, team Team)) {
	i.set(func(h *Handlers) { h.PlayerChangeTeam = fn })
}
func (i *Instance) OnPlayerSpawning(fn func(player *Player, request SpawnRequest) (SpawnRequest, bool)) {
	i.set(func(h *Handlers) { h.PlayerSpawning = fn })
}
func (i *Instance) OnPlayerSpawned(fn func(player *Player)) {
	i.set(func(h *Handlers) { h.PlayerSpawned = fn })
}
func (i *Instance) OnPlayerDied(fn func(player *Player)) {
	i.set(func(h *Handlers) { h.PlayerDied = fn })
}
func (i *Instance) OnPlayerGivenUp(fn func(player *Player)) {
	i.set(func(h *Handlers) { h.PlayerGivenUp = fn })
}
func (i *Instance) OnAPlayerDownedAnotherPlayer(fn func(args KillArgs)) {
	i.set(func(h *Handlers) { h.APlayerDownedAnotherPlayer = fn })
}
func (i *Instance) OnAPlayerRevivedAnotherPlayer(fn func(from, to *Player)) {
	i.set(func(h *Handlers) { h.APlayerRevivedAnotherPlayer = fn })
}
func (i *Instance) OnPlayerReported(fn func(from, to *Player, reason ReportReason, additional string)) {
	i.set(func(h *Handlers) { h.PlayerReported = fn })
}
func (i *Instance) OnGameStateChanged(fn func(oldState, newState GameState)) {
	i.set(func(h *Handlers) { h.GameStateChanged = fn })
}
func (i *Instance) OnRoundStarted(fn func()) { i.set(func(h *Handlers) { h.RoundStarted = fn }) }
func (i *Instance) OnRoundEnded(fn func())   { i.set(func(h *Handlers) { h.RoundEnded = fn }) }
