package module

// Server is the game server a module instance is attached to.
type Server interface {
	// Name is the display name the server announced.
	Name() string
	// Addr is the "ip:port" identity of the server.
	Addr() string
	// Say broadcasts a chat message to everyone.
	Say(msg string) error
	// MessageTo sends a private message to one player.
	MessageTo(steamID uint64, msg string) error
	// Kick removes a player from the server.
	Kick(steamID uint64, reason string) error
	// Players returns a snapshot of the connected players.
	Players() []Player
}

// Permissions answers permission checks for players.
type Permissions interface {
	HasPermission(steamID uint64, permission string) bool
}

// NoPermissions denies everything.
type NoPermissions struct{}

func (NoPermissions) HasPermission(uint64, string) bool { return false }
