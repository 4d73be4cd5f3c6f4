package bridge

import (
	"context"

	"go.bbrapi.dev/runner/pkg/dispatch"
	"go.bbrapi.dev/runner/pkg/module"
)

// deliver hands one event to d. It returns the reply for events that
// expect one, or nil.
func deliver(ctx context.Context, d *dispatch.Dispatcher, c module.Callback, p *Payload) *Reply {
	switch c {
	case module.Tick:
		d.Tick(ctx)
	case module.RoundStarted:
		d.RoundStarted(ctx)
	case module.RoundEnded:
		d.RoundEnded(ctx)
	case module.PlayerConnected:
		d.PlayerConnected(ctx, p.Player)
	case module.PlayerDisconnected:
		d.PlayerDisconnected(ctx, p.Player)
	case module.PlayerJoiningToServer:
		d.PlayerJoiningToServer(ctx, p.SteamID, p.Joining)
	case module.SavePlayerStats:
		d.SavePlayerStats(ctx, p.SteamID, p.Stats)
	case module.PlayerChangedRole:
		d.PlayerChangedRole(ctx, p.Player, p.Role)
	case module.PlayerJoinedSquad:
		d.PlayerJoinedSquad(ctx, p.Player, p.Squad)
	case module.PlayerLeftSquad:
		d.PlayerLeftSquad(ctx, p.Player, p.Squad)
	case module.PlayerChangeTeam:
		d.PlayerChangeTeam(ctx, p.Player, p.Team)
	case module.PlayerSpawned:
		d.PlayerSpawned(ctx, p.Player)
	case module.PlayerDied:
		d.PlayerDied(ctx, p.Player)
	case module.PlayerGivenUp:
		d.PlayerGivenUp(ctx, p.Player)
	case module.APlayerDownedAnotherPlayer:
		d.APlayerDownedAnotherPlayer(ctx, p.Kill)
	case module.APlayerRevivedAnotherPlayer:
		d.APlayerRevivedAnotherPlayer(ctx, p.From, p.To)
	case module.PlayerReported:
		d.PlayerReported(ctx, p.From, p.To, p.Reason, p.Additional)
	case module.GameStateChanged:
		d.GameStateChanged(ctx, p.OldState, p.NewState)
	case module.PlayerTypedMessage:
		return &Reply{Allow: d.PlayerTypedMessage(ctx, p.Player, p.Channel, p.Message)}
	case module.PlayerRequestingToChangeRole:
		return &Reply{Allow: d.PlayerRequestingToChangeRole(ctx, p.Player, p.Role)}
	case module.PlayerRequestingToChangeTeam:
		return &Reply{Allow: d.PlayerRequestingToChangeTeam(ctx, p.Player, p.Team)}
	case module.PlayerSpawning:
		req, ok := d.PlayerSpawning(ctx, p.Player, p.Request)
		r := &Reply{OK: ok, Allow: ok}
		if ok {
			r.Request = &req
		}
		return r
	}
	return nil
}

// remote reports whether game servers may send c. Lifecycle callbacks are
// raised by the runner itself.
func remote(c module.Callback) bool {
	switch c {
	case module.ModulesLoaded, module.ModuleUnloading,
		module.Connected, module.Reconnected, module.Disconnected:
		return false
	}
	return true
}
