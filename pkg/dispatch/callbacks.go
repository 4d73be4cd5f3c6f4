package dispatch

import (
	"context"

	"go.bbrapi.dev/runner/pkg/module"
)

func (d *Dispatcher) fire(ctx context.Context, c module.Callback, pick func(h *module.Handlers) func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notify(ctx, c, pick)
}

func (d *Dispatcher) ask(ctx context.Context, c module.Callback, pick func(h *module.Handlers) func() bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.veto(ctx, c, pick)
}

// Notify delivers a callback without arguments.
func (d *Dispatcher) Notify(ctx context.Context, c module.Callback) {
	d.fire(ctx, c, func(h *module.Handlers) func() { return noArg(h, c) })
}

func (d *Dispatcher) Connected(ctx context.Context)    { d.Notify(ctx, module.Connected) }
func (d *Dispatcher) Tick(ctx context.Context)         { d.Notify(ctx, module.Tick) }
func (d *Dispatcher) Reconnected(ctx context.Context)  { d.Notify(ctx, module.Reconnected) }
func (d *Dispatcher) Disconnected(ctx context.Context) { d.Notify(ctx, module.Disconnected) }
func (d *Dispatcher) RoundStarted(ctx context.Context) { d.Notify(ctx, module.RoundStarted) }
func (d *Dispatcher) RoundEnded(ctx context.Context)   { d.Notify(ctx, module.RoundEnded) }

func (d *Dispatcher) PlayerConnected(ctx context.Context, p *module.Player) {
	d.fire(ctx, module.PlayerConnected, func(h *module.Handlers) func() {
		if h.PlayerConnected == nil {
			return nil
		}
		return func() { h.PlayerConnected(p) }
	})
}

func (d *Dispatcher) PlayerDisconnected(ctx context.Context, p *module.Player) {
	d.fire(ctx, module.PlayerDisconnected, func(h *module.Handlers) func() {
		if h.PlayerDisconnected == nil {
			return nil
		}
		return func() { h.PlayerDisconnected(p) }
	})
}

func (d *Dispatcher) PlayerJoiningToServer(ctx context.Context, steamID uint64, args module.JoiningArgs) {
	d.fire(ctx, module.PlayerJoiningToServer, func(h *module.Handlers) func() {
		if h.PlayerJoiningToServer == nil {
			return nil
		}
		return func() { h.PlayerJoiningToServer(steamID, args) }
	})
}

func (d *Dispatcher) SavePlayerStats(ctx context.Context, steamID uint64, stats module.PlayerStats) {
	d.fire(ctx, module.SavePlayerStats, func(h *module.Handlers) func() {
		if h.SavePlayerStats == nil {
			return nil
		}
		return func() { h.SavePlayerStats(steamID, stats) }
	})
}

func (d *Dispatcher) PlayerChangedRole(ctx context.Context, p *module.Player, role module.GameRole) {
	d.fire(ctx, module.PlayerChangedRole, func(h *module.Handlers) func() {
		if h.PlayerChangedRole == nil {
			return nil
		}
		return func() { h.PlayerChangedRole(p, role) }
	})
}

func (d *Dispatcher) PlayerJoinedSquad(ctx context.Context, p *module.Player, squad module.Squad) {
	d.fire(ctx, module.PlayerJoinedSquad, func(h *module.Handlers) func() {
		if h.PlayerJoinedSquad == nil {
			return nil
		}
		return func() { h.PlayerJoinedSquad(p, squad) }
	})
}

func (d *Dispatcher) PlayerLeftSquad(ctx context.Context, p *module.Player, squad module.Squad) {
	d.fire(ctx, module.PlayerLeftSquad, func(h *module.Handlers) func() {
		if h.PlayerLeftSquad == nil {
			return nil
		}
		return func() { h.PlayerLeftSquad(p, squad) }
	})
}

func (d *Dispatcher) PlayerChangeTeam(ctx context.Context, p *module.Player, team module.Team) {
	d.fire(ctx, module.PlayerChangeTeam, func(h *module.Handlers) func() {
		if h.PlayerChangeTeam == nil {
			return nil
		}
		return func() { h.PlayerChangeTeam(p, team) }
	})
}

func (d *Dispatcher) PlayerSpawned(ctx context.Context, p *module.Player) {
	d.fire(ctx, module.PlayerSpawned, func(h *module.Handlers) func() {
		if h.PlayerSpawned == nil {
			return nil
		}
		return func() { h.PlayerSpawned(p) }
	})
}

func (d *Dispatcher) PlayerDied(ctx context.Context, p *module.Player) {
	d.fire(ctx, module.PlayerDied, func(h *module.Handlers) func() {
		if h.PlayerDied == nil {
			return nil
		}
		return func() { h.PlayerDied(p) }
	})
}

func (d *Dispatcher) PlayerGivenUp(ctx context.Context, p *module.Player) {
	d.fire(ctx, module.PlayerGivenUp, func(h *module.Handlers) func() {
		if h.PlayerGivenUp == nil {
			return nil
		}
		return func() { h.PlayerGivenUp(p) }
	})
}

func (d *Dispatcher) APlayerDownedAnotherPlayer(ctx context.Context, args module.KillArgs) {
	d.fire(ctx, module.APlayerDownedAnotherPlayer, func(h *module.Handlers) func() {
		if h.APlayerDownedAnotherPlayer == nil {
			return nil
		}
		return func() { h.APlayerDownedAnotherPlayer(args) }
	})
}

func (d *Dispatcher) APlayerRevivedAnotherPlayer(ctx context.Context, from, to *module.Player) {
	d.fire(ctx, module.APlayerRevivedAnotherPlayer, func(h *module.Handlers) func() {
		if h.APlayerRevivedAnotherPlayer == nil {
			return nil
		}
		return func() { h.APlayerRevivedAnotherPlayer(from, to) }
	})
}

func (d *Dispatcher) PlayerReported(ctx context.Context, from, to *module.Player, reason module.ReportReason, additional string) {
	d.fire(ctx, module.PlayerReported, func(h *module.Handlers) func() {
		if h.PlayerReported == nil {
			return nil
		}
		return func() { h.PlayerReported(from, to, reason, additional) }
	})
}

func (d *Dispatcher) GameStateChanged(ctx context.Context, oldState, newState module.GameState) {
	d.fire(ctx, module.GameStateChanged, func(h *module.Handlers) func() {
		if h.GameStateChanged == nil {
			return nil
		}
		return func() { h.GameStateChanged(oldState, newState) }
	})
}

// PlayerTypedMessage reports whether every module lets the message through.
func (d *Dispatcher) PlayerTypedMessage(ctx context.Context, p *module.Player, ch module.ChatChannel, msg string) bool {
	return d.ask(ctx, module.PlayerTypedMessage, func(h *module.Handlers) func() bool {
		if h.PlayerTypedMessage == nil {
			return nil
		}
		return func() bool { return h.PlayerTypedMessage(p, ch, msg) }
	})
}

// PlayerRequestingToChangeRole reports whether every module allows the role change.
func (d *Dispatcher) PlayerRequestingToChangeRole(ctx context.Context, p *module.Player, role module.GameRole) bool {
	return d.ask(ctx, module.PlayerRequestingToChangeRole, func(h *module.Handlers) func() bool {
		if h.PlayerRequestingToChangeRole == nil {
			return nil
		}
		return func() bool { return h.PlayerRequestingToChangeRole(p, role) }
	})
}

// PlayerRequestingToChangeTeam reports whether every module allows the team change.
func (d *Dispatcher) PlayerRequestingToChangeTeam(ctx context.Context, p *module.Player, team module.Team) bool {
	return d.ask(ctx, module.PlayerRequestingToChangeTeam, func(h *module.Handlers) func() bool {
		if h.PlayerRequestingToChangeTeam == nil {
			return nil
		}
		return func() bool { return h.PlayerRequestingToChangeTeam(p, team) }
	})
}

// PlayerSpawning passes the spawn request through every module in order,
// each receiving the request the previous one returned.
//
// Once a module rejects the request, later modules are still called with the
// last accepted request, their answers are ignored and ok is false.
// A module that panics leaves the request unchanged.
func (d *Dispatcher) PlayerSpawning(ctx context.Context, p *module.Player, req module.SpawnRequest) (_ module.SpawnRequest, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	current, rejected := req, false
	for _, inst := range d.attached {
		if !inst.Loaded() {
			continue
		}
		h := inst.Handlers()
		if h.PlayerSpawning == nil {
			continue
		}
		var (
			out      module.SpawnRequest
			accepted bool
		)
		in := current
		if !d.invoke(ctx, inst, module.PlayerSpawning, func() { out, accepted = h.PlayerSpawning(p, in) }) {
			continue
		}
		if rejected {
			continue
		}
		if !accepted {
			rejected = true
			d.log.V(1).Info("spawn rejected", "module", inst.Name(), "player", p.String(), "server", d.server)
			continue
		}
		current = out
	}
	if rejected {
		return module.SpawnRequest{}, false
	}
	return current, true
}
