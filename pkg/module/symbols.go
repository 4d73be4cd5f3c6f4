package module

import (
	"reflect"

	"github.com/traefik/yaegi/interp"
)

// Symbols exports this package to the interpreter running module sources.
// Keys follow the interpreter's "importPath/pkgName" convention.
var Symbols = interp.Exports{
	ImportPath + "/module": {
		// plumbing
		"Base":        reflect.ValueOf((*Base)(nil)),
		"Instance":    reflect.ValueOf((*Instance)(nil)),
		"Ref":         reflect.ValueOf((*Ref)(nil)),
		"Section":     reflect.ValueOf((*Section)(nil)),
		"Server":      reflect.ValueOf((*Server)(nil)),
		"Permissions": reflect.ValueOf((*Permissions)(nil)),
		"ServerKey":   reflect.ValueOf(ServerKey),

		// game data
		"Player":       reflect.ValueOf((*Player)(nil)),
		"Loadout":      reflect.ValueOf((*Loadout)(nil)),
		"SpawnRequest": reflect.ValueOf((*SpawnRequest)(nil)),
		"KillArgs":     reflect.ValueOf((*KillArgs)(nil)),
		"PlayerStats":  reflect.ValueOf((*PlayerStats)(nil)),
		"JoiningArgs":  reflect.ValueOf((*JoiningArgs)(nil)),
		"Vector3":      reflect.ValueOf((*Vector3)(nil)),
		"ChatChannel":  reflect.ValueOf((*ChatChannel)(nil)),
		"GameRole":     reflect.ValueOf((*GameRole)(nil)),
		"Team":         reflect.ValueOf((*Team)(nil)),
		"Squad":        reflect.ValueOf((*Squad)(nil)),
		"GameState":    reflect.ValueOf((*GameState)(nil)),
		"ReportReason": reflect.ValueOf((*ReportReason)(nil)),
		"Stance":       reflect.ValueOf((*Stance)(nil)),

		"AllChat":   reflect.ValueOf(AllChat),
		"TeamChat":  reflect.ValueOf(TeamChat),
		"SquadChat": reflect.ValueOf(SquadChat),

		"Assault":  reflect.ValueOf(Assault),
		"Medic":    reflect.ValueOf(Medic),
		"Support":  reflect.ValueOf(Support),
		"Engineer": reflect.ValueOf(Engineer),
		"Recon":    reflect.ValueOf(Recon),
		"Leader":   reflect.ValueOf(Leader),

		"TeamA":  reflect.ValueOf(TeamA),
		"TeamB":  reflect.ValueOf(TeamB),
		"NoTeam": reflect.ValueOf(NoTeam),

		"NoSquad": reflect.ValueOf(NoSquad),
		"Alpha":   reflect.ValueOf(Alpha),
		"Bravo":   reflect.ValueOf(Bravo),
		"Charlie": reflect.ValueOf(Charlie),
		"Delta":   reflect.ValueOf(Delta),
		"Echo":    reflect.ValueOf(Echo),
		"Foxtrot": reflect.ValueOf(Foxtrot),
		"Golf":    reflect.ValueOf(Golf),
		"Hotel":   reflect.ValueOf(Hotel),

		"WaitingForPlayers": reflect.ValueOf(WaitingForPlayers),
		"CountingDown":      reflect.ValueOf(CountingDown),
		"Playing":           reflect.ValueOf(Playing),
		"EndingGame":        reflect.ValueOf(EndingGame),

		"Cheating":               reflect.ValueOf(Cheating),
		"UsingInsultingLanguage": reflect.ValueOf(UsingInsultingLanguage),
		"Harassment":             reflect.ValueOf(Harassment),
		"TeamKilling":            reflect.ValueOf(TeamKilling),
		"Spamming":               reflect.ValueOf(Spamming),
		"Other":                  reflect.ValueOf(Other),

		"Standing":  reflect.ValueOf(Standing),
		"Crouching": reflect.ValueOf(Crouching),
		"Proning":   reflect.ValueOf(Proning),
	},
}
