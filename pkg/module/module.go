// Package module is the SDK that module source files import.
//
// A module is a single Go file declaring one exported struct that embeds Base:
//
//	// Greeter says hello.
//	//
//	//module:info description="Greets players" version="1.0.0"
//	//module:require Permissions
//	type Greeter struct {
//		module.Base
//		Discord  *module.Ref
//		Settings GreeterSettings `module:"config"`
//	}
//
//	func (g *Greeter) OnPlayerConnected(p *module.Player) {
//		g.Instance.Server().Say("Welcome " + p.Name)
//	}
//
// The runner instantiates the type once per connected game server. Methods
// named after a Callback are registered as handlers, *Ref fields are linked to
// the named peer module and tagged fields are bound to persisted config sections.
package module

// ImportPath is the path module sources use to import this package.
const ImportPath = "go.bbrapi.dev/runner/pkg/module"

// Directive prefixes recognized in the module type's doc comment.
const (
	InfoDirective    = "//module:info"
	RequireDirective = "//module:require"
)

// ConfigTag is the struct tag key marking configuration sections.
const ConfigTag = "module"

// Base marks the module type of a source file. The runner sets Instance
// before any callback runs.
//
// Base must stay free of methods so that it can be embedded at any position
// of an interpreted struct.
type Base struct {
	Instance *Instance
}
