// Package loader evaluates compiled images into module types.
//
// Every Load creates a new generation. All modules of a generation are
// unloaded together, after which none of them can be instantiated again.
package loader

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"go.uber.org/atomic"

	"go.bbrapi.dev/runner/pkg/compile"
	"go.bbrapi.dev/runner/pkg/module"
	"go.bbrapi.dev/runner/pkg/util/errs"
)

// Factory constructs one module value and wires it to inst.
type Factory func(inst *module.Instance)

// Evaluator turns an image into its factory.
type Evaluator interface {
	Evaluate(ctx context.Context, img *compile.Image) (Factory, error)
}

// TypeID identifies a module type. The same name loaded in two generations
// yields two different TypeIDs.
type TypeID struct {
	Name       string
	Generation uint64
}

func (id TypeID) String() string { return fmt.Sprintf("%s#%d", id.Name, id.Generation) }

// Options for New.
type Options struct {
	// Evaluator defaults to the interpreter.
	Evaluator Evaluator
	Logger    logr.Logger
}

// Context loads images into generations.
type Context struct {
	eval Evaluator
	log  logr.Logger
	next atomic.Uint64

	mu   sync.Mutex
	live []*Generation
}

// New returns a load context.
func New(opts Options) *Context {
	if opts.Evaluator == nil {
		opts.Evaluator = Interpreter{}
	}
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	return &Context{eval: opts.Evaluator, log: opts.Logger}
}

// Load evaluates images into a new generation. Modules are returned in the
// order of images; a unit that fails to load is left out and reported in
// failed, the others still load.
func (c *Context) Load(ctx context.Context, images []*compile.Image) (mods []*Module, failed map[string]error) {
	gen := &Generation{id: c.next.Inc()}
	failed = map[string]error{}
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			failed[img.Name] = err
			continue
		}
		factory, err := c.evaluate(ctx, img)
		if err != nil {
			c.log.Error(err, "failed to load module", "module", img.Name, "generation", gen.id)
			failed[img.Name] = err
			continue
		}
		m := &Module{Image: img, id: TypeID{Name: img.Name, Generation: gen.id}, gen: gen, factory: factory}
		gen.modules = append(gen.modules, m)
		mods = append(mods, m)
	}

	c.mu.Lock()
	c.live = append(c.live, gen)
	c.mu.Unlock()
	c.log.V(1).Info("loaded generation", "generation", gen.id, "modules", len(mods), "failed", len(failed))
	return mods, failed
}

func (c *Context) evaluate(ctx context.Context, img *compile.Image) (f Factory, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.NewEvaluateError(img.Name, fmt.Errorf("panic: %v", r))
		}
	}()
	f, err = c.eval.Evaluate(ctx, img)
	if err == nil && f == nil {
		err = errs.NewNoFactoryError(img.Name, nil)
	}
	return f, err
}

// UnloadAll unloads every live generation.
func (c *Context) UnloadAll() {
	c.mu.Lock()
	live := c.live
	c.live = nil
	c.mu.Unlock()
	for _, g := range live {
		g.unload()
		c.log.V(1).Info("unloaded generation", "generation", g.id)
	}
}

// Generations returns the ids of the live generations, oldest first.
func (c *Context) Generations() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]uint64, len(c.live))
	for i, g := range c.live {
		ids[i] = g.id
	}
	return ids
}

// Generation is the set of modules loaded by one Load call.
type Generation struct {
	id       uint64
	unloaded atomic.Bool

	mu      sync.RWMutex
	modules []*Module
}

// ID returns the generation counter value.
func (g *Generation) ID() uint64 { return g.id }

// Unloaded reports whether the generation was unloaded.
func (g *Generation) Unloaded() bool { return g.unloaded.Load() }

func (g *Generation) unload() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unloaded.Store(true)
	for _, m := range g.modules {
		m.factory = nil
	}
	g.modules = nil
}

// Module is a loaded module type.
type Module struct {
	Image *compile.Image

	id      TypeID
	gen     *Generation
	factory Factory // guarded by gen.mu, nil once unloaded
}

// Name is the module name.
func (m *Module) Name() string { return m.id.Name }

// ID returns the type identity.
func (m *Module) ID() TypeID { return m.id }

// Generation returns the owning generation.
func (m *Module) Generation() *Generation { return m.gen }

// New constructs a module value bound to inst. It fails once the owning
// generation is unloaded.
func (m *Module) New(inst *module.Instance) (err error) {
	m.gen.mu.RLock()
	factory := m.factory
	m.gen.mu.RUnlock()
	if factory == nil || m.gen.Unloaded() {
		return errs.NewGenerationUnloadedError(m.id.Name, m.id.Generation)
	}
	defer func() {
		if r := recover(); r != nil {
			err = errs.NewInstantiateError(m.id.Name, fmt.Errorf("panic: %v", r))
		}
	}()
	factory(inst)
	return nil
}
