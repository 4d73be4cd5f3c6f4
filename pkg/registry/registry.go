// Package registry keeps the set of known modules and loads them.
//
// A Load batch discovers module files, parses the ones that are new or
// changed, orders them by dependency, compiles what is out of date and
// evaluates the result into a fresh loader generation.
package registry

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/robinbraemer/event"

	"go.bbrapi.dev/runner/pkg/compile"
	"go.bbrapi.dev/runner/pkg/loader"
	"go.bbrapi.dev/runner/pkg/resolve"
	"go.bbrapi.dev/runner/pkg/source"
	"go.bbrapi.dev/runner/pkg/util/errs"
)

// Compiler builds images. *compile.Service implements it.
type Compiler interface {
	Compile(ctx context.Context, u *source.Unit, refs []*compile.Image) (*compile.Image, bool, error)
	Forget(img *compile.Image)
}

// Loader evaluates images into generations. *loader.Context implements it.
type Loader interface {
	Load(ctx context.Context, images []*compile.Image) ([]*loader.Module, map[string]error)
	UnloadAll()
}

var (
	_ Compiler = (*compile.Service)(nil)
	_ Loader   = (*loader.Context)(nil)
)

// Options for New.
type Options struct {
	Dir      string   // directory of module files
	Files    []string // module files outside Dir
	Compiler Compiler
	Loader   Loader
	Logger   logr.Logger
	Event    event.Manager
}

type entry struct {
	path  string
	dirty bool
	unit  *source.Unit
	image *compile.Image // last image that compiled, kept across failed reloads
}

// Registry owns the known units, their images and the loaded modules.
// It is safe for concurrent use.
type Registry struct {
	dir      string
	files    []string
	compiler Compiler
	loader   Loader
	log      logr.Logger
	event    event.Manager

	mu       sync.RWMutex
	entries  map[string]*entry // by path
	modules  []*loader.Module  // load order
	failures map[string]error
}

// New returns an empty registry.
func New(opts Options) *Registry {
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	if opts.Event == nil {
		opts.Event = event.Nop
	}
	if opts.Loader == nil {
		opts.Loader = loader.New(loader.Options{Logger: opts.Logger})
	}
	if opts.Compiler == nil {
		opts.Compiler = compile.New(compile.Options{Logger: opts.Logger})
	}
	return &Registry{
		dir:      opts.Dir,
		files:    slices.Clone(opts.Files),
		compiler: opts.Compiler,
		loader:   opts.Loader,
		log:      opts.Logger,
		event:    opts.Event,
		entries:  map[string]*entry{},
		failures: map[string]error{},
	}
}

// Report summarizes a Load batch.
type Report struct {
	Changed  int // files parsed in this batch
	Compiled int // images built by the compiler
	Cached   int // images served from the compile cache
	Reused   int // images kept from the previous batch
	Loaded   int
	Order    []string // loaded module names in load order
	Failures map[string]error
	Took     time.Duration
}

// String renders the summary line printed after every batch.
func (r Report) String() string {
	plural := "s"
	if r.Loaded == 1 {
		plural = ""
	}
	if r.Changed == 0 || r.Changed == r.Loaded {
		return fmt.Sprintf("%d module%s loaded", r.Loaded, plural)
	}
	return fmt.Sprintf("%d changed, %d total module%s loaded", r.Changed, r.Loaded, plural)
}

// LoadedEvent is fired after every Load batch.
type LoadedEvent struct {
	Report Report
}

// Load runs one batch. Modules of the previous batch are unloaded first,
// so callers must have released their instances.
//
// Per-module failures are reported in Report.Failures and do not fail the
// batch. The returned error is set only when the batch as a whole is
// rejected, which happens when two files declare the same module name.
func (r *Registry) Load(ctx context.Context) (Report, error) {
	start := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	rep := Report{Failures: map[string]error{}}
	defer func() {
		rep.Took = time.Since(start)
		r.failures = rep.Failures
		r.event.Fire(&LoadedEvent{Report: rep})
	}()

	r.loader.UnloadAll()
	r.modules = nil

	if err := r.scan(&rep); err != nil {
		return rep, err
	}
	units, err := r.units()
	if err != nil {
		return rep, err
	}

	images := r.compileAll(ctx, units, &rep)
	mods, failed := r.loader.Load(ctx, images)
	for name, err := range failed {
		rep.Failures[name] = err
	}
	r.modules = mods
	rep.Loaded = len(mods)
	for _, m := range mods {
		rep.Order = append(rep.Order, m.Name())
		r.log.V(1).Info("loaded module", "module", m.Name(), "type", m.ID().String())
	}
	r.log.Info(rep.String(), "compiled", rep.Compiled, "cached", rep.Cached, "failed", len(rep.Failures))
	return rep, nil
}

// scan syncs entries with the files on disk and parses new or dirty ones.
// A file that no longer parses drops its unit and image, so the module is
// left out of the batch until the file is fixed.
func (r *Registry) scan(rep *Report) error {
	paths, err := source.Discover(r.dir, r.files)
	if err != nil {
		return fmt.Errorf("discover modules in %s: %w", r.dir, err)
	}
	present := make(map[string]bool, len(paths))
	for _, p := range paths {
		present[p] = true
		if _, ok := r.entries[p]; !ok {
			r.entries[p] = &entry{path: p, dirty: true}
		}
	}
	for p, e := range r.entries {
		if !present[p] {
			if e.image != nil {
				r.compiler.Forget(e.image)
			}
			delete(r.entries, p)
		}
	}

	for _, p := range paths {
		e := r.entries[p]
		if !e.dirty {
			continue
		}
		e.dirty = false
		rep.Changed++
		u, err := source.ParseFile(p)
		if err != nil {
			r.log.Error(err, "failed to parse module", "path", p)
			rep.Failures[p] = err
			if e.image != nil {
				r.compiler.Forget(e.image)
			}
			e.unit, e.image = nil, nil
			continue
		}
		if u.Version != "" && u.SemVer() == "" {
			r.log.Info("module version is not a semantic version", "module", u.Name, "version", u.Version)
		}
		r.log.V(1).Info("parsed module", "module", u.Name, "version", u.DisplayVersion(), "hash", u.HashHex())
		e.unit = u
	}
	return nil
}

// units returns the parsed units in path order and rejects duplicate names.
func (r *Registry) units() ([]*source.Unit, error) {
	byName := map[string][]string{}
	var units []*source.Unit
	for _, p := range slices.Sorted(maps.Keys(r.entries)) {
		e := r.entries[p]
		if e.unit == nil {
			continue
		}
		byName[e.unit.Name] = append(byName[e.unit.Name], p)
		units = append(units, e.unit)
	}
	for _, name := range slices.Sorted(maps.Keys(byName)) {
		if paths := byName[name]; len(paths) > 1 {
			err := errs.NewDuplicateModuleError(name, paths)
			r.log.Error(err, "duplicate module, aborting load", "module", name, "paths", paths)
			return nil, err
		}
	}
	return units, nil
}

func (r *Registry) entryOf(name string) *entry {
	for _, e := range r.entries {
		if e.unit != nil && e.unit.Name == name {
			return e
		}
	}
	return nil
}

// compileAll compiles units in dependency order. A unit is skipped when it
// is part of a cycle or when a required dependency is not available, which
// includes required dependencies that failed themselves.
func (r *Registry) compileAll(ctx context.Context, units []*source.Unit, rep *Report) []*compile.Image {
	byName := make(map[string]*source.Unit, len(units))
	for _, u := range units {
		byName[u.Name] = u
	}
	res := resolve.Resolve(resolve.Nodes(units))
	for _, cycle := range res.Cycles {
		for _, name := range cycle {
			err := errs.NewDependencyCycleError(name, cycle)
			r.log.Error(err, "module is part of a dependency cycle", "module", name, "cycle", cycle)
			rep.Failures[name] = err
		}
	}

	ready := map[string]*compile.Image{}
	var images []*compile.Image
	for _, name := range res.Order {
		u := byName[name]
		var missing []string
		for _, dep := range u.Requires {
			if ready[dep] == nil {
				missing = append(missing, dep)
			}
		}
		if len(missing) != 0 {
			err := errs.NewMissingDependencyError(name, missing)
			r.log.Error(err, "module is missing required dependencies", "module", name, "missing", missing)
			rep.Failures[name] = err
			continue
		}
		var refs []*compile.Image
		for _, dep := range u.Dependencies() {
			if img := ready[dep]; img != nil {
				refs = append(refs, img)
			}
		}

		img, err := r.compile(ctx, r.entryOf(name), refs, rep)
		if err != nil {
			rep.Failures[name] = err
			continue
		}
		ready[name] = img
		images = append(images, img)
	}
	return images
}

func (r *Registry) compile(ctx context.Context, e *entry, refs []*compile.Image, rep *Report) (*compile.Image, error) {
	u := e.unit
	if e.image != nil && e.image.Unit == u && !e.image.Stale(refs) {
		rep.Reused++
		return e.image, nil
	}
	img, cached, err := r.compiler.Compile(ctx, u, refs)
	if err != nil {
		if prev := e.image; prev != nil && !prev.Stale(refs) {
			r.log.Error(err, "failed to compile module, keeping previous version", "module", u.Name, "hash", prev.HashHex())
			rep.Failures[u.Name] = err
			return prev, nil
		}
		r.log.Error(err, "failed to compile module", "module", u.Name)
		return nil, err
	}
	if cached {
		rep.Cached++
	} else {
		rep.Compiled++
	}
	e.image = img
	return img, nil
}

// MarkChanged marks the given module files for reparsing in the next batch.
func (r *Registry) MarkChanged(paths ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range paths {
		if e, ok := r.entries[p]; ok {
			e.dirty = true
		}
	}
}

// Invalidate marks the named modules and every module depending on them
// for reparsing and evicts their images from the compile cache, so the next
// batch compiles them again. The last good image of each stays as fallback
// in case the new source fails to compile. Names match case-insensitively.
// It returns the canonical names of the invalidated modules.
func (r *Registry) Invalidate(names ...string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var units []*source.Unit
	for _, e := range r.entries {
		if e.unit != nil {
			units = append(units, e.unit)
		}
	}
	var canonical []string
	for _, n := range names {
		u := unitNamed(units, n)
		if u == nil {
			return nil, errs.NewUnknownModuleError(n)
		}
		canonical = append(canonical, u.Name)
	}
	all := append(canonical, resolve.Dependents(resolve.Nodes(units), canonical...)...)
	for _, name := range all {
		e := r.entryOf(name)
		if e.image != nil {
			r.compiler.Forget(e.image)
		}
		e.dirty = true
	}
	return all, nil
}

func unitNamed(units []*source.Unit, name string) *source.Unit {
	for _, u := range units {
		if strings.EqualFold(u.Name, name) {
			return u
		}
	}
	return nil
}

// UnloadAll unloads the current generation.
func (r *Registry) UnloadAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loader.UnloadAll()
	r.modules = nil
}

// Modules returns the loaded modules in load order.
func (r *Registry) Modules() []*loader.Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.modules)
}

// Module returns the loaded module with the given name, matched
// case-insensitively.
func (r *Registry) Module(name string) (*loader.Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.modules {
		if strings.EqualFold(m.Name(), name) {
			return m, true
		}
	}
	return nil, false
}

// Units returns the parsed units sorted by name.
func (r *Registry) Units() []*source.Unit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var units []*source.Unit
	for _, e := range r.entries {
		if e.unit != nil {
			units = append(units, e.unit)
		}
	}
	slices.SortFunc(units, func(a, b *source.Unit) int { return strings.Compare(a.Name, b.Name) })
	return units
}

// Failures returns the failures of the last batch, keyed by module name or,
// for files that did not parse, by path.
func (r *Registry) Failures() map[string]error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.failures)
}
