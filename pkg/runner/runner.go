// Package runner wires module loading, game server connections and hot
// reload into one process.
package runner

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/robinbraemer/event"
	"go.uber.org/atomic"

	"go.bbrapi.dev/runner/internal/health"
	"go.bbrapi.dev/runner/pkg/bridge"
	"go.bbrapi.dev/runner/pkg/compile"
	"go.bbrapi.dev/runner/pkg/configstore"
	"go.bbrapi.dev/runner/pkg/internal/addrquota"
	"go.bbrapi.dev/runner/pkg/internal/reload"
	"go.bbrapi.dev/runner/pkg/loader"
	"go.bbrapi.dev/runner/pkg/permission"
	"go.bbrapi.dev/runner/pkg/registry"
	"go.bbrapi.dev/runner/pkg/runtime/process"
	"go.bbrapi.dev/runner/pkg/server"
	"go.bbrapi.dev/runner/pkg/telemetry"
	"go.bbrapi.dev/runner/pkg/watch"
)

// Options for New.
type Options struct {
	Config *Config
	Logger logr.Logger
	// Event receives lifecycle events. Defaults to a new manager.
	Event event.Manager
	// ConfigFile is watched for changes of runtime settings. Optional.
	ConfigFile string
	// LoadConfig re-reads ConfigFile. Required with ConfigFile.
	LoadConfig func() (*Config, error)

	// Compiler and Evaluator replace the interpreter, for tests.
	Compiler  registry.Compiler
	Evaluator loader.Evaluator
}

// Runner owns the module registry and the hosts of all game servers.
type Runner struct {
	cfg        Config
	log        logr.Logger
	event      event.Manager
	configFile string
	loadConfig func() (*Config, error)

	registry *registry.Registry
	sections *configstore.Store
	perms    *permission.Store
	bridge   *bridge.Bridge
	watcher  *watch.Watcher

	threshold atomic.Duration
	ready     atomic.Bool

	reloadMu sync.Mutex // serializes reloads and host creation
	mu       sync.Mutex
	hosts    map[string]*server.Host // by server address
}

// New creates the runner. Permission files are created if missing.
func New(opts Options) (*Runner, error) {
	if opts.Config == nil {
		return nil, errors.New("config must not be nil")
	}
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	if opts.Event == nil {
		opts.Event = event.New()
	}
	cfg := *opts.Config
	log := opts.Logger

	perms, err := permission.Open(permission.Options{
		Dir:          cfg.ConfigurationPath,
		Logger:       log.WithName("permissions"),
		PollInterval: cfg.PollInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("error opening permissions: %w", err)
	}

	if opts.Compiler == nil {
		opts.Compiler = compile.New(compile.Options{
			GoPath: cfg.DependencyPath,
			Logger: log.WithName("compile"),
		})
	}
	r := &Runner{
		cfg:        cfg,
		log:        log,
		event:      opts.Event,
		configFile: opts.ConfigFile,
		loadConfig: opts.LoadConfig,
		sections:   configstore.New(cfg.ConfigurationPath, log.WithName("configstore")),
		perms:      perms,
		hosts:      map[string]*server.Host{},
	}
	r.threshold.Store(cfg.WarningThreshold)
	r.registry = registry.New(registry.Options{
		Dir:      cfg.ModulesPath,
		Files:    cfg.Modules,
		Compiler: opts.Compiler,
		Loader: loader.New(loader.Options{
			Evaluator: opts.Evaluator,
			Logger:    log.WithName("loader"),
		}),
		Logger: log.WithName("registry"),
		Event:  opts.Event,
	})
	var quota *addrquota.Quota
	if cfg.Quota.Enabled {
		quota = addrquota.NewQuota(cfg.Quota.OPS, cfg.Quota.Burst, cfg.Quota.MaxEntries)
	}
	r.bridge = bridge.New(bridge.Options{
		Bind:   cfg.Bind,
		Hosts:  r,
		Logger: log.WithName("bridge"),
		Event:  opts.Event,
		Quota:  quota,
	})
	r.watcher = watch.New(watch.Options{
		Dir:      cfg.ModulesPath,
		Files:    cfg.Modules,
		Interval: cfg.PollInterval,
		Logger:   log.WithName("watch"),
	})
	return r, nil
}

// Event returns the event manager of the runner.
func (r *Runner) Event() event.Manager { return r.event }

// Registry returns the module registry.
func (r *Runner) Registry() *registry.Registry { return r.registry }

// Bridge returns the game server listener.
func (r *Runner) Bridge() *bridge.Bridge { return r.bridge }

// Permissions returns the permission store.
func (r *Runner) Permissions() *permission.Store { return r.perms }

// Servers returns every game server that connected at least once.
func (r *Runner) Servers() []*bridge.Session { return r.bridge.Sessions() }

// Modules returns the names of the loaded modules in load order.
func (r *Runner) Modules() []string {
	mods := r.registry.Modules()
	names := make([]string, len(mods))
	for i, m := range mods {
		names[i] = m.Name()
	}
	return names
}

// ModuleInfo describes a loaded module.
type ModuleInfo struct {
	Name        string
	Version     string
	Description string
}

// Loaded describes the loaded modules in load order.
func (r *Runner) Loaded() []ModuleInfo {
	mods := r.registry.Modules()
	infos := make([]ModuleInfo, len(mods))
	for i, m := range mods {
		infos[i].Name = m.Name()
		if u := m.Image.Unit; u != nil {
			infos[i].Version = u.DisplayVersion()
			infos[i].Description = u.Description
		}
	}
	return infos
}

// SetWarningThreshold changes the slow callback threshold of all hosts.
func (r *Runner) SetWarningThreshold(t time.Duration) {
	r.threshold.Store(t)
	for _, h := range r.Hosts() {
		h.SetWarningThreshold(t)
	}
}

// Hosts returns the hosts ordered by server address.
func (r *Runner) Hosts() []*server.Host {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := slices.Sorted(maps.Keys(r.hosts))
	out := make([]*server.Host, len(keys))
	for i, k := range keys {
		out[i] = r.hosts[k]
	}
	return out
}

var _ bridge.Hosts = (*Runner)(nil)

// Host creates the host of a game server connecting for the first time and
// attaches the loaded modules.
func (r *Runner) Host(ctx context.Context, s *bridge.Session) (*server.Host, error) {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	h := server.New(server.Options{
		Server:           s,
		Logger:           r.log.WithName("server"),
		Event:            r.event,
		Store:            r.sections,
		Permissions:      r.perms,
		WarningThreshold: r.threshold.Load(),
	})
	r.attach(ctx, h)

	r.mu.Lock()
	r.hosts[s.Addr()] = h
	r.mu.Unlock()
	return h, nil
}

func (r *Runner) attach(ctx context.Context, h *server.Host) {
	for name, err := range h.Attach(ctx, r.registry.Modules()) {
		r.log.Error(err, "module not attached", "server", h.Addr(), "module", name)
	}
}

// Load runs the first batch. A batch rejected as a whole, like two files
// declaring the same module, is returned as error.
func (r *Runner) Load(ctx context.Context) (registry.Report, error) {
	return r.reload(ctx, nil)
}

// ReloadAll recompiles and reloads every module on every server.
func (r *Runner) ReloadAll(ctx context.Context) (registry.Report, error) {
	return r.reload(ctx, func() error {
		units := r.registry.Units()
		if len(units) == 0 {
			return nil
		}
		names := make([]string, len(units))
		for i, u := range units {
			names[i] = u.Name
		}
		_, err := r.registry.Invalidate(names...)
		return err
	})
}

// Reload recompiles the named module and the modules depending on it, then
// reloads every server.
func (r *Runner) Reload(ctx context.Context, name string) (registry.Report, error) {
	return r.reload(ctx, func() error {
		names, err := r.registry.Invalidate(name)
		if err != nil {
			return err
		}
		r.log.Info("reloading module", "module", names[0], "invalidated", names)
		return nil
	})
}

// Changed reloads after module files changed on disk.
func (r *Runner) Changed(ctx context.Context, changes []watch.Change) {
	for _, c := range changes {
		r.log.Info("module file changed", "path", c.Path, "change", c.Kind.String())
	}
	_, err := r.reload(ctx, func() error {
		r.registry.MarkChanged(watch.Paths(changes)...)
		return nil
	})
	if err != nil {
		r.log.Error(err, "reload after file change failed")
	}
}

// reload detaches every host, runs prepare, loads a new batch and attaches
// the hosts again. If prepare fails nothing is detached.
func (r *Runner) reload(ctx context.Context, prepare func() error) (registry.Report, error) {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	if prepare != nil {
		if err := prepare(); err != nil {
			return registry.Report{}, err
		}
	}
	hosts := r.Hosts()
	for _, h := range hosts {
		h.Detach(ctx)
	}

	rep, err := r.registry.Load(ctx)
	for name, ferr := range rep.Failures {
		r.log.Error(ferr, "module failed", "module", name)
	}
	if err != nil {
		return rep, err
	}

	for _, h := range hosts {
		r.attach(ctx, h)
		if s, ok := h.Server().(*bridge.Session); ok && s.Connected() {
			h.Connected(ctx)
		}
	}
	return rep, nil
}

// Start loads the modules and serves game servers until ctx is canceled.
func (r *Runner) Start(ctx context.Context) error {
	ctx = logr.NewContext(ctx, r.log)

	cleanup, err := telemetry.Init(ctx, r.cfg.Telemetry)
	if err != nil {
		return err
	}
	defer cleanup()
	if r.cfg.Telemetry.Enabled {
		if err := telemetry.ObserveServers(r.connected, func() int { return len(r.Modules()) }); err != nil {
			r.log.Error(err, "failed to register runner metrics")
		}
	}

	if err := r.watcher.Prime(); err != nil {
		return fmt.Errorf("error scanning modules: %w", err)
	}
	if _, err := r.Load(ctx); err != nil {
		return fmt.Errorf("error loading modules: %w", err)
	}
	r.ready.Store(true)
	defer r.ready.Store(false)

	c := process.New(process.Options{Logger: r.log},
		process.Named("bridge", r.bridge),
		process.Named("watcher", process.RunnableFunc(func(ctx context.Context) error {
			return r.watcher.Run(ctx, r.Changed)
		})),
		process.Named("permissions", process.RunnableFunc(r.perms.Watch)),
	)
	if r.cfg.HealthService.Enabled {
		run, err := health.New(r.cfg.HealthService.Bind)
		if err != nil {
			return fmt.Errorf("error creating health probe service: %w", err)
		}
		r.log.Info("health probe service running", "addr", r.cfg.HealthService.Bind)
		_ = c.Add(process.Named("health", process.RunnableFunc(func(ctx context.Context) error {
			return run(ctx, health.Serving(r.ready.Load))
		})))
	}
	if r.configFile != "" && r.loadConfig != nil {
		_ = c.Add(process.Named("config", process.RunnableFunc(r.watchConfig)))
	}

	err = c.Start(ctx)
	for _, h := range r.Hosts() {
		h.Detach(context.WithoutCancel(ctx))
	}
	r.registry.UnloadAll()
	return err
}

func (r *Runner) connected() int {
	var n int
	for _, s := range r.Servers() {
		if s.Connected() {
			n++
		}
	}
	return n
}

// watchConfig applies runtime settings whenever the config file changes.
func (r *Runner) watchConfig(ctx context.Context) error {
	unsub := reload.Subscribe(r.event, func(e *reload.ConfigUpdateEvent[Config]) {
		if e.Config.WarningThreshold != e.Previous.WarningThreshold {
			r.log.Info("warning threshold changed", "threshold", e.Config.WarningThreshold.String())
			r.SetWarningThreshold(e.Config.WarningThreshold)
		}
	})
	defer unsub()

	current := r.cfg
	return reload.Watch(ctx, r.configFile, func() error {
		cfg, err := r.loadConfig()
		if err != nil {
			return err
		}
		warns, errs := cfg.Validate()
		for _, w := range warns {
			r.log.Info("config validation warn", "warn", w)
		}
		if len(errs) != 0 {
			return errors.Join(errs...)
		}
		previous := current
		current = *cfg
		reload.FireConfigUpdate(r.event, cfg, &previous)
		return nil
	})
}
