// Package server hosts the module instances of one connected game server.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/robinbraemer/event"

	"go.bbrapi.dev/runner/pkg/dispatch"
	"go.bbrapi.dev/runner/pkg/loader"
	"go.bbrapi.dev/runner/pkg/module"
	"go.bbrapi.dev/runner/pkg/util/errs"
)

// Options for New.
type Options struct {
	// Server is the connection modules talk back to.
	Server      module.Server
	Logger      logr.Logger
	Event       event.Manager
	Store       module.SectionStore
	Permissions module.Permissions
	// WarningThreshold for slow callbacks, see dispatch.Options.
	WarningThreshold time.Duration
}

// Host binds loaded modules to one game server and delivers its callbacks.
type Host struct {
	*dispatch.Dispatcher

	srv   module.Server
	log   logr.Logger
	event event.Manager
	store module.SectionStore
	perms module.Permissions
}

// New returns a host without attached modules.
func New(opts Options) *Host {
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	if opts.Event == nil {
		opts.Event = event.Nop
	}
	log := opts.Logger.WithValues("server", opts.Server.Addr())
	return &Host{
		Dispatcher: dispatch.New(dispatch.Options{
			Server:           opts.Server.Addr(),
			Logger:           log,
			Event:            opts.Event,
			WarningThreshold: opts.WarningThreshold,
		}),
		srv:   opts.Server,
		log:   log,
		event: opts.Event,
		store: opts.Store,
		perms: opts.Permissions,
	}
}

// Server returns the connection of the host.
func (h *Host) Server() module.Server { return h.srv }

// Addr is the "ip:port" of the game server.
func (h *Host) Addr() string { return h.srv.Addr() }

// AttachedEvent is fired after Attach.
type AttachedEvent struct {
	Server  string
	Modules []string
	Failed  map[string]error
}

// Attach instantiates mods, which must be in load order, for this server.
//
// It runs in stages so that no module observes a half built server:
// every module is constructed, then the configuration sections are bound,
// then references are linked and only then is OnModulesLoaded delivered.
// A module whose construction or configuration fails is left out, and so
// is every module requiring it.
func (h *Host) Attach(ctx context.Context, mods []*loader.Module) (failed map[string]error) {
	failed = map[string]error{}
	var attached []string
	h.Exclusive(func(tx *Tx) {
		insts := h.construct(mods, failed)
		h.link(insts)
		for _, inst := range insts {
			inst.SetLoaded(true)
		}
		tx.Attach(insts...)
		for _, inst := range insts {
			start := time.Now()
			tx.NotifyOne(ctx, inst, module.ModulesLoaded)
			h.log.V(1).Info("attached module", "module", inst.Name(),
				"took", time.Since(start).Round(time.Millisecond))
			attached = append(attached, inst.Name())
		}
	})
	h.log.Info("attached modules", "modules", len(attached), "failed", len(failed))
	h.event.Fire(&AttachedEvent{Server: h.Addr(), Modules: attached, Failed: failed})
	return failed
}

// Tx is the attach transaction of the dispatcher.
type Tx = dispatch.Tx

func (h *Host) construct(mods []*loader.Module, failed map[string]error) []*module.Instance {
	var insts []*module.Instance
	ok := map[string]bool{}
	for _, m := range mods {
		var missing []string
		if u := m.Image.Unit; u != nil {
			for _, dep := range u.Requires {
				if !ok[dep] {
					missing = append(missing, dep)
				}
			}
		}
		if len(missing) != 0 {
			failed[m.Name()] = errs.NewMissingDependencyError(m.Name(), missing)
			h.log.Info("skipping module, required modules are not attached", "module", m.Name(), "missing", missing)
			continue
		}

		inst := module.NewInstance(module.InstanceOptions{
			Name:        m.Name(),
			Server:      h.srv,
			Logger:      h.log,
			Store:       h.store,
			Permissions: h.perms,
		})
		if err := m.New(inst); err != nil {
			failed[m.Name()] = err
			h.log.Error(err, "failed to instantiate module", "module", m.Name(), "type", m.ID().String())
			continue
		}
		if err := inst.LoadSections(); err != nil {
			failed[m.Name()] = fmt.Errorf("load configuration of %s: %w", m.Name(), err)
			h.log.Error(err, "failed to load module configuration", "module", m.Name())
			inst.Detach()
			continue
		}
		ok[m.Name()] = true
		insts = append(insts, inst)
	}
	return insts
}

// link resolves every reference to a peer attached in the same batch.
// References to absent peers stay unresolved.
func (h *Host) link(insts []*module.Instance) {
	byName := make(map[string]*module.Instance, len(insts))
	for _, inst := range insts {
		byName[inst.Name()] = inst
	}
	for _, inst := range insts {
		for _, ref := range inst.Refs() {
			ref.Resolve(byName[ref.Name()])
		}
	}
}

// Detach delivers OnModuleUnloading to every attached module and releases
// them. It returns the names of the detached modules.
func (h *Host) Detach(ctx context.Context) []string {
	var names []string
	h.Exclusive(func(tx *Tx) {
		tx.Notify(ctx, module.ModuleUnloading)
		for _, inst := range tx.DetachAll() {
			inst.Detach()
			names = append(names, inst.Name())
		}
	})
	if len(names) != 0 {
		h.log.V(1).Info("detached modules", "modules", len(names))
	}
	return names
}

// Modules returns the names of the attached modules in dispatch order.
func (h *Host) Modules() []string {
	insts := h.Instances()
	names := make([]string, len(insts))
	for i, inst := range insts {
		names[i] = inst.Name()
	}
	return names
}
