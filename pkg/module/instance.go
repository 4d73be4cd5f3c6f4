package module

import (
	"sync"

	"github.com/go-logr/logr"
	"go.uber.org/atomic"

	"go.bbrapi.dev/runner/pkg/util/errs"
)

// InstanceOptions configure a new Instance.
type InstanceOptions struct {
	Name        string
	Server      Server
	Logger      logr.Logger
	Store       SectionStore
	Permissions Permissions
}

// Instance is the runner side of one module bound to one game server.
// Module code reaches it through Base.Instance.
type Instance struct {
	name   string
	log    logr.Logger
	store  SectionStore
	perms  Permissions
	loaded atomic.Bool

	mu       sync.RWMutex // protects fields below
	server   Server
	handlers Handlers
	refs     []*Ref
	sections []*Section
	exports  map[string]any
}

// NewInstance returns an unloaded instance.
func NewInstance(opts InstanceOptions) *Instance {
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	if opts.Permissions == nil {
		opts.Permissions = NoPermissions{}
	}
	return &Instance{
		name:    opts.Name,
		log:     opts.Logger.WithName(opts.Name),
		store:   opts.Store,
		perms:   opts.Permissions,
		server:  opts.Server,
		exports: map[string]any{},
	}
}

// Name is the module name.
func (i *Instance) Name() string { return i.name }

// Logger returns a logger named after the module.
func (i *Instance) Logger() logr.Logger { return i.log }

// Loaded reports whether the instance is attached and running.
func (i *Instance) Loaded() bool { return i.loaded.Load() }

// SetLoaded is called by the runner when the instance is attached.
func (i *Instance) SetLoaded(loaded bool) { i.loaded.Store(loaded) }

// Server returns the attached server, nil once detached.
func (i *Instance) Server() Server {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.server
}

// Permissions returns the permission checker of the runner.
func (i *Instance) Permissions() Permissions { return i.perms }

// Ref returns the reference to the named peer module, creating it on first use.
func (i *Instance) Ref(name string) *Ref {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, r := range i.refs {
		if r.name == name {
			return r
		}
	}
	r := &Ref{name: name}
	i.refs = append(i.refs, r)
	return r
}

// Refs returns the declared references in declaration order.
func (i *Instance) Refs() []*Ref {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return append([]*Ref(nil), i.refs...)
}

// Section declares a configuration section backed by ptr.
// Redeclaring a section replaces its target.
func (i *Instance) Section(name string, ptr any, shared bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	s := &Section{Module: i.name, Name: name, Shared: shared, Value: ptr}
	if !shared && i.server != nil {
		s.Server = ServerKey(i.server.Addr())
	}
	for n, old := range i.sections {
		if old.Name == name {
			i.sections[n] = s
			return
		}
	}
	i.sections = append(i.sections, s)
}

// Sections returns the declared sections in declaration order.
func (i *Instance) Sections() []*Section {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return append([]*Section(nil), i.sections...)
}

func (i *Instance) section(name string) (*Section, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	for _, s := range i.sections {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, errs.NewUnknownSectionError(i.name, name)
}

// LoadSection reloads the named section from storage.
func (i *Instance) LoadSection(name string) error {
	s, err := i.section(name)
	if err != nil {
		return err
	}
	if i.store == nil {
		return nil
	}
	return i.store.Load(s)
}

// SaveSection writes the named section to storage.
func (i *Instance) SaveSection(name string) error {
	s, err := i.section(name)
	if err != nil {
		return err
	}
	if i.store == nil {
		return nil
	}
	return i.store.Save(s)
}

// LoadSections loads every declared section, stopping at the first error.
func (i *Instance) LoadSections() error {
	for _, s := range i.Sections() {
		if i.store == nil {
			return nil
		}
		if err := i.store.Load(s); err != nil {
			return err
		}
	}
	return nil
}

// Export publishes a value peers can fetch through Ref.Lookup.
func (i *Instance) Export(symbol string, v any) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.exports[symbol] = v
}

// Lookup returns a value published with Export.
func (i *Instance) Lookup(symbol string) (any, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	v, ok := i.exports[symbol]
	return v, ok
}

// Handlers returns a copy of the registered handlers.
func (i *Instance) Handlers() Handlers {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.handlers
}

func (i *Instance) set(fn func(h *Handlers)) {
	i.mu.Lock()
	fn(&i.handlers)
	i.mu.Unlock()
}

// Detach marks the instance unloaded and drops its server and peers.
func (i *Instance) Detach() {
	i.loaded.Store(false)
	i.mu.Lock()
	defer i.mu.Unlock()
	i.server = nil
	for _, r := range i.refs {
		r.Resolve(nil)
	}
}
