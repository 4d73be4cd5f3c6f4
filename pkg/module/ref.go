package module

import "sync"

// Ref points at a peer module attached to the same server.
// An unresolved Ref means the peer is not loaded.
type Ref struct {
	name string

	mu     sync.RWMutex
	target *Instance
}

// Name is the referenced module name.
func (r *Ref) Name() string { return r.name }

// Loaded reports whether the peer is resolved and currently loaded.
func (r *Ref) Loaded() bool {
	t := r.Instance()
	return t != nil && t.Loaded()
}

// Instance returns the resolved peer or nil.
func (r *Ref) Instance() *Instance {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.target
}

// Lookup fetches a value the peer published with Instance.Export.
func (r *Ref) Lookup(symbol string) (any, bool) {
	t := r.Instance()
	if t == nil {
		return nil, false
	}
	return t.Lookup(symbol)
}

// Resolve binds the reference. A nil target unresolves it.
func (r *Ref) Resolve(target *Instance) {
	r.mu.Lock()
	r.target = target
	r.mu.Unlock()
}
