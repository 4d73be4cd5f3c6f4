// Package dispatch delivers game server callbacks to the modules attached
// to one server.
//
// Modules are called one after another in attach order, which is the
// dependency order they were loaded in. A handler that panics is logged and
// skipped; it never stops delivery to the next module.
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/agilira/go-timecache"
	"github.com/go-logr/logr"
	"github.com/robinbraemer/event"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"

	"go.bbrapi.dev/runner/pkg/module"
)

// DefaultWarningThreshold is the handler duration above which a warning is logged.
const DefaultWarningThreshold = 250 * time.Millisecond

// Options for New.
type Options struct {
	// Server names the server in logs and events.
	Server string
	Logger logr.Logger
	// Event receives CallbackFailedEvent and SlowCallbackEvent. Defaults to event.Nop.
	Event event.Manager
	// WarningThreshold defaults to DefaultWarningThreshold.
	WarningThreshold time.Duration
}

// Dispatcher fans callbacks out to the attached module instances of one server.
// All dispatch and all changes to the attached set are serialized.
type Dispatcher struct {
	server    string
	log       logr.Logger
	event     event.Manager
	threshold atomic.Duration
	metrics   *instruments

	mu       sync.Mutex // serializes dispatch and attach/detach
	attached []*module.Instance
}

// New returns a dispatcher without attached instances.
func New(opts Options) *Dispatcher {
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	if opts.Event == nil {
		opts.Event = event.Nop
	}
	if opts.WarningThreshold <= 0 {
		opts.WarningThreshold = DefaultWarningThreshold
	}
	d := &Dispatcher{
		server: opts.Server,
		log:    opts.Logger,
		event:  opts.Event,
	}
	d.threshold.Store(opts.WarningThreshold)
	m, err := newInstruments()
	if err != nil {
		d.log.Error(err, "failed to create dispatch metrics")
	}
	d.metrics = m
	return d
}

// SetWarningThreshold changes the slow handler threshold.
func (d *Dispatcher) SetWarningThreshold(t time.Duration) {
	if t > 0 {
		d.threshold.Store(t)
	}
}

// WarningThreshold returns the slow handler threshold.
func (d *Dispatcher) WarningThreshold() time.Duration { return d.threshold.Load() }

// Instances returns the attached instances in dispatch order.
func (d *Dispatcher) Instances() []*module.Instance {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*module.Instance(nil), d.attached...)
}

// Exclusive runs fn while no callback is being dispatched. Use it to change
// the attached set; callbacks queue until fn returns.
func (d *Dispatcher) Exclusive(fn func(tx *Tx)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(&Tx{d: d})
}

// Tx changes the attached set of a dispatcher from within Exclusive.
// It must not be used after Exclusive returns.
type Tx struct{ d *Dispatcher }

// Attach appends instances to the dispatch order.
func (tx *Tx) Attach(insts ...*module.Instance) {
	tx.d.attached = append(tx.d.attached, insts...)
}

// Detach removes the named instance and returns it, or nil.
func (tx *Tx) Detach(name string) *module.Instance {
	for i, inst := range tx.d.attached {
		if inst.Name() == name {
			tx.d.attached = append(tx.d.attached[:i:i], tx.d.attached[i+1:]...)
			return inst
		}
	}
	return nil
}

// DetachAll removes and returns every instance.
func (tx *Tx) DetachAll() []*module.Instance {
	all := tx.d.attached
	tx.d.attached = nil
	return all
}

// Instances returns the attached instances.
func (tx *Tx) Instances() []*module.Instance {
	return append([]*module.Instance(nil), tx.d.attached...)
}

// Notify delivers a callback without arguments, such as ModulesLoaded.
func (tx *Tx) Notify(ctx context.Context, c module.Callback) {
	tx.d.notify(ctx, c, func(h *module.Handlers) func() { return noArg(h, c) })
}

// NotifyOne delivers a callback without arguments to a single instance.
func (tx *Tx) NotifyOne(ctx context.Context, inst *module.Instance, c module.Callback) {
	h := inst.Handlers()
	if fn := noArg(&h, c); fn != nil {
		tx.d.invoke(ctx, inst, c, fn)
	}
}

func noArg(h *module.Handlers, c module.Callback) func() {
	switch c {
	case module.ModulesLoaded:
		return h.ModulesLoaded
	case module.ModuleUnloading:
		return h.ModuleUnloading
	case module.Connected:
		return h.Connected
	case module.Tick:
		return h.Tick
	case module.Reconnected:
		return h.Reconnected
	case module.Disconnected:
		return h.Disconnected
	case module.RoundStarted:
		return h.RoundStarted
	case module.RoundEnded:
		return h.RoundEnded
	}
	return nil
}

// notify calls every loaded instance that registered a handler. The caller
// holds d.mu.
func (d *Dispatcher) notify(ctx context.Context, c module.Callback, pick func(h *module.Handlers) func()) {
	for _, inst := range d.attached {
		if !inst.Loaded() {
			continue
		}
		h := inst.Handlers()
		if fn := pick(&h); fn != nil {
			d.invoke(ctx, inst, c, fn)
		}
	}
}

// veto calls every handler and ANDs their answers. Handlers that panic do
// not vote. The caller holds d.mu.
func (d *Dispatcher) veto(ctx context.Context, c module.Callback, pick func(h *module.Handlers) func() bool) bool {
	allowed := true
	for _, inst := range d.attached {
		if !inst.Loaded() {
			continue
		}
		h := inst.Handlers()
		fn := pick(&h)
		if fn == nil {
			continue
		}
		vote := true
		if ok := d.invoke(ctx, inst, c, func() { vote = fn() }); ok && !vote {
			allowed = false
		}
	}
	return allowed
}

// invoke runs fn for inst with panic isolation and timing.
// It reports whether fn returned normally.
func (d *Dispatcher) invoke(ctx context.Context, inst *module.Instance, c module.Callback, fn func()) (ok bool) {
	attrs := []attribute.KeyValue{
		attribute.String("module", inst.Name()),
		attribute.String("callback", c.String()),
		attribute.String("server", d.server),
	}
	_, span := tracer.Start(ctx, "module."+c.String(), trace.WithAttributes(attrs...))
	start := timecache.CachedTime()
	defer func() {
		elapsed := timecache.CachedTime().Sub(start)
		if r := recover(); r != nil {
			ok = false
			stack := debug.Stack()
			err := fmt.Errorf("panic in %s.%s: %v", inst.Name(), c, r)
			d.log.Error(err, "module callback failed",
				"module", inst.Name(), "callback", c.String(), "server", d.server)
			span.RecordError(err)
			span.SetStatus(codes.Error, "panic")
			if d.metrics != nil {
				d.metrics.failures.Add(ctx, 1, metric.WithAttributes(attrs...))
			}
			d.event.Fire(&CallbackFailedEvent{
				Server:   d.server,
				Module:   inst.Name(),
				Callback: c,
				Panic:    r,
				Stack:    stack,
			})
		}
		if d.metrics != nil {
			d.metrics.duration.Record(ctx, float64(elapsed)/float64(time.Millisecond), metric.WithAttributes(attrs...))
		}
		if threshold := d.threshold.Load(); elapsed > threshold {
			d.log.Info("module callback is slow",
				"module", inst.Name(), "callback", c.String(), "server", d.server,
				"took", elapsed.Round(time.Millisecond), "threshold", threshold)
			d.event.Fire(&SlowCallbackEvent{
				Server:    d.server,
				Module:    inst.Name(),
				Callback:  c,
				Elapsed:   elapsed,
				Threshold: threshold,
			})
		}
		span.End()
	}()
	fn()
	return true
}
