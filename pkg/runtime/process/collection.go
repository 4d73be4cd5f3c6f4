// Package process runs a set of long running components together.
package process

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
)

// Runnable allows a component to be started.
// It's very important that Start blocks until the context is canceled or
// the component failed.
type Runnable interface {
	Start(ctx context.Context) error
}

// RunnableFunc implements Runnable using a function.
type RunnableFunc func(ctx context.Context) error

// Start implements Runnable.
func (r RunnableFunc) Start(ctx context.Context) error { return r(ctx) }

// Named gives a Runnable a name for logs and errors.
func Named(name string, r Runnable) Runnable { return &named{name: name, Runnable: r} }

type named struct {
	name string
	Runnable
}

// Options are the arguments for creating a new Collection.
type Options struct {
	Logger logr.Logger
	// GracefulShutdownTimeout is the duration given to Runnables to stop
	// after the Collection is stopped. Zero uses DefaultGracefulShutdownPeriod,
	// a negative duration waits forever.
	GracefulShutdownTimeout time.Duration
}

// DefaultGracefulShutdownPeriod is the default time Runnables get to stop.
const DefaultGracefulShutdownPeriod = 30 * time.Second

// Collection starts Runnables together. When one of them fails, all others
// are stopped.
type Collection struct {
	log     logr.Logger
	timeout time.Duration

	mu        sync.Mutex
	runnables []Runnable
	started   bool
}

// New returns a new Collection.
func New(opts Options, runnables ...Runnable) *Collection {
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	if opts.GracefulShutdownTimeout == 0 {
		opts.GracefulShutdownTimeout = DefaultGracefulShutdownPeriod
	}
	return &Collection{
		log:       opts.Logger,
		timeout:   opts.GracefulShutdownTimeout,
		runnables: runnables,
	}
}

// Add registers r. It fails once the Collection was started.
func (c *Collection) Add(r Runnable) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return errors.New("can't add runnable to a started collection")
	}
	c.runnables = append(c.runnables, r)
	return nil
}

// Start runs every Runnable and blocks until ctx is canceled or one of them
// fails. It returns the first error.
func (c *Collection) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("collection already started")
	}
	c.started = true
	runnables := c.runnables
	c.mu.Unlock()

	eg, ctx := errgroup.WithContext(ctx)
	for _, r := range runnables {
		eg.Go(func() error {
			err := r.Start(ctx)
			if err != nil {
				if n, ok := r.(*named); ok {
					err = fmt.Errorf("%s: %w", n.name, err)
				}
				return err
			}
			if ctx.Err() == nil {
				if n, ok := r.(*named); ok {
					c.log.V(1).Info("component stopped", "component", n.name)
				}
			}
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- eg.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}
	if c.timeout < 0 {
		return <-done
	}
	select {
	case err := <-done:
		return err
	case <-time.After(c.timeout):
		return fmt.Errorf("components did not stop within grace period of %s", c.timeout)
	}
}
