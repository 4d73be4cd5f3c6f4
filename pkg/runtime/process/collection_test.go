package process

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blocking(stopped chan<- string, name string) Runnable {
	return Named(name, RunnableFunc(func(ctx context.Context) error {
		<-ctx.Done()
		stopped <- name
		return nil
	}))
}

func TestCollection_StopsOnCancel(t *testing.T) {
	stopped := make(chan string, 2)
	c := New(Options{}, blocking(stopped, "a"))
	require.NoError(t, c.Add(blocking(stopped, "b")))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()
	cancel()

	require.NoError(t, <-done)
	assert.ElementsMatch(t, []string{"a", "b"}, []string{<-stopped, <-stopped})
	assert.Error(t, c.Add(blocking(stopped, "late")))
}

func TestCollection_FailureStopsOthers(t *testing.T) {
	stopped := make(chan string, 1)
	boom := errors.New("boom")
	c := New(Options{},
		blocking(stopped, "healthy"),
		Named("broken", RunnableFunc(func(context.Context) error { return boom })),
	)
	err := c.Start(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "broken")
	assert.Equal(t, "healthy", <-stopped)
}

func TestCollection_GracePeriod(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	c := New(Options{GracefulShutdownTimeout: 20 * time.Millisecond},
		RunnableFunc(func(context.Context) error { <-release; return nil }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorContains(t, c.Start(ctx), "grace period")
}
