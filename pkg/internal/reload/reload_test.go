package reload

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/robinbraemer/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	calls := atomic.NewInt32(0)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func() error {
			calls.Inc()
			return nil
		})
	}()

	assert.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("a: 2\n"), 0o644)
		return calls.Load() > 0
	}, 5*time.Second, 200*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestConfigUpdateEvent(t *testing.T) {
	type cfg struct{ N int }
	mgr := event.New()
	var got *ConfigUpdateEvent[cfg]
	Subscribe(mgr, func(e *ConfigUpdateEvent[cfg]) { got = e })
	FireConfigUpdate(mgr, &cfg{N: 2}, &cfg{N: 1})
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Config.N)
	assert.Equal(t, 1, got.Previous.N)
}
