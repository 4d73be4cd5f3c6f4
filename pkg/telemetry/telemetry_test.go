package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_Disabled(t *testing.T) {
	cleanup, err := Init(context.Background(), DefaultConfig)
	require.NoError(t, err)
	require.NotNil(t, cleanup)
	cleanup()

	cleanup, err = Init(context.Background(), Config{Enabled: true})
	require.NoError(t, err)
	cleanup()
}

func TestObserveServers(t *testing.T) {
	assert.NoError(t, ObserveServers(func() int { return 2 }, func() int { return 5 }))
}
