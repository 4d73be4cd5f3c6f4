package dispatch

import (
	"time"

	"go.bbrapi.dev/runner/pkg/module"
)

// CallbackFailedEvent is fired when a module handler panicked.
// Dispatch to the remaining modules continued.
type CallbackFailedEvent struct {
	Server   string
	Module   string
	Callback module.Callback
	Panic    any
	Stack    []byte
}

// SlowCallbackEvent is fired when a module handler ran longer than the
// warning threshold.
type SlowCallbackEvent struct {
	Server    string
	Module    string
	Callback  module.Callback
	Elapsed   time.Duration
	Threshold time.Duration
}
