package interrupt

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
)

// from https://github.com/kubernetes/kubernetes/blob/c285e781331a3785a7f436042c65c5641ce8a9e9/pkg/util/interrupt/interrupt.go#L28
var terminationSignals = []os.Signal{syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT}

var osExit = os.Exit

// exit is replaced in tests.
var exit = osExit

// TerminationContext returns a context that is canceled when a termination
// signal is received. A second signal exits the process immediately.
func TerminationContext(parent context.Context, log logr.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	watchCtx, stopWatching := context.WithCancel(context.Background())
	sig := Notify(watchCtx)
	go func() {
		select {
		case s, ok := <-sig:
			if !ok {
				return
			}
			log.Info("received signal, shutting down", "signal", s.String())
			cancel()
		case <-ctx.Done():
			stopWatching()
			return
		}
		if s, ok := <-sig; ok {
			log.Info("received second signal, exiting", "signal", s.String())
			exit(1)
		}
	}()
	return ctx, func() {
		cancel()
		stopWatching()
	}
}

// Notify returns a channel receives termination signals from the OS until the context is canceled.
func Notify(ctx context.Context) <-chan os.Signal {
	sig := make(chan os.Signal, len(terminationSignals))
	signal.Notify(sig, terminationSignals...)
	go func() {
		<-ctx.Done()
		signal.Stop(sig)
		close(sig)
	}()
	return sig
}
