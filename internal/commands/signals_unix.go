//go:build !windows

package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// notifyForeground calls fn on every SIGUSR1 until ctx is done.
func notifyForeground(ctx context.Context, fn func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGUSR1)

	go func() {
		defer signal.Stop(sigChan)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigChan:
				fn()
			}
		}
	}()
}
