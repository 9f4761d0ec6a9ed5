//go:build windows

package commands

import "context"

// Windows has no SIGUSR1; use 'flora_sync foreground' instead.
func notifyForeground(ctx context.Context, fn func()) {}
