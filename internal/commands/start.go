package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dearflow-inc/flora-mobile-sub000/internal/config"
	"github.com/dearflow-inc/flora-mobile-sub000/internal/daemon"
	"github.com/dearflow-inc/flora-mobile-sub000/internal/logging"
)

var StartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the sync daemon",
	Long: `Starts the sync daemon in the foreground. It connects to the realtime
backend once you are logged in and onboarded, keeps the local caches in sync
and serves the other commands over a local socket.

Send SIGUSR1 to reconnect immediately, as if the app came to the foreground.`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if !cfg.Credentials().Present() {
		return fmt.Errorf("not authenticated. Please run 'flora_sync login' first")
	}

	socket := daemon.GetSocketPath()
	if daemon.IsRunning(socket) {
		return fmt.Errorf("daemon is already running")
	}

	level := cfg.Log.Level
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}
	logging.Init(level, cfg.Log.Format)
	logger := logging.Component("cli")

	d, err := daemon.New(cfg, daemon.Options{
		ConfigPath: config.GetConfigPath(),
		SocketPath: socket,
	})
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notifyForeground(ctx, func() {
		logger.Info("foreground signal received")
		d.Foreground()
	})

	logger.Info("starting flora_sync", "version", AppVersion, "config", config.GetConfigPath())
	return d.Run(ctx)
}
