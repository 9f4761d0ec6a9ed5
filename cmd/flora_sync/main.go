package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dearflow-inc/flora-mobile-sub000/internal/commands"
	"github.com/dearflow-inc/flora-mobile-sub000/internal/config"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=X.Y.Z"
	Version    = "0.0.0-dev"
	verbose    bool
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "flora_sync",
	Short: "Flora Sync - keep a device in step with your Flora account",
	Long: `Flora Sync holds the realtime connection to the Flora backend and keeps the
local chats, todos, emails, tool executions and tasks in sync.

Quick Start:
  flora_sync login --access-token <jwt> --refresh-token <token>
  flora_sync start              Run the sync daemon
  flora_sync status             Show connection and auth status

Commands:
  login / logout              Store or forget the session tokens
  start / stop                Run or stop the daemon
  status                      Live status, or the stored session when stopped
  tasks list                  Show inbox tasks
  tasks complete|delete|ignore|snooze <id>
  draft set|discard|list      Autosaved drafts
  foreground                  Reconnect now if disconnected

Config: ~/.flora/config.yaml (FLORA_* environment variables override it)`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if configFile != "" {
			config.SetConfigPath(configFile)
		}
		if err := godotenv.Load(); err == nil {
			slog.Debug("loaded .env")
		}
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default ~/.flora/config.yaml)")

	rootCmd.AddCommand(commands.LoginCmd)
	rootCmd.AddCommand(commands.LogoutCmd)
	rootCmd.AddCommand(commands.StartCmd)
	rootCmd.AddCommand(commands.StopCmd)
	rootCmd.AddCommand(commands.StatusCmd)
	rootCmd.AddCommand(commands.TasksCmd)
	rootCmd.AddCommand(commands.DraftCmd)
	rootCmd.AddCommand(commands.ForegroundCmd)
}

func main() {
	commands.AppVersion = Version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
