package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/dearflow-inc/flora-mobile-sub000/internal/daemon"
)

// StopCmd stops the running daemon
var StopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background daemon",
	RunE:  stopDaemon,
}

// ForegroundCmd reconnects immediately, as when the app becomes active.
var ForegroundCmd = &cobra.Command{
	Use:   "foreground",
	Short: "Reconnect now if disconnected",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(func(c *daemon.Client) error {
			if err := c.Foreground(); err != nil {
				return err
			}
			fmt.Println("Reconnect requested")
			return nil
		})
	},
}

var DraftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Edit autosaved drafts",
}

var draftSetCmd = &cobra.Command{
	Use:   "set <draft-id> <body>",
	Short: "Replace a draft body; it is saved after a short pause",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(func(c *daemon.Client) error {
			return c.DraftEdit(args[0], args[1])
		})
	},
}

var draftDiscardCmd = &cobra.Command{
	Use:   "discard <draft-id>",
	Short: "Drop a draft",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(func(c *daemon.Client) error {
			return c.DraftDiscard(args[0])
		})
	},
}

var draftListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved drafts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(func(c *daemon.Client) error {
			drafts, err := c.Drafts()
			if err != nil {
				return err
			}
			if len(drafts) == 0 {
				fmt.Println(dimStyle.Render("No drafts."))
				return nil
			}
			ids := make([]string, 0, len(drafts))
			for id := range drafts {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				fmt.Printf("%s  %s\n", labelStyle.Render(id), drafts[id])
			}
			return nil
		})
	},
}

func init() {
	DraftCmd.AddCommand(draftSetCmd, draftDiscardCmd, draftListCmd)
}

func stopDaemon(cmd *cobra.Command, args []string) error {
	if !daemon.IsRunning(daemon.GetSocketPath()) {
		fmt.Println("Daemon is not running")
		return nil
	}

	return withDaemon(func(c *daemon.Client) error {
		if err := c.Shutdown(); err != nil {
			return fmt.Errorf("failed to shutdown daemon: %w", err)
		}
		fmt.Println("Daemon stopped")
		return nil
	})
}
