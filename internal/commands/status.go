package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dearflow-inc/flora-mobile-sub000/internal/auth"
	"github.com/dearflow-inc/flora-mobile-sub000/internal/config"
	"github.com/dearflow-inc/flora-mobile-sub000/internal/daemon"
	"github.com/dearflow-inc/flora-mobile-sub000/internal/persist"
)

var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connection and auth status",
	Long:  `Display the live sync status when the daemon is running, or the stored session otherwise.`,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	socket := daemon.GetSocketPath()
	if daemon.IsRunning(socket) {
		client, err := daemon.Connect(socket)
		if err != nil {
			return fmt.Errorf("failed to connect to daemon: %w", err)
		}
		defer client.Close()

		status, err := client.Status()
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}
		fmt.Println(renderLiveStatus(status, time.Now()))
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fmt.Println(renderOfflineStatus(cfg, storedDeviceID(cfg), time.Now()))
	return nil
}

func renderLiveStatus(s daemon.StatusPayload, now time.Time) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("🌿 Flora Sync"))
	b.WriteString("\n")

	var phase string
	switch s.Phase {
	case "connected":
		phase = successStyle.Render("● connected")
	case "connecting":
		phase = warnStyle.Render("◐ connecting")
	default:
		phase = errorStyle.Render("○ disconnected")
		if s.Connection.Attempts > 0 {
			phase += dimStyle.Render(fmt.Sprintf("  (retry #%d scheduled)", s.Connection.Attempts))
		}
	}

	lines := []string{
		row("Connection", phase),
		row("Authorized", yesNo(s.Authorized)),
		row("Backend", s.BackendURL),
	}
	if s.UserEmail != "" {
		lines = append(lines, row("User", s.UserEmail))
	}
	if s.DeviceID != "" {
		lines = append(lines, row("Device", dimStyle.Render(s.DeviceID)))
	}
	lines = append(lines, row("Token", formatExpiry(s.TokenExp, now)))
	if s.Revoked != "" {
		lines = append(lines, row("Revoked", errorStyle.Render(s.Revoked)))
	}
	if s.Error != "" {
		lines = append(lines, row("Last error", errorStyle.Render(s.Error)))
	}

	c := s.Counts
	lines = append(lines,
		"",
		row("Tasks", fmt.Sprintf("%d visible, %d pending removal", c.UserTasks, c.PendingRemoval)),
		row("Chats", fmt.Sprintf("%d chats, %d messages", c.Chats, c.ChatMessages)),
		row("Todos", fmt.Sprint(c.Todos)),
		row("Emails", fmt.Sprint(c.Emails)),
		row("Executions", fmt.Sprintf("%d, %d drafts", c.ToolExecutions, c.Drafts)),
	)

	b.WriteString(boxStyle.Render(strings.Join(lines, "\n")))
	return b.String()
}

func renderOfflineStatus(cfg *config.Config, deviceID string, now time.Time) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("🌿 Flora Sync"))
	b.WriteString("\n")

	lines := []string{row("Daemon", dimStyle.Render("not running"))}
	if cfg.Credentials().Present() {
		exp := cfg.TokenExpiry
		if exp == 0 {
			exp, _ = auth.ParseJWTExpiry(cfg.AuthToken)
		}
		lines = append(lines, row("Auth", successStyle.Render("✅ logged in")), row("Token", formatExpiry(exp, now)))
		if cfg.UserEmail != "" {
			lines = append(lines, row("User", cfg.UserEmail))
		}
	} else {
		lines = append(lines, row("Auth", errorStyle.Render("❌ not logged in")))
	}
	lines = append(lines, row("Backend", cfg.BackendURL))
	if deviceID != "" {
		lines = append(lines, row("Device", dimStyle.Render(deviceID)))
	}
	lines = append(lines, row("Config", config.GetConfigPath()))

	b.WriteString(boxStyle.Render(strings.Join(lines, "\n")))
	b.WriteString("\n\n")
	if cfg.Credentials().Present() {
		b.WriteString(dimStyle.Render("Run: flora_sync start"))
	} else {
		b.WriteString(dimStyle.Render("Next: flora_sync login --access-token <jwt> --refresh-token <token>"))
	}
	return b.String()
}

// storedDeviceID reads the device id without minting one.
func storedDeviceID(cfg *config.Config) string {
	ps, err := persist.Open(cfg.StateDB)
	if err != nil {
		return ""
	}
	defer ps.Close()
	id, err := ps.Get(persist.KeyDeviceID)
	if err != nil {
		return ""
	}
	return id
}

func yesNo(ok bool) string {
	if ok {
		return successStyle.Render("yes")
	}
	return warnStyle.Render("no")
}
