package commands

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/dearflow-inc/flora-mobile-sub000/internal/config"
	"github.com/dearflow-inc/flora-mobile-sub000/internal/daemon"
)

// AppVersion is set from main.
var AppVersion = "0.0.0-dev"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Width(16)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 2)
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// withDaemon runs fn against the running daemon.
func withDaemon(fn func(*daemon.Client) error) error {
	socket := daemon.GetSocketPath()
	if !daemon.IsRunning(socket) {
		return fmt.Errorf("daemon is not running. Start it with 'flora_sync start'")
	}

	client, err := daemon.Connect(socket)
	if err != nil {
		return fmt.Errorf("failed to connect to daemon: %w", err)
	}
	defer client.Close()

	client.OnNotice = func(n daemon.NoticePayload) {
		fmt.Println(warnStyle.Render("⚠️  " + n.Message))
	}
	return fn(client)
}

func row(label, value string) string {
	return labelStyle.Render(label) + value
}

// formatExpiry renders a unix expiry relative to now.
func formatExpiry(exp int64, now time.Time) string {
	if exp == 0 {
		return dimStyle.Render("unknown")
	}
	at := time.Unix(exp, 0)
	left := at.Sub(now)
	switch {
	case left <= 0:
		return errorStyle.Render(fmt.Sprintf("expired %s ago", (-left).Round(time.Minute)))
	case left <= 5*time.Minute:
		return warnStyle.Render(fmt.Sprintf("expires in %s", left.Round(time.Second)))
	default:
		return successStyle.Render(fmt.Sprintf("valid for %s", left.Round(time.Minute)))
	}
}
