package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dearflow-inc/flora-mobile-sub000/internal/config"
	"github.com/dearflow-inc/flora-mobile-sub000/internal/persist"
)

var LogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the session",
	Long: `Clears the stored tokens and the cached profile. A running daemon closes
its connection as soon as it sees the tokens disappear.`,
	RunE: runLogout,
}

func runLogout(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	cfg.ClearTokens()
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}

	if err := clearSessionState(cfg.StateDB); err != nil {
		fmt.Println(warnStyle.Render(fmt.Sprintf("⚠️  Could not clear cached profile: %v", err)))
	}

	fmt.Println(successStyle.Render("✅ Logged out"))
	return nil
}

// clearSessionState drops what the gate learned about the old session. The
// device id and drafts stay.
func clearSessionState(path string) error {
	ps, err := persist.Open(path)
	if err != nil {
		return err
	}
	defer ps.Close()

	if err := ps.Delete(persist.KeyProfile); err != nil {
		return err
	}
	return ps.Delete(persist.KeyOnboardingStep)
}
