package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dearflow-inc/flora-mobile-sub000/internal/auth"
	"github.com/dearflow-inc/flora-mobile-sub000/internal/config"
)

var (
	loginAccessToken  string
	loginRefreshToken string
	loginEmail        string
)

var LoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store the session tokens",
	Long: `Stores the access and refresh token the sync daemon authenticates with.
A running daemon picks the new tokens up without a restart.`,
	RunE: runLogin,
}

func init() {
	LoginCmd.Flags().StringVar(&loginAccessToken, "access-token", "", "Access token (JWT)")
	LoginCmd.Flags().StringVar(&loginRefreshToken, "refresh-token", "", "Refresh token")
	LoginCmd.Flags().StringVar(&loginEmail, "email", "", "Account email, shown in status")
	LoginCmd.MarkFlagRequired("access-token")
	LoginCmd.MarkFlagRequired("refresh-token")
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	creds := auth.Credentials{AccessToken: loginAccessToken, RefreshToken: loginRefreshToken}
	if !creds.Present() {
		return fmt.Errorf("%w: both tokens are required", auth.ErrNoCredentials)
	}

	exp, err := auth.ParseJWTExpiry(loginAccessToken)
	if err != nil {
		fmt.Println(warnStyle.Render("⚠️  Could not read the token expiry, storing it anyway"))
		exp = 0
	} else if auth.IsTokenExpired(exp) {
		return fmt.Errorf("access token already expired at %s", time.Unix(exp, 0).Format(time.RFC1123))
	}

	changed := cfg.AuthToken != loginAccessToken || cfg.RefreshToken != loginRefreshToken
	cfg.AuthToken = loginAccessToken
	cfg.RefreshToken = loginRefreshToken
	cfg.TokenExpiry = exp
	if loginEmail != "" {
		cfg.UserEmail = loginEmail
	}

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	if changed {
		if err := clearSessionState(cfg.StateDB); err != nil {
			fmt.Println(warnStyle.Render(fmt.Sprintf("⚠️  Could not clear cached profile: %v", err)))
		}
	}

	fmt.Println(successStyle.Render("✅ Logged in"))
	if exp != 0 {
		fmt.Println(row("Token", formatExpiry(exp, time.Now())))
	}
	fmt.Println(dimStyle.Render("Config: " + config.GetConfigPath()))
	return nil
}
