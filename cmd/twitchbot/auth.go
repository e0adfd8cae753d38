package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"twitchbot/pkg/auth"
	"twitchbot/pkg/config"
	"twitchbot/pkg/gateway"
	"twitchbot/pkg/logger"
)

var (
	redirectURL string
	tokenSub    string
	tokenTTL    time.Duration
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the bot account token",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authorize the bot account in the browser",
	Long: `Run the Twitch authorization code flow and store the resulting user
token in the config file. twitch.client_id and twitch.client_secret must be
set and the redirect URL registered for the application.`,
	RunE: runAuthLogin,
}

var authRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the stored user token now",
	RunE:  runAuthRefresh,
}

var authGatewayTokenCmd = &cobra.Command{
	Use:   "gateway-token",
	Short: "Issue a JWT for the gateway API",
	RunE:  runAuthGatewayToken,
}

func init() {
	authLoginCmd.Flags().StringVar(&redirectURL, "redirect", auth.DefaultRedirectURL, "OAuth redirect URL")
	authGatewayTokenCmd.Flags().StringVar(&tokenSub, "sub", "dashboard", "token subject")
	authGatewayTokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime (0 for none)")

	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authRefreshCmd)
	authCmd.AddCommand(authGatewayTokenCmd)
}

func loadConfig() (*config.Loader, *config.Config, error) {
	loader := config.NewLoader()
	cfg, err := loader.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	return loader, cfg, nil
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	loader, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tw := cfg.TwitchSettings()
	if tw.ClientID == "" {
		return fmt.Errorf("twitch.client_id must be set in %s", cfg.Path())
	}
	if tw.ClientSecret == "" {
		secret, err := promptSecret(cmd, "Client secret: ")
		if err != nil {
			return fmt.Errorf("twitch.client_secret is not set in %s: %w", cfg.Path(), err)
		}
		tw.ClientSecret = secret
		fmt.Fprintln(cmd.ErrOrStderr(), "Note: set twitch.client_secret in the config so the token can be refreshed.")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	login := &auth.Login{OAuth: auth.NewOAuthConfig(tw, redirectURL)}
	tok, err := login.Run(ctx)
	if err != nil {
		return err
	}

	if err := auth.NewStore(cfg, loader).Save(tok); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Token saved to %s (expires %s)\n", cfg.Path(), tok.Expiry.Format(time.RFC3339))
	return nil
}

// promptSecret reads a value from the terminal without echo.
func promptSecret(cmd *cobra.Command, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal")
	}

	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("reading secret: %w", err)
	}

	secret := strings.TrimSpace(string(raw))
	if secret == "" {
		return "", fmt.Errorf("secret cannot be empty")
	}
	return secret, nil
}

func runAuthRefresh(cmd *cobra.Command, args []string) error {
	loader, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	r := auth.NewRefresher(logger.NewNop(), auth.NewOAuthConfig(cfg.TwitchSettings(), auth.DefaultRedirectURL),
		auth.NewStore(cfg, loader), "")
	tok, err := r.Refresh(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Token refreshed (expires %s)\n", tok.Expiry.Format(time.RFC3339))
	return nil
}

func runAuthGatewayToken(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	token, err := gateway.IssueToken(cfg.Gateway.JWTSecret, tokenSub, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
