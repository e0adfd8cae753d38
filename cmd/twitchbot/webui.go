package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	adminUsername string
	adminPassword string
)

var webuiCmd = &cobra.Command{
	Use:   "webui",
	Short: "Manage the admin API",
}

var webuiSetPasswordCmd = &cobra.Command{
	Use:   "set-password",
	Short: "Set the admin login for the admin API",
	Long: `Store a bcrypt hash of the admin password in the config file. When
--password is omitted the password is read from the terminal twice.`,
	Args: cobra.NoArgs,
	RunE: runSetPassword,
}

func init() {
	webuiSetPasswordCmd.Flags().StringVar(&adminUsername, "username", "admin", "admin username")
	webuiSetPasswordCmd.Flags().StringVar(&adminPassword, "password", "", "admin password")

	webuiCmd.AddCommand(webuiSetPasswordCmd)
}

func runSetPassword(cmd *cobra.Command, args []string) error {
	username := strings.TrimSpace(adminUsername)
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}

	password := strings.TrimSpace(adminPassword)
	if password == "" {
		first, err := promptSecret(cmd, "Enter new password: ")
		if err != nil {
			return err
		}
		second, err := promptSecret(cmd, "Confirm password: ")
		if err != nil {
			return err
		}
		if first != second {
			return fmt.Errorf("passwords do not match")
		}
		password = first
	}

	loader, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.SetAdminCredential(username, password); err != nil {
		return err
	}
	if err := loader.Save(cfg.Path(), cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Admin login for %q saved to %s\n", username, cfg.Path())
	return nil
}
