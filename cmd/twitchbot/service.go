package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"twitchbot/pkg/config"
)

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage twitchbot as a system service",
	Long: `Install, control and run twitchbot under the system service manager
(systemd, launchd or the Windows service control manager).

Examples:
  twitchbot service install -c /etc/twitchbot/config.yaml
  twitchbot service start
  twitchbot service status`,
}

// botService runs the bot app under the service manager.
type botService struct {
	app    *fx.App
	logger service.Logger
}

// Start implements service.Interface. It must not block.
func (s *botService) Start(svc service.Service) error {
	if s.logger != nil {
		_ = s.logger.Info("Starting twitchbot service")
	}

	s.app = newApp()
	if err := s.app.Err(); err != nil {
		return fmt.Errorf("building app: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.app.StartTimeout())
	defer cancel()
	return s.app.Start(ctx)
}

// Stop implements service.Interface.
func (s *botService) Stop(svc service.Service) error {
	if s.logger != nil {
		_ = s.logger.Info("Stopping twitchbot service")
	}
	if s.app == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.app.StopTimeout())
	defer cancel()
	if err := s.app.Stop(ctx); err != nil {
		if s.logger != nil {
			_ = s.logger.Errorf("Error stopping service: %v", err)
		}
		return err
	}
	return nil
}

// serviceConfig describes the installed unit. The config path is baked into
// the arguments so the service manager starts the bot with the same file.
func serviceConfig() *service.Config {
	args := []string{}
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = strings.TrimSpace(os.Getenv(config.ConfigPathEnv))
	}
	if path != "" {
		args = append(args, "-c", path)
	}
	args = append(args, "service", "run")

	return &service.Config{
		Name:        "twitchbot",
		DisplayName: "twitchbot",
		Description: "Twitch chat command bot",
		Arguments:   args,
	}
}

func newService() (service.Service, *botService, error) {
	prg := &botService{}
	s, err := service.New(prg, serviceConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("creating service: %w", err)
	}
	return s, prg, nil
}

// serviceAction builds a subcommand that performs one control action.
func serviceAction(use, short, done string, action func(service.Service) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := newService()
			if err != nil {
				return err
			}
			if err := action(s); err != nil {
				return fmt.Errorf("%s service: %w", use, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), done)
			return nil
		},
	}
}

var serviceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show service status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := newService()
		if err != nil {
			return err
		}
		status, err := s.Status()
		if err != nil {
			return fmt.Errorf("getting service status: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Service Status: %s\n", statusString(status))
		return nil
	},
}

var serviceRunCmd = &cobra.Command{
	Use:    "run",
	Short:  "Run under the service manager",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, prg, err := newService()
		if err != nil {
			return err
		}
		logger, err := s.Logger(nil)
		if err != nil {
			return fmt.Errorf("creating service logger: %w", err)
		}
		prg.logger = logger

		if err := s.Run(); err != nil {
			_ = logger.Error(err)
			return err
		}
		return nil
	},
}

func statusString(status service.Status) string {
	switch status {
	case service.StatusRunning:
		return "Running"
	case service.StatusStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

func init() {
	serviceCmd.AddCommand(
		serviceAction("install", "Install the system service", "Service installed. Use 'twitchbot service start' to start it.", service.Service.Install),
		serviceAction("uninstall", "Remove the system service", "Service uninstalled.", service.Service.Uninstall),
		serviceAction("start", "Start the system service", "Service started.", service.Service.Start),
		serviceAction("stop", "Stop the system service", "Service stopped.", service.Service.Stop),
		serviceAction("restart", "Restart the system service", "Service restarted.", service.Service.Restart),
		serviceStatusCmd,
		serviceRunCmd,
	)
}
