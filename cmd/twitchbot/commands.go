package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"twitchbot/pkg/chat"
	"twitchbot/pkg/commands"
	"twitchbot/pkg/config"
	"twitchbot/pkg/logger"
)

var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "Inspect command definitions",
}

var commandsListCmd = &cobra.Command{
	Use:   "list [dir]",
	Short: "List built-in and loaded commands",
	Long: `List every command the bot would register, in resolution order.

Without a directory argument the configured bot.commands_dir is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCommandsList,
}

var commandsValidateCmd = &cobra.Command{
	Use:   "validate <dir>",
	Short: "Validate YAML command definitions",
	Args:  cobra.ExactArgs(1),
	RunE:  runCommandsValidate,
}

func init() {
	commandsCmd.AddCommand(commandsListCmd)
	commandsCmd.AddCommand(commandsValidateCmd)
}

// offlineLoader compiles definitions without a chat connection.
func offlineLoader(prefix string) *commands.Loader {
	return commands.NewLoader(chat.NewResponder(nil), func() string { return prefix }, logger.NewNop())
}

func runCommandsList(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader().Load(configPath)
	if err != nil {
		return err
	}
	bot := cfg.BotSettings()

	dir := bot.CommandsDir
	if len(args) == 1 {
		dir = args[0]
	}

	registry := commands.NewRegistry(logger.NewNop())
	prefix := func() string { return bot.Prefix }
	if err := commands.RegisterBuiltinCommands(registry, chat.NewResponder(nil), prefix); err != nil {
		return err
	}
	if dir != "" {
		results, err := offlineLoader(bot.Prefix).LoadDir(dir)
		if err != nil {
			return err
		}
		for _, c := range commands.Commands(results) {
			if err := registry.RegisterCommand(c); err != nil {
				return err
			}
		}
	}

	return printCommands(cmd.OutOrStdout(), bot.Prefix, registry.List())
}

func printCommands(out io.Writer, prefix string, cmds []*commands.Command) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COMMAND\tALIASES\tUSERLEVEL\tSOURCE")
	for _, c := range cmds {
		source := c.Source
		if source == "" {
			source = "builtin"
		}
		fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\n",
			prefix, c.Name(),
			strings.Join(c.Descriptor.Aliases, ","),
			c.Descriptor.Tier,
			source)
	}
	return w.Flush()
}

func runCommandsValidate(cmd *cobra.Command, args []string) error {
	results, err := offlineLoader("!").LoadDir(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	invalid := 0
	for _, res := range results {
		switch r := res.(type) {
		case commands.Valid:
			fmt.Fprintf(out, "ok      %s (%s)\n", r.Path, r.Command.Name())
		case commands.Invalid:
			invalid++
			fmt.Fprintf(out, "invalid %s: %s\n", r.Path, r.Reason)
		}
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d definitions invalid: %w", invalid, len(results), commands.ErrInvalidDefinition)
	}
	if len(results) == 0 {
		return errors.New("no definitions found")
	}
	return nil
}
