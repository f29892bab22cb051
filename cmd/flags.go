package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/zjrosen/milspecs/internal/config"
	"github.com/zjrosen/milspecs/internal/flags"
	"github.com/zjrosen/milspecs/internal/presentation"
)

var flagsListCmd = &cobra.Command{
	Use:   "flags:list",
	Short: "Show feature flag values",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return presentation.NewFormatter(cmd.OutOrStdout(), true).FormatJSON(flags.WithDefaults(cfg.Flags).All())
	},
}

var flagsSetCmd = &cobra.Command{
	Use:   "flags:set <name> <true|false>",
	Short: "Set a feature flag in the config file",
	Long: `Set a feature flag and save it to the config file in use, keeping the
rest of the file as written.

Examples:
  milspecs flags:set stp-viewer true
  milspecs flags:set tools-expansion false`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := strconv.ParseBool(args[1])
		if err != nil {
			return fmt.Errorf("invalid value %q: want true or false", args[1])
		}
		updated := flags.WithDefaults(cfg.Flags).All()
		updated[args[0]] = value
		if err := config.ValidateFlags(updated); err != nil {
			return err
		}

		path := configPath()
		if err := config.SaveFlags(path, updated); err != nil {
			return err
		}
		cfg.Flags = updated
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s=%t in %s\n", args[0], value, path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(flagsListCmd, flagsSetCmd)
}
