package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/oshokin/http-fetcher/internal/app"
	"github.com/oshokin/http-fetcher/internal/config"
)

var (
	//nolint:gochecknoglobals,lll // Cobra command requires a global definition for proper command-line parsing and execution.
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file.",
	}

	//nolint:gochecknoglobals,lll // Cobra command requires a global definition for proper command-line parsing and execution.
	configInitCmd = &cobra.Command{
		Use:   "init [path]",
		Short: "Write a configuration file with the default settings.",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			overwrite, _ := cmd.Flags().GetBool("force")

			app.ExecuteConfigInitCommand(cmd.Context(), configPath(args), overwrite)
		},
	}

	//nolint:gochecknoglobals,lll // Cobra command requires a global definition for proper command-line parsing and execution.
	configSetCmd = &cobra.Command{
		Use:       "set {key} {value}",
		Short:     "Update a single key in the configuration file.",
		Long:      "Update a single key in the configuration file.\nKeys: " + strings.Join(config.Keys(), ", ") + ".",
		Args:      cobra.ExactArgs(2), //nolint:mnd // Key and value.
		ValidArgs: config.Keys(),
		Run: func(cmd *cobra.Command, args []string) {
			app.ExecuteConfigSetCommand(cmd.Context(), configFilenameFromFlag, args[0], args[1])
		},
	}
)

//nolint:gochecknoinits // Cobra requires the init function to set up flags before the command is executed.
func init() {
	configInitCmd.Flags().BoolP("force", "f", false, "overwrite an existing configuration file.")

	configCmd.AddCommand(configInitCmd, configSetCmd)
}

// configPath prefers the positional path, then --config, then the default file name.
func configPath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}

	return configFilenameFromFlag
}
