package cmd

import (
	"github.com/spf13/cobra"
)

var debugFlag bool

var rootCmd = &cobra.Command{
	Use:   "glint",
	Short: "keyboard-driven application launcher",
	Long: `glint - keyboard-driven launcher for the terminal
  - type to fuzzy-search installed applications
  - ":s text" queries installed search backends
  - ":f text" and friends run your configured commands`,
	RunE:          runLauncher,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")

	rootCmd.AddCommand(backendsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}
