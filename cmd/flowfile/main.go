// Command flowfile runs, validates, and exports FlowGraph documents from
// the command line.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/Edwardvaneechoud/Flowfile-sub004/log"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "flowfile",
		Short: "Run, check, and export FlowGraph documents",
	}
	rootCmd.PersistentFlags().String("log-level", log.LevelInfo, "log level: debug, info, warn, error, fatal")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		level, _ := cmd.Flags().GetString("log-level")
		log.SetLevel(level)
	}

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newExportCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
