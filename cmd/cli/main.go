package main

import (
	"fmt"
	"os"

	"cellscope/internal"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := godotenv.Load(); err != nil {
		internal.DefaultLogger.Debug("no .env file found, using system environment variables")
	}

	rootCmd := &cobra.Command{
		Use:           "cellscope",
		Short:         "Battery cell cycling analytics and anomaly detection",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var noColor bool
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable coloured output")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if noColor {
			color.NoColor = true
		}
	}

	rootCmd.AddCommand(
		newCellCmd(),
		newCohortCmd(),
		newAnalyzeFileCmd(),
		newPorosityCmd(),
		newServeCmd(),
		newMigrateCmd(),
		newImportCmd(),
		newExportCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
