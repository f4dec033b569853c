package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	follow  bool
	noColor bool
	rawJSON bool
)

var errorLabel = color.New(color.FgRed)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "applogtail [flags] FILE",
	Short: "Pretty-print a JSON log file written by applog",
	Long: `applogtail prints every record of a JSON log file written by applog, one line per record:
timestamp, level, service/component, message and the remaining fields.

Examples:
  # Print a log file
  applogtail /var/log/shop.log

  # Keep printing records as they are appended
  applogtail -f /var/log/shop.log`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		p := newPrinter(cmd.OutOrStdout(), noColor || rawJSON)
		p.raw = rawJSON
		return tail(ctx, args[0], follow, p.printLine)
	},
}

func init() {
	rootCmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep reading records appended to the file")
	rootCmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.Flags().BoolVarP(&rawJSON, "json", "j", false, "Print records as the original JSON lines")
}

// Execute runs the root command and exits non-zero on error.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SilenceErrors = true // Prevent Cobra from printing the error
	rootCmd.SilenceUsage = true  // Prevent Cobra from printing usage on error

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		errorLabel.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
