// mvt-report turns the JSON output of a mobile forensics scan into a
// human-readable security report.
//
// Usage:
//
//	mvt-report generate ./mvt-output
//	mvt-report generate ./mvt-output --device-type iOS --format md
//	mvt-report history --limit 10
//	mvt-report history --run <run-id>
//
// Settings are read from --config (YAML) and MVT_REPORT_* environment
// variables. Flags override both.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/exploopio/mvtreport/pkg/config"
)

const appName = "mvt-report"

// Set at build time with -ldflags "-X main.appVersion=...".
var appVersion = "dev"

type rootOptions struct {
	configPath string
	verbose    bool
}

func (o *rootOptions) load() (*config.Config, error) {
	return config.Load(o.configPath)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Generate security reports from mobile forensics scan output",
		Long: `mvt-report reads the per-category JSON files written by a mobile
forensics scan, analyzes them and writes an HTML or Markdown report next
to the scan output. Every run can be archived for later comparison.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to config file")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(
		newGenerateCmd(opts),
		newHistoryCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, appVersion)
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
