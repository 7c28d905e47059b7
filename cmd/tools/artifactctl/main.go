// Command artifactctl is the operator tool for the artifact compiler: it
// checks saved model responses, validates the pass registry and manages
// failure reports.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"artifact-compiler/internal/common/config"
	"artifact-compiler/internal/common/logger"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "artifactctl",
		Short:         "Inspect and operate the artifact compiler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default: configs/config.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level for pipeline diagnostics")

	root.AddCommand(
		newCheckCmd(opts),
		newPassesCmd(opts),
		newReportsCmd(opts),
	)
	return root
}

func (o *rootOptions) load() (*config.Config, error) {
	if o.configPath != "" {
		return config.LoadFromFile(o.configPath)
	}
	return config.Load()
}

func (o *rootOptions) logger() logger.Logger {
	return logger.NewStructured(o.logLevel, "console")
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
