// Package cli implements the eventvault command line interface.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/custodia-labs/eventvault/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

var verboseFlag bool

var rootCmd = &cobra.Command{
	Use:   "eventvault",
	Short: "Deduplicating write-path engine for device event records",
	Long: `eventvault ingests batches of device event records, deciding per record
whether it is a new record or a correction of a stored one, writing the
batch as a single partial-failure-tolerant bulk operation, and keeping a
read cache coherent with what the storage layer actually committed.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verboseFlag)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable verbose logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
