package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverAddress string
	logLevel      string
)

var rootCmd = &cobra.Command{
	Use:   "lsmstore",
	Short: "A log-structured key-value store",
	Long: `A single-node key-value store backed by a write-ahead log and
immutable sorted table files written when the memtable fills up.`,
	SilenceUsage: true,
}

func ExecuteServer() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("couldn't execute app,", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(startNodeCmd)
	rootCmd.AddCommand(putCmd, getCmd, flushCmd, statsCmd)
	rootCmd.AddCommand(dumpCmd)
}
