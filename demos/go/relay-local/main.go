// Command relay-local runs the producer and consumer in one process over an
// in-memory queue, for trying the trace hop without AWS.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "relay-local",
	Short: "Run the traced queue relay locally.",
	Long: `relay-local hosts the producer behind a plain HTTP server and drains ` +
		`the queue into the consumer in the background.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(newServeCmd(), newSendCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
