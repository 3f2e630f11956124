// Package main implements the embedq CLI: the embedding pipeline daemon
// plus thin client commands against its HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL client commands talk to.
	serverURL string
	// configPath optionally points serve at a config file.
	configPath string

	// version information (set via ldflags during build)
	version   = "dev"
	gitCommit = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "embedq",
	Short: "Asynchronous embedding pipeline",
	Long: `embedq runs an asynchronous embedding pipeline: a Redis-backed
priority task queue, an embedding model selector with tier fallback,
and a Qdrant-backed namespaced vector store.

Run the daemon with "embedq serve"; the remaining commands are thin
clients against its HTTP API.`,
	Version: fmt.Sprintf("%s (%s)", version, gitCommit),
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9091", "embedq server URL")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(feedbackCmd)
}
