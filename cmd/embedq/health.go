package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check embedq server health",
	Long: `Check the health of the embedq server and its backends.

Examples:
  embedq health

  # Check a different server
  embedq health --server http://localhost:8080`,
	RunE: runHealth,
}

// healthResponse matches internal/httpapi HealthResponse.
type healthResponse struct {
	Status  string `json:"status"`
	Queue   string `json:"queue"`
	Store   string `json:"store"`
	Running bool   `json:"pipeline_running"`
}

func runHealth(cmd *cobra.Command, args []string) error {
	var resp healthResponse
	if err := newAPIClient().get("/health", &resp); err != nil {
		return err
	}

	fmt.Printf("Server Status:    %s\n", resp.Status)
	fmt.Printf("Queue:            %s\n", resp.Queue)
	fmt.Printf("Vector Store:     %s\n", resp.Store)
	fmt.Printf("Pipeline Running: %t\n", resp.Running)
	fmt.Printf("Server URL:       %s\n", serverURL)
	return nil
}
