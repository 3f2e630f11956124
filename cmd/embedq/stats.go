package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue, store, and pipeline statistics",
	Long: `Show queue depths per priority, per-namespace vector counts, and the
consume loop's rolling metrics.

Examples:
  embedq stats`,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	client := newAPIClient()

	var queueStats json.RawMessage
	if err := client.get("/api/v1/queue/stats", &queueStats); err != nil {
		return err
	}
	var storeStats json.RawMessage
	if err := client.get("/api/v1/store/stats", &storeStats); err != nil {
		return err
	}
	var pipelineStats json.RawMessage
	if err := client.get("/api/v1/pipeline/metrics", &pipelineStats); err != nil {
		return err
	}

	return printJSON(map[string]json.RawMessage{
		"queue":    queueStats,
		"store":    storeStats,
		"pipeline": pipelineStats,
	})
}

var cleanupDays int

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Purge old archived tasks",
	Long: `Remove completed and failed tasks whose terminal timestamp is older
than the given number of days.

Examples:
  embedq cleanup --older-than 30`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupDays, "older-than", 30, "purge archives older than this many days")
}

// cleanupResponse matches internal/httpapi CleanupResponse.
type cleanupResponse struct {
	Removed int `json:"removed"`
}

func runCleanup(cmd *cobra.Command, args []string) error {
	var resp cleanupResponse
	err := newAPIClient().post("/api/v1/queue/cleanup",
		map[string]int{"older_than_days": cleanupDays}, &resp)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d archived task(s)\n", resp.Removed)
	return nil
}
