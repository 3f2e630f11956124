package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "Show the status of a task",
	Long: `Show a task's current status, retry count, and result or last error.

Examples:
  embedq status 3c9d9b85-7c29-4a7d-b9d5-0c3d6a1f42a0`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	var task json.RawMessage
	if err := newAPIClient().get("/api/v1/tasks/"+args[0], &task); err != nil {
		return err
	}
	return printJSON(task)
}
