package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	submitCategory string
	submitLayer    string
	submitPriority string
	submitTier     string
)

var submitCmd = &cobra.Command{
	Use:   "submit [file]",
	Short: "Submit text for embedding",
	Long: `Submit text for embedding from a file or stdin.

Examples:
  # Submit a file into the backend knowledge namespace
  embedq submit --category knowledge --layer backend notes.md

  # Submit from stdin at urgent priority
  echo "fix the flaky test" | embedq submit --category tasks --layer backend --priority urgent -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitCategory, "category", "knowledge", "namespace category")
	submitCmd.Flags().StringVar(&submitLayer, "layer", "backend", "namespace layer (frontend, backend)")
	submitCmd.Flags().StringVar(&submitPriority, "priority", "normal", "task priority (urgent, high, normal, low)")
	submitCmd.Flags().StringVar(&submitTier, "tier", "", "model tier (primary, secondary, tertiary)")
}

// submitRequest matches internal/httpapi SubmitTaskRequest.
type submitRequest struct {
	Text      string `json:"text"`
	Category  string `json:"category"`
	Layer     string `json:"layer"`
	ModelTier string `json:"model_tier,omitempty"`
	Priority  string `json:"priority,omitempty"`
}

// submitResponse matches internal/httpapi SubmitTaskResponse.
type submitResponse struct {
	TaskID string `json:"task_id"`
}

func runSubmit(cmd *cobra.Command, args []string) error {
	var content []byte
	var err error

	if len(args) == 0 || args[0] == "-" {
		content, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		content, err = os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", args[0], err)
		}
	}
	if len(content) == 0 {
		return fmt.Errorf("no content to submit")
	}

	var resp submitResponse
	err = newAPIClient().post("/api/v1/tasks", submitRequest{
		Text:      string(content),
		Category:  submitCategory,
		Layer:     submitLayer,
		ModelTier: submitTier,
		Priority:  submitPriority,
	}, &resp)
	if err != nil {
		return err
	}

	fmt.Printf("Task ID: %s\n", resp.TaskID)
	return nil
}
