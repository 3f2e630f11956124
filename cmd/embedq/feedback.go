package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"
)

var feedbackCategories []string

var feedbackCmd = &cobra.Command{
	Use:   "feedback <query>",
	Short: "Analyze a query against the stored embeddings",
	Long: `Embed a query and search it across namespaces, reporting how well
the stored embeddings cover it.

Examples:
  embedq feedback "how does the retry policy work"

  # Restrict to specific categories
  embedq feedback --categories knowledge,documentation "queue cleanup"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFeedback,
}

func init() {
	feedbackCmd.Flags().StringSliceVar(&feedbackCategories, "categories", nil, "categories to search (default all)")
}

func runFeedback(cmd *cobra.Command, args []string) error {
	var report json.RawMessage
	err := newAPIClient().post("/api/v1/feedback", map[string]interface{}{
		"query":      strings.Join(args, " "),
		"categories": feedbackCategories,
	}, &report)
	if err != nil {
		return err
	}
	return printJSON(report)
}
