package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/embedq/internal/vectorstore"
)

// Signal is a lightweight quality observation produced by an analyzer
// after a task completes. Signals are persisted to the confidence
// namespace of the task's layer for later inspection.
type Signal struct {
	Analyzer   string                 `json:"analyzer"`
	TaskID     string                 `json:"task_id"`
	Summary    string                 `json:"summary"`
	Score      float64                `json:"score"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// Analyzer inspects a completed task. Analyzer failures are logged and
// swallowed; they never fail the task.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, outcome *TaskOutcome) (*Signal, error)
}

func (o *Orchestrator) runAnalyzers(ctx context.Context, outcome *TaskOutcome) {
	for _, a := range o.analyzers {
		signal, err := a.Analyze(ctx, outcome)
		if err != nil {
			analyzerFailures.WithLabelValues(a.Name()).Inc()
			o.logger.Warn(ctx, "analyzer failed",
				zap.String("analyzer", a.Name()),
				zap.Error(err))
			continue
		}
		if signal == nil {
			continue
		}
		o.persistSignal(ctx, outcome, signal)
	}
}

// persistSignal writes the signal into the confidence namespace of the
// task's layer, reusing the task's vector so the signal is findable via
// similarity to the original text.
func (o *Orchestrator) persistSignal(ctx context.Context, outcome *TaskOutcome, signal *Signal) {
	attrs := map[string]interface{}{
		"analyzer":        signal.Analyzer,
		"task_id":         signal.TaskID,
		"signal_score":    signal.Score,
		"source_category": outcome.Task.Payload.Category,
		// Signals are shallow heuristics; consumers should not treat
		// them as ground truth.
		"heuristic": true,
	}
	for k, v := range signal.Attributes {
		attrs[k] = v
	}

	_, err := o.store.UpsertPoints(ctx,
		vectorstore.CategoryConfidence,
		vectorstore.Layer(outcome.Task.Payload.Layer),
		[]vectorstore.Item{{
			Text:     signal.Summary,
			Vector:   outcome.Embedding.Vector,
			Model:    outcome.Embedding.Model,
			Metadata: attrs,
		}})
	if err != nil {
		analyzerFailures.WithLabelValues(signal.Analyzer).Inc()
		o.logger.Warn(ctx, "persisting analyzer signal failed",
			zap.String("analyzer", signal.Analyzer),
			zap.Error(err))
	}
}

// LatencyBandAnalyzer buckets embedding latency into coarse bands.
type LatencyBandAnalyzer struct {
	// SlowThreshold marks the slow band. Zero means 2s.
	SlowThreshold time.Duration
}

func (a *LatencyBandAnalyzer) Name() string { return "latency_band" }

func (a *LatencyBandAnalyzer) Analyze(_ context.Context, outcome *TaskOutcome) (*Signal, error) {
	slow := a.SlowThreshold
	if slow <= 0 {
		slow = 2 * time.Second
	}

	band := "fast"
	switch {
	case outcome.Duration >= slow:
		band = "slow"
	case outcome.Duration >= slow/4:
		band = "normal"
	}

	return &Signal{
		Analyzer: a.Name(),
		TaskID:   outcome.Task.ID,
		Summary:  fmt.Sprintf("embedding latency %s (%dms) with model %s", band, outcome.Duration.Milliseconds(), outcome.Embedding.Model),
		Score:    outcome.Duration.Seconds(),
		Attributes: map[string]interface{}{
			"band":        band,
			"duration_ms": outcome.Duration.Milliseconds(),
			"model":       outcome.Embedding.Model,
		},
	}, nil
}

// TextComplexityAnalyzer derives a rough complexity estimate from the
// task text. The heuristic is intentionally shallow: word count and
// average word length only.
type TextComplexityAnalyzer struct{}

func (a *TextComplexityAnalyzer) Name() string { return "text_complexity" }

func (a *TextComplexityAnalyzer) Analyze(_ context.Context, outcome *TaskOutcome) (*Signal, error) {
	words := strings.Fields(outcome.Task.Payload.Text)
	if len(words) == 0 {
		return nil, nil
	}

	var chars int
	for _, w := range words {
		chars += len(w)
	}
	avgLen := float64(chars) / float64(len(words))

	band := "simple"
	switch {
	case len(words) > 200 || avgLen > 9:
		band = "complex"
	case len(words) > 50 || avgLen > 6:
		band = "moderate"
	}

	return &Signal{
		Analyzer: a.Name(),
		TaskID:   outcome.Task.ID,
		Summary:  fmt.Sprintf("%s text: %d words, avg word length %.1f", band, len(words), avgLen),
		Score:    avgLen,
		Attributes: map[string]interface{}{
			"band":            band,
			"word_count":      len(words),
			"avg_word_length": avgLen,
		},
	}, nil
}
