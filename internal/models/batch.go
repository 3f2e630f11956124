package models

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// EmbedBatch embeds texts in partitions of the configured batch size.
// Items within a partition run concurrently; a short pause separates
// successive partitions to avoid hammering the provider. Each item gets
// the full tier cascade; the whole call fails if any item exhausts it.
// Results are returned in input order.
func (s *Selector) EmbedBatch(ctx context.Context, texts []string, tier Tier) ([]*Embedding, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	for i, text := range texts {
		if text == "" {
			return nil, fmt.Errorf("%w: text %d", ErrEmptyInput, i)
		}
	}

	results := make([]*Embedding, len(texts))
	for offset := 0; offset < len(texts); offset += s.batchSize {
		end := offset + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := offset; i < end; i++ {
			g.Go(func() error {
				emb, err := s.Embed(gctx, texts[i], tier)
				if err != nil {
					return fmt.Errorf("text %d: %w", i, err)
				}
				results[i] = emb
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		s.logger.Debug(ctx, "batch embedded",
			zap.Int("from", offset),
			zap.Int("to", end),
			zap.Int("total", len(texts)))

		if end < len(texts) && s.batchPause > 0 {
			select {
			case <-time.After(s.batchPause):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return results, nil
}
