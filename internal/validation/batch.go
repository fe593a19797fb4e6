package validation

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/MeKo-Tech/wordscan/internal/address"
	"github.com/MeKo-Tech/wordscan/internal/dispatch"
	"github.com/MeKo-Tech/wordscan/internal/metrics"
)

// ValidateAll validates candidates with at most limit calls in flight and
// returns the confirmed addresses that spell their candidate, in candidate
// order. Failures and panics are logged and otherwise ignored.
func ValidateAll(ctx context.Context, c Client, candidates []string, opts Options, limit int, log *slog.Logger) []address.Confirmed {
	if log == nil {
		log = slog.Default()
	}
	results := make([][]address.Confirmed, len(candidates))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, cand := range candidates {
		g.Go(func() error {
			defer dispatch.Recover(log, "validation")
			res, err := c.Validate(ctx, cand, opts)
			if err != nil {
				metrics.ValidationsTotal.WithLabelValues("error").Inc()
				log.Debug("validation failed", "candidate", cand, "error", err)
				return nil
			}
			matched := Matching(cand, res)
			if len(matched) == 0 {
				metrics.ValidationsTotal.WithLabelValues("rejected").Inc()
				log.Debug("candidate rejected", "candidate", cand, "suggestions", len(res))
				return nil
			}
			metrics.ValidationsTotal.WithLabelValues("confirmed").Inc()
			results[i] = matched
			return nil
		})
	}
	_ = g.Wait()

	var out []address.Confirmed
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}
