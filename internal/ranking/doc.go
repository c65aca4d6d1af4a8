// Package ranking implements the personalized feed ranking engine: it
// decides which candidate posts are eligible for a viewer, scores each
// eligible post against the viewer's personalization config, resolves
// near-ties deterministically, enforces per-author diversity, and widens
// the time window progressively when too little content qualifies.
//
// Basic Usage:
//
//	// Load weight calibration (typically at startup)
//	weights, err := ranking.LoadCalibration("configs/ranking.calibration.json")
//	if err != nil {
//		slog.Warn("using default ranking weights", "error", err)
//	}
//
//	engine := ranking.NewEngine(ranking.WithWeights(weights))
//
//	feed := engine.GenerateFeed(candidates, viewer, cfg, authors, 50)
//	for _, item := range feed {
//		render(item.Post, item.Score, item.Explanation)
//	}
//
// The engine is a pure, synchronous computation over data already resident
// in memory. It holds no mutable state of its own, never mutates its
// inputs, and is safe for concurrent use. Candidates must be pre-loaded
// (and pre-filtered for visibility) by the caller; results are not
// persisted or cached.
//
// Calibration:
//
// The scoring weights are policy constants. DefaultWeights reproduces them
// exactly; LoadCalibration allows deploy-time overrides via a JSON file
// loaded at startup, merged over the defaults so partial files degrade
// gracefully.
package ranking
