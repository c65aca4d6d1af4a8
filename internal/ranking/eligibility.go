package ranking

import (
	"log/slog"

	"github.com/onda-social/onda/internal/post"
	"github.com/onda-social/onda/internal/viewer"
)

// EligibilityOptions relaxes individual eligibility rules. Used by the feed
// assembler during fallback search; callers checking a single post should
// pass the zero value.
type EligibilityOptions struct {
	// IgnoreMuted skips the muted-topic exclusion. Self-exclusion is
	// never relaxed.
	IgnoreMuted bool
}

// IsEligible reports whether a post may ever be shown to the viewer under
// the given config. It is a pure predicate: no side effects beyond
// diagnostic logging.
//
// Rules, in order (first failure short-circuits):
//  1. the viewer's own posts are never eligible;
//  2. posts overlapping a muted topic are excluded unless opts.IgnoreMuted;
//  3. for-all posts are eligible;
//  4. tuned posts are eligible through the follower flags, or through
//     embedding similarity at or above the config threshold.
func (e *Engine) IsEligible(p *post.Post, v *viewer.Viewer, cfg *Config, opts EligibilityOptions) bool {
	if p == nil || v == nil || cfg == nil {
		return false
	}

	// Self-exclusion is absolute.
	if p.AuthorID == v.ID {
		return false
	}

	if !opts.IgnoreMuted && matchesAnyTopic(p.Topic, p.SemanticTopics, cfg.MutedTopics) {
		return false
	}

	switch p.ReachMode {
	case post.ReachForAll, "":
		// Legacy rows predate reach modes and were always public.
		return true
	case post.ReachTuned:
		return e.tunedEligible(p, v, cfg)
	default:
		e.logger.Warn("post has unknown reach mode, treating as ineligible",
			slog.String("post_id", p.ID),
			slog.String("reach_mode", string(p.ReachMode)))
		return false
	}
}

// tunedEligible evaluates the tuned-audience rules. Tuned reach is an
// audience-targeting primitive independent of the follow graph: a creator
// can target "anyone who reads like X" via embedding similarity, so the
// check consults vectors, not just follow relationships.
func (e *Engine) tunedEligible(p *post.Post, v *viewer.Viewer, cfg *Config) bool {
	ta := p.TunedAudience
	if ta == nil {
		// Data-integrity violation: fail closed, never crash.
		e.logger.Warn("tuned post missing audience descriptor, treating as ineligible",
			slog.String("post_id", p.ID),
			slog.String("author_id", p.AuthorID))
		return false
	}

	follows := v.Follows(p.AuthorID)
	if ta.AllowFollowers && follows {
		return true
	}
	if ta.AllowNonFollowers && !follows {
		return true
	}

	if len(ta.TargetAudienceEmbedding) > 0 && len(v.ProfileEmbedding) > 0 {
		sim := CosineSimilarity(ta.TargetAudienceEmbedding, v.ProfileEmbedding)
		if sim >= cfg.similarityThreshold() {
			return true
		}
		e.logger.Debug("tuned post excluded: embedding similarity below threshold",
			slog.String("post_id", p.ID),
			slog.String("viewer_id", v.ID),
			slog.Float64("similarity", sim),
			slog.Float64("threshold", cfg.similarityThreshold()))
		return false
	}

	e.logger.Debug("tuned post excluded: viewer outside explicit audience",
		slog.String("post_id", p.ID),
		slog.String("viewer_id", v.ID),
		slog.Bool("follows_author", follows))
	return false
}
