package ranking

import (
	"fmt"
	"math"
	"strings"

	"github.com/onda-social/onda/internal/post"
	"github.com/onda-social/onda/internal/viewer"
)

// explanationPrefix starts every rationale string rendered to the viewer.
const explanationPrefix = "Because: "

// Score computes the relevance score and rationale for an eligible post.
// It is never called on an ineligible post, never returns an error, and
// never mutates its inputs: every missing optional signal contributes 0 to
// its term. The candidate pool is part of the scoring contract so signals
// relative to the pool can be added without changing call sites; the
// current model does not consult it.
func (e *Engine) Score(p *post.Post, v *viewer.Viewer, cfg *Config, pool []*post.Post, authors viewer.AuthorLookup) (float64, string) {
	_ = pool

	w := e.weights
	var score float64
	var reasons []string

	// Following bonus.
	if v.Follows(p.AuthorID) {
		if bonus := w.followingBonus(cfg.FollowingWeight); bonus > 0 {
			score += bonus
			reasons = append(reasons, "you follow "+authorHandle(authors, p.AuthorID))
		}
	}

	// Interest match: count post tags that fuzzy-match any interest.
	if len(v.Interests) > 0 && len(p.SemanticTopics) > 0 {
		matches := 0
		for _, tag := range p.SemanticTopics {
			for _, interest := range v.Interests {
				if fuzzyMatch(tag, interest) {
					matches++
					break
				}
			}
		}
		if matches > 0 {
			score += w.InterestBase + math.Min(w.InterestCap, w.InterestPerMatch*float64(matches))
			reasons = append(reasons, fmt.Sprintf("matches %d of your interests", matches))
		}
	}

	// Audience-similarity boost. Applies regardless of reach mode: a
	// for-all post that happens to carry an audience vector still gets it.
	if p.TunedAudience != nil && len(p.TunedAudience.TargetAudienceEmbedding) > 0 && len(v.ProfileEmbedding) > 0 {
		sim := CosineSimilarity(p.TunedAudience.TargetAudienceEmbedding, v.ProfileEmbedding)
		boost := math.Min(w.AudienceSimilarityCap, math.Round(w.AudienceSimilarityCap*sim))
		score += boost
		if boost >= 1 {
			reasons = append(reasons, "you're in this post's target audience")
		}
	}

	// Liked-topic bonus.
	if matchesAnyTopic(p.Topic, p.SemanticTopics, cfg.LikedTopics) {
		score += w.LikedTopicBonus
		reasons = append(reasons, "topic you like")
	}

	// Muted-topic penalty. Eligibility normally excludes these already;
	// the penalty matters when the assembler relaxes the muted filter.
	if matchesAnyTopic(p.Topic, p.SemanticTopics, cfg.MutedTopics) {
		score -= w.MutedTopicPenalty
		reasons = append(reasons, "includes a topic you muted")
	}

	// Active-conversation boost.
	if cfg.BoostActiveConversations && p.CommentCount > 0 {
		score += math.Min(w.ConversationCap, w.ConversationPerLog*math.Log10(float64(p.CommentCount)+1))
		reasons = append(reasons, "active conversation")
	}

	// Recency term: linear decay, zero at RecencyMax/RecencyDecayPerHour
	// hours (30h with defaults). No reason string; recency alone is the
	// fallback explanation.
	hours := e.now().Sub(p.CreatedAt).Hours()
	score += math.Max(0, w.RecencyMax-w.RecencyDecayPerHour*hours)

	// Quality boost/penalty from the content-value pipeline.
	if p.ValueScore != nil {
		total := clamp01(p.ValueScore.Total)
		confidence := clamp01(p.ValueScore.Confidence)
		score += total * w.QualityMax * math.Max(w.QualityConfidenceFloor, confidence)
		if total >= w.HighValueThreshold {
			reasons = append(reasons, "high value content")
		} else if total < w.LowValueThreshold {
			score -= (w.LowValueThreshold - total) * w.LowValuePenaltyScale
			reasons = append(reasons, "low value content")
		}
	}

	// Moderation penalty for posts that leaked past the visibility filter.
	switch p.FactCheckStatus {
	case post.FactCheckBlocked:
		score -= w.BlockedPenalty
		reasons = append(reasons, "failed fact-check")
	case post.FactCheckNeedsReview:
		score -= w.NeedsReviewPenalty
		reasons = append(reasons, "fact-check pending")
	}

	if len(reasons) == 0 {
		return score, explanationPrefix + "recent post"
	}
	return score, explanationPrefix + strings.Join(reasons, ", ")
}

// authorHandle renders the author reference for rationale text. A missing
// directory hit degrades to a generic phrase, never an error.
func authorHandle(authors viewer.AuthorLookup, authorID string) string {
	if authors != nil {
		if a, ok := authors(authorID); ok && a != nil && a.Handle != "" {
			return "@" + a.Handle
		}
	}
	return "this author"
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
