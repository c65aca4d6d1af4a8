package ranking

import (
	"math"
	"sort"
	"time"

	"github.com/onda-social/onda/internal/post"
	"github.com/onda-social/onda/internal/viewer"
)

// windowOffsets are the day offsets added to the base window during
// progressive relaxation, before the forced final attempt at the maximum.
var windowOffsets = [...]int{0, 3, 7, 14, 21, 28}

// Diversity cap policy: within the first diversityHeadSlots accepted items
// an author may contribute at most diversityHeadCap posts; after the head
// is filled the per-author ceiling loosens to diversityTotalCap overall.
const (
	diversityHeadSlots = 20
	diversityHeadCap   = 3
	diversityTotalCap  = 5
)

// fallbackExplanation is the rationale attached to unranked recency
// fallback items.
const fallbackExplanation = "Recent post (fallback)"

// ScoredPost is one ranked feed entry. The Explanation is rendered verbatim
// to the viewer as "why am I seeing this" text.
type ScoredPost struct {
	Post        *post.Post `json:"post"`
	Score       float64    `json:"score"`
	Explanation string     `json:"explanation"`
}

// GenerateFeed assembles a ranked feed from the candidate pool. It tries
// increasingly wide time windows — first with muted topics excluded, then
// with the exclusion relaxed — and returns the first non-empty ranked
// result. If every window and relaxation attempt yields nothing, it falls
// back to an unranked recency list. It never returns an error: an empty
// pool produces an empty list.
//
// A limit <= 0 means DefaultFeedLimit.
func (e *Engine) GenerateFeed(pool []*post.Post, v *viewer.Viewer, cfg *Config, authors viewer.AuthorLookup, limit int) []ScoredPost {
	start := e.now()
	if limit <= 0 {
		limit = DefaultFeedLimit
	}
	if v == nil {
		v = &viewer.Viewer{}
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	e.metrics.observePoolSize(len(pool))

	// Self-exclusion happens once, up front.
	candidates := make([]*post.Post, 0, len(pool))
	for _, p := range pool {
		if p == nil || p.AuthorID == v.ID {
			continue
		}
		candidates = append(candidates, p)
	}

	now := e.now()
	for _, days := range e.windowSchedule(cfg) {
		cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)

		for _, relaxed := range [2]bool{false, true} {
			e.metrics.incWindowAttempts()
			if relaxed {
				e.metrics.incRelaxedPasses()
			}

			eligible := e.eligibleWithin(candidates, v, cfg, cutoff, relaxed)
			if len(eligible) == 0 {
				continue
			}

			scored := make([]ScoredPost, len(eligible))
			for i, p := range eligible {
				score, explanation := e.Score(p, v, cfg, candidates, authors)
				scored[i] = ScoredPost{Post: p, Score: score, Explanation: explanation}
			}
			sortRanked(scored)
			feed := capByAuthor(scored, limit)

			e.metrics.observeGeneration(e.now().Sub(start), false)
			return feed
		}
	}

	// Exhaustion: nothing qualified anywhere. Serve recency, unranked.
	fallback := make([]ScoredPost, len(candidates))
	for i, p := range candidates {
		fallback[i] = ScoredPost{Post: p, Explanation: fallbackExplanation}
	}
	sort.SliceStable(fallback, func(i, j int) bool {
		return fallback[i].Post.CreatedAt.After(fallback[j].Post.CreatedAt)
	})
	feed := capByAuthor(fallback, limit)

	e.metrics.observeGeneration(e.now().Sub(start), true)
	return feed
}

// windowSchedule builds the ordered sequence of window sizes in days:
// the clamped base window plus each offset (clamped to the maximum,
// deduplicated), with a forced final attempt at the maximum.
func (e *Engine) windowSchedule(cfg *Config) []int {
	base := cfg.windowDays()
	seen := make(map[int]bool, len(windowOffsets)+1)
	schedule := make([]int, 0, len(windowOffsets)+1)
	for _, offset := range windowOffsets {
		days := base + offset
		if days > MaxWindowDays {
			days = MaxWindowDays
		}
		if !seen[days] {
			seen[days] = true
			schedule = append(schedule, days)
		}
	}
	if !seen[MaxWindowDays] {
		schedule = append(schedule, MaxWindowDays)
	}
	return schedule
}

// eligibleWithin filters candidates to posts inside the window that pass
// the eligibility rules.
func (e *Engine) eligibleWithin(candidates []*post.Post, v *viewer.Viewer, cfg *Config, cutoff time.Time, relaxed bool) []*post.Post {
	opts := EligibilityOptions{IgnoreMuted: relaxed}
	var out []*post.Post
	for _, p := range candidates {
		if !p.CreatedAt.After(cutoff) {
			continue
		}
		if e.IsEligible(p, v, cfg, opts) {
			out = append(out, p)
		}
	}
	return out
}

// sortRanked orders scored posts by score descending, except that posts
// whose scores differ by less than max(2, 5% of the larger magnitude) are
// near-ties and order by recency descending instead. Without the tie-break,
// near-equal scores would produce an ordering that looks arbitrary to the
// viewer.
func sortRanked(scored []ScoredPost) {
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		diff := math.Abs(a.Score - b.Score)
		maxScore := math.Max(math.Abs(a.Score), math.Abs(b.Score))
		threshold := math.Max(2, 0.05*maxScore)
		if diff < threshold {
			return a.Post.CreatedAt.After(b.Post.CreatedAt)
		}
		return a.Score > b.Score
	})
}

// capByAuthor walks the sorted sequence enforcing the tiered per-author
// diversity cap, stopping at limit accepted items. The tighter head cap
// bounds timeline domination by a single prolific author; the looser total
// cap avoids starving very active legitimate contributors once the head of
// the feed is already diverse.
func capByAuthor(sorted []ScoredPost, limit int) []ScoredPost {
	out := make([]ScoredPost, 0, min(limit, len(sorted)))
	counts := make(map[string]int)
	for _, sp := range sorted {
		if len(out) >= limit {
			break
		}
		authorCap := diversityHeadCap
		if len(out) >= diversityHeadSlots {
			authorCap = diversityTotalCap
		}
		if counts[sp.Post.AuthorID] >= authorCap {
			continue
		}
		counts[sp.Post.AuthorID]++
		out = append(out, sp)
	}
	return out
}
