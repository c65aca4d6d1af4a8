package ranking

import (
	"errors"
	"fmt"
)

// FollowingWeight expresses how strongly follow relationships should count
// in scoring.
type FollowingWeight string

// Valid following weights.
const (
	FollowingNone   FollowingWeight = "none"
	FollowingLight  FollowingWeight = "light"
	FollowingMedium FollowingWeight = "medium"
	FollowingHeavy  FollowingWeight = "heavy"
)

// Window and threshold bounds.
const (
	MinWindowDays = 1
	MaxWindowDays = 30

	// DefaultSimilarityThreshold is the cosine-similarity cutoff for
	// tuned-audience eligibility when the config leaves it unset.
	DefaultSimilarityThreshold = 0.7

	// DefaultFeedLimit caps the feed length when the caller passes no
	// explicit limit.
	DefaultFeedLimit = 50
)

// Configuration validation errors.
var (
	ErrInvalidFollowingWeight = errors.New("following weight must be one of none, light, medium, heavy")
	ErrInvalidThreshold       = errors.New("semantic similarity threshold must be in [0, 1]")
)

// Config is the mutable personalization configuration supplied by the
// caller on every ranking call. The engine treats it as a read-only
// snapshot for the duration of one call.
type Config struct {
	FollowingWeight          FollowingWeight `json:"following_weight"`
	BoostActiveConversations bool            `json:"boost_active_conversations"`

	LikedTopics []string `json:"liked_topics,omitempty"`
	MutedTopics []string `json:"muted_topics,omitempty"`

	// TimeWindowDays is the base recency window; it is clamped to
	// [MinWindowDays, MaxWindowDays] at use.
	TimeWindowDays int `json:"time_window_days"`

	// SemanticSimilarityThreshold gates tuned-audience embedding
	// eligibility. Zero means DefaultSimilarityThreshold.
	SemanticSimilarityThreshold float64 `json:"semantic_similarity_threshold,omitempty"`
}

// DefaultConfig returns the personalization defaults applied to viewers
// who have never adjusted their feed settings.
func DefaultConfig() *Config {
	return &Config{
		FollowingWeight:             FollowingMedium,
		BoostActiveConversations:    true,
		TimeWindowDays:              7,
		SemanticSimilarityThreshold: DefaultSimilarityThreshold,
	}
}

// Validate checks the config's enumerations and ranges. It is used at the
// API boundary; the engine itself clamps instead of rejecting.
func (c *Config) Validate() error {
	switch c.FollowingWeight {
	case FollowingNone, FollowingLight, FollowingMedium, FollowingHeavy, "":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFollowingWeight, c.FollowingWeight)
	}
	if c.SemanticSimilarityThreshold < 0 || c.SemanticSimilarityThreshold > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, c.SemanticSimilarityThreshold)
	}
	return nil
}

// windowDays returns the base time window clamped to [1, 30] days.
func (c *Config) windowDays() int {
	d := c.TimeWindowDays
	if d < MinWindowDays {
		return MinWindowDays
	}
	if d > MaxWindowDays {
		return MaxWindowDays
	}
	return d
}

// similarityThreshold returns the configured threshold, defaulting when unset.
func (c *Config) similarityThreshold() float64 {
	if c.SemanticSimilarityThreshold == 0 {
		return DefaultSimilarityThreshold
	}
	return c.SemanticSimilarityThreshold
}
