// Package post provides the post data model and repositories used by the
// feed ranking engine and the content-signal ingest pipeline.
package post

import (
	"errors"
	"time"
)

// Common errors for post operations.
var (
	ErrPostNotFound = errors.New("post not found")
	ErrPostDeleted  = errors.New("post has been deleted")
)

// ReachMode controls which audience a post is open to.
type ReachMode string

const (
	// ReachForAll marks a post as open to every viewer.
	ReachForAll ReachMode = "for_all"

	// ReachTuned marks a post as targeted at a constrained audience
	// described by its TunedAudience.
	ReachTuned ReachMode = "tuned"
)

// FactCheckStatus is the moderation outcome attached by the external
// content-value pipeline. The empty string means the post has not been
// processed yet.
type FactCheckStatus string

const (
	// FactCheckClean marks content that passed fact-checking.
	FactCheckClean FactCheckStatus = "clean"

	// FactCheckNeedsReview marks content awaiting a human review pass.
	FactCheckNeedsReview FactCheckStatus = "needs_review"

	// FactCheckBlocked marks content that failed fact-checking and must
	// not be shown to anyone except its author.
	FactCheckBlocked FactCheckStatus = "blocked"
)

// ValidFactCheckStatus reports whether s is a recognized moderation verdict.
func ValidFactCheckStatus(s FactCheckStatus) bool {
	switch s {
	case FactCheckClean, FactCheckNeedsReview, FactCheckBlocked:
		return true
	}
	return false
}

// TunedAudience describes the constrained audience of a ReachTuned post.
// It combines explicit follow-relationship flags with an optional semantic
// target: an embedding of the audience the author wants to reach.
type TunedAudience struct {
	AllowFollowers    bool `json:"allow_followers"`
	AllowNonFollowers bool `json:"allow_non_followers"`

	// TargetAudienceEmbedding is produced by the external embedding
	// generator. It may be absent or of a different dimension than
	// viewer profile embeddings; consumers must degrade gracefully.
	TargetAudienceEmbedding []float64 `json:"target_audience_embedding,omitempty"`

	// TargetAudienceDescription is the free-text prompt the embedding
	// was generated from, kept for display and diagnostics.
	TargetAudienceDescription string `json:"target_audience_description,omitempty"`
}

// ValueScore is the quality estimate attached asynchronously by the
// content-value pipeline. Both fields are in [0, 1].
type ValueScore struct {
	Total      float64 `json:"total"`
	Confidence float64 `json:"confidence"`
}

// Post is a content post. The ranking engine treats posts as immutable
// snapshots; only repositories and the ingest pipeline mutate them.
type Post struct {
	ID       string `json:"id"`
	AuthorID string `json:"author_id"`
	Text     string `json:"text"`

	// Topic is the single primary category, optional.
	Topic string `json:"topic,omitempty"`

	// SemanticTopics are free-form tags; order is irrelevant.
	SemanticTopics []string `json:"semantic_topics,omitempty"`

	CommentCount int `json:"comment_count"`

	ReachMode     ReachMode      `json:"reach_mode"`
	TunedAudience *TunedAudience `json:"tuned_audience,omitempty"`

	// ValueScore and FactCheckStatus are populated after creation by the
	// content-value pipeline. Absence means "no quality signal yet".
	ValueScore      *ValueScore     `json:"value_score,omitempty"`
	FactCheckStatus FactCheckStatus `json:"fact_check_status,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Clone returns a deep copy of the post so callers can hand it out without
// exposing repository-internal state to mutation.
func (p *Post) Clone() *Post {
	if p == nil {
		return nil
	}
	cp := *p
	if p.SemanticTopics != nil {
		cp.SemanticTopics = append([]string(nil), p.SemanticTopics...)
	}
	if p.TunedAudience != nil {
		ta := *p.TunedAudience
		if p.TunedAudience.TargetAudienceEmbedding != nil {
			ta.TargetAudienceEmbedding = append([]float64(nil), p.TunedAudience.TargetAudienceEmbedding...)
		}
		cp.TunedAudience = &ta
	}
	if p.ValueScore != nil {
		vs := *p.ValueScore
		cp.ValueScore = &vs
	}
	if p.DeletedAt != nil {
		d := *p.DeletedAt
		cp.DeletedAt = &d
	}
	return &cp
}
