package ranking

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// Weights holds the scoring policy constants. The defaults are load-bearing
// product policy: they were tuned against live engagement and must not be
// re-derived. Deploy-time overrides go through LoadCalibration instead.
type Weights struct {
	// Fixed bonus added when the viewer follows the author, keyed by the
	// config's FollowingWeight.
	FollowingLight  float64 `json:"following_light"`
	FollowingMedium float64 `json:"following_medium"`
	FollowingHeavy  float64 `json:"following_heavy"`

	// Interest match: InterestBase + min(InterestCap, InterestPerMatch x n)
	// when n post tags fuzzy-match the viewer's interests.
	InterestBase     float64 `json:"interest_base"`
	InterestPerMatch float64 `json:"interest_per_match"`
	InterestCap      float64 `json:"interest_cap"`

	// Audience similarity boost ceiling: min(cap, round(cap x cosine)).
	AudienceSimilarityCap float64 `json:"audience_similarity_cap"`

	// Topic preference adjustments.
	LikedTopicBonus   float64 `json:"liked_topic_bonus"`
	MutedTopicPenalty float64 `json:"muted_topic_penalty"`

	// Active conversation: min(cap, perLog x log10(comments + 1)).
	ConversationCap    float64 `json:"conversation_cap"`
	ConversationPerLog float64 `json:"conversation_per_log"`

	// Recency: max(0, RecencyMax - RecencyDecayPerHour x age). With the
	// defaults the term reaches zero at 30 hours.
	RecencyMax          float64 `json:"recency_max"`
	RecencyDecayPerHour float64 `json:"recency_decay_per_hour"`

	// Quality: total x QualityMax x max(QualityConfidenceFloor, confidence),
	// plus a low-value penalty of (LowValueThreshold - total) x LowValuePenaltyScale
	// below the threshold.
	QualityMax             float64 `json:"quality_max"`
	QualityConfidenceFloor float64 `json:"quality_confidence_floor"`
	HighValueThreshold     float64 `json:"high_value_threshold"`
	LowValueThreshold      float64 `json:"low_value_threshold"`
	LowValuePenaltyScale   float64 `json:"low_value_penalty_scale"`

	// Moderation penalties.
	BlockedPenalty     float64 `json:"blocked_penalty"`
	NeedsReviewPenalty float64 `json:"needs_review_penalty"`
}

// CalibrationConfig represents the JSON structure of the calibration file.
type CalibrationConfig struct {
	Version string  `json:"version"` // Config version for future compatibility
	Weights Weights `json:"weights"` // Weight overrides
}

// DefaultWeights returns the production scoring constants.
func DefaultWeights() *Weights {
	return &Weights{
		FollowingLight:  10,
		FollowingMedium: 30,
		FollowingHeavy:  50,

		InterestBase:     30,
		InterestPerMatch: 5,
		InterestCap:      25,

		AudienceSimilarityCap: 35,

		LikedTopicBonus:   25,
		MutedTopicPenalty: 100,

		ConversationCap:    20,
		ConversationPerLog: 5,

		RecencyMax:          15,
		RecencyDecayPerHour: 0.5,

		QualityMax:             40,
		QualityConfidenceFloor: 0.5,
		HighValueThreshold:     0.7,
		LowValueThreshold:      0.35,
		LowValuePenaltyScale:   30,

		BlockedPenalty:     50,
		NeedsReviewPenalty: 20,
	}
}

// followingBonus resolves the fixed follow bonus for a following weight.
func (w *Weights) followingBonus(fw FollowingWeight) float64 {
	switch fw {
	case FollowingLight:
		return w.FollowingLight
	case FollowingMedium:
		return w.FollowingMedium
	case FollowingHeavy:
		return w.FollowingHeavy
	default:
		return 0
	}
}

// LoadCalibration loads scoring weights from a JSON calibration file.
// If the file doesn't exist or can't be parsed, returns default weights
// with an error so callers can log and continue.
// Partial configurations are merged with defaults for graceful degradation.
func LoadCalibration(filePath string) (*Weights, error) {
	if filePath == "" {
		return DefaultWeights(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		slog.Warn("failed to read calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to read calibration file: %w", err)
	}

	var config CalibrationConfig
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Warn("failed to parse calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to parse calibration file: %w", err)
	}

	defaults := DefaultWeights()
	merged := MergeCalibration(defaults, &config.Weights)
	logCalibrationOverrides(defaults, merged)

	return merged, nil
}

// MergeCalibration merges override weights with base weights. Only non-zero
// values from the override are applied, which allows partial overrides in
// the calibration file.
func MergeCalibration(base *Weights, override *Weights) *Weights {
	if base == nil {
		base = DefaultWeights()
	}
	result := *base
	if override == nil {
		return &result
	}

	for _, f := range weightFields(&result, override) {
		if *f.override != 0 {
			*f.target = *f.override
		}
	}
	return &result
}

// weightField pairs a named weight slot across two Weights values.
type weightField struct {
	name     string
	target   *float64
	override *float64
}

func weightFields(a, b *Weights) []weightField {
	return []weightField{
		{"following_light", &a.FollowingLight, &b.FollowingLight},
		{"following_medium", &a.FollowingMedium, &b.FollowingMedium},
		{"following_heavy", &a.FollowingHeavy, &b.FollowingHeavy},
		{"interest_base", &a.InterestBase, &b.InterestBase},
		{"interest_per_match", &a.InterestPerMatch, &b.InterestPerMatch},
		{"interest_cap", &a.InterestCap, &b.InterestCap},
		{"audience_similarity_cap", &a.AudienceSimilarityCap, &b.AudienceSimilarityCap},
		{"liked_topic_bonus", &a.LikedTopicBonus, &b.LikedTopicBonus},
		{"muted_topic_penalty", &a.MutedTopicPenalty, &b.MutedTopicPenalty},
		{"conversation_cap", &a.ConversationCap, &b.ConversationCap},
		{"conversation_per_log", &a.ConversationPerLog, &b.ConversationPerLog},
		{"recency_max", &a.RecencyMax, &b.RecencyMax},
		{"recency_decay_per_hour", &a.RecencyDecayPerHour, &b.RecencyDecayPerHour},
		{"quality_max", &a.QualityMax, &b.QualityMax},
		{"quality_confidence_floor", &a.QualityConfidenceFloor, &b.QualityConfidenceFloor},
		{"high_value_threshold", &a.HighValueThreshold, &b.HighValueThreshold},
		{"low_value_threshold", &a.LowValueThreshold, &b.LowValueThreshold},
		{"low_value_penalty_scale", &a.LowValuePenaltyScale, &b.LowValuePenaltyScale},
		{"blocked_penalty", &a.BlockedPenalty, &b.BlockedPenalty},
		{"needs_review_penalty", &a.NeedsReviewPenalty, &b.NeedsReviewPenalty},
	}
}

// logCalibrationOverrides logs which weights were overridden from defaults.
func logCalibrationOverrides(defaults *Weights, loaded *Weights) {
	var overrides []string
	for _, f := range weightFields(defaults, loaded) {
		if *f.target != *f.override {
			overrides = append(overrides, fmt.Sprintf("%s: %.2f -> %.2f", f.name, *f.target, *f.override))
		}
	}

	if len(overrides) > 0 {
		slog.Info("loaded ranking calibration with overrides",
			"overrides", overrides)
	} else {
		slog.Info("loaded ranking calibration (using all defaults)")
	}
}
