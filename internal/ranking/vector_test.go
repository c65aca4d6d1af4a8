package ranking

import (
	"math"
	"testing"
)

// TestCosineSimilarity tests cosine similarity across well-formed and
// malformed vector pairs.
func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a        []float64
		b        []float64
		expected float64
	}{
		{
			name:     "identical vectors",
			a:        []float64{1, 2, 3},
			b:        []float64{1, 2, 3},
			expected: 1.0,
		},
		{
			name:     "orthogonal vectors",
			a:        []float64{1, 0},
			b:        []float64{0, 1},
			expected: 0.0,
		},
		{
			name:     "opposite vectors",
			a:        []float64{1, 0},
			b:        []float64{-1, 0},
			expected: -1.0,
		},
		{
			name:     "scaled vectors keep similarity",
			a:        []float64{1, 2},
			b:        []float64{10, 20},
			expected: 1.0,
		},
		{
			name:     "nil first vector",
			a:        nil,
			b:        []float64{1, 2},
			expected: 0.0,
		},
		{
			name:     "nil second vector",
			a:        []float64{1, 2},
			b:        nil,
			expected: 0.0,
		},
		{
			name:     "dimension mismatch",
			a:        []float64{1, 2, 3},
			b:        []float64{1, 2},
			expected: 0.0,
		},
		{
			name:     "zero magnitude",
			a:        []float64{0, 0},
			b:        []float64{1, 2},
			expected: 0.0,
		},
		{
			name:     "empty vectors",
			a:        []float64{},
			b:        []float64{},
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CosineSimilarity(tt.a, tt.b)
			if math.Abs(result-tt.expected) > 0.0001 {
				t.Errorf("expected %f, got %f", tt.expected, result)
			}
		})
	}
}

// TestCosineSimilarity_KnownAngle verifies a non-trivial similarity value.
func TestCosineSimilarity_KnownAngle(t *testing.T) {
	// Unit vector at 0.85 cosine from (1, 0).
	a := []float64{1, 0}
	b := []float64{0.85, math.Sqrt(1 - 0.85*0.85)}

	result := CosineSimilarity(a, b)
	if math.Abs(result-0.85) > 0.0001 {
		t.Errorf("expected 0.85, got %f", result)
	}
}

// TestCosineSimilarity_NonFinite verifies that NaN components degrade to 0.
func TestCosineSimilarity_NonFinite(t *testing.T) {
	a := []float64{math.NaN(), 1}
	b := []float64{1, 1}

	if result := CosineSimilarity(a, b); result != 0 {
		t.Errorf("expected 0 for NaN input, got %f", result)
	}
}
