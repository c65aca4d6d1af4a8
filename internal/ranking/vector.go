package ranking

import "math"

// CosineSimilarity computes the cosine similarity of two embedding vectors.
// The embedding generator is an external collaborator that occasionally
// emits inconsistent output, so malformed input (nil, empty, mismatched
// dimensions, zero magnitude, NaN/Inf components) yields 0 rather than an
// error: a vector we cannot compare is simply "no match".
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0
	}
	return sim
}
