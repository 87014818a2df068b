package lib

import "math"

// Clamp bounds x to the inclusive [lo, hi] range.
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// RoundTo rounds x to the given number of decimal places.
//
// Example:
//
//	RoundTo(2250.0533, 2)
//	=> 2250.05
func RoundTo(x float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(x*pow) / pow
}

// CosineSimilarity computes the cosine of the angle between two vectors,
// in [-1, 1]. Returns 0 when either vector has zero magnitude or the
// dimensions differ; callers that need dimension errors must check
// lengths themselves.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
