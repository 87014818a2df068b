package lib

import (
	"math"
	"testing"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		name       string
		x, lo, hi  float64
		want       float64
	}{
		{"inside range", 5, 0, 10, 5},
		{"below range", -2, 0, 10, 0},
		{"above range", 12.5, 0, 10, 10},
		{"at lower bound", 0, 0, 10, 0},
		{"at upper bound", 10, 0, 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clamp(tt.x, tt.lo, tt.hi); got != tt.want {
				t.Errorf("Clamp(%v, %v, %v) = %v, want %v", tt.x, tt.lo, tt.hi, got, tt.want)
			}
		})
	}
}

func TestRoundTo(t *testing.T) {
	tests := []struct {
		name     string
		x        float64
		decimals int
		want     float64
	}{
		{"two decimals", 2250.0533, 2, 2250.05},
		{"rounds up", 0.005, 2, 0.01},
		{"zero decimals", 7.5, 0, 8},
		{"already exact", 3.25, 2, 3.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RoundTo(tt.x, tt.decimals); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("RoundTo(%v, %d) = %v, want %v", tt.x, tt.decimals, got, tt.want)
			}
		})
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical vectors", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite vectors", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal vectors", []float32{1, 0}, []float32{0, 1}, 0},
		{"dimension mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 2}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CosineSimilarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("CosineSimilarity(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
