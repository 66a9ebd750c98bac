package vector

import "math"

// Dot returns the sum of products over tokens present in both vectors.
func Dot(a, b SparseVector) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	var dot float64
	for term, w := range a {
		if x, ok := b[term]; ok {
			dot += w * x
		}
	}
	return dot
}

// CosineSimilarity returns the normalized dot product of a and b in [0, 1].
// A zero vector on either side scores 0.
func CosineSimilarity(a, b SparseVector) float64 {
	magA := a.Norm()
	magB := b.Norm()
	if magA == 0 || magB == 0 {
		return 0
	}
	sim := Dot(a, b) / (magA * magB)
	// Rounding can push identical vectors a hair past 1.
	return math.Max(0, math.Min(1, sim))
}
