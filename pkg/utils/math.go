package utils

import "math"

// NormalizeL2 scales v in place to unit length and returns its original norm.
// A zero vector is left as-is.
func NormalizeL2(v []float32) float64 {
	var sq float64
	for _, x := range v {
		sq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sq)
	if norm == 0 {
		return 0
	}
	inv := float32(1 / norm)
	for i := range v {
		v[i] *= inv
	}
	return norm
}

// IsZero reports whether v has no non-zero component. Empty vectors count as zero.
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
