package vectorspace

import "math"

// Vector is a sparse term-weight vector. Indices are strictly increasing
// vocabulary indices and Weights[i] belongs to Indices[i].
type Vector struct {
	Indices []int
	Weights []float64
	norm    float64
}

// Norm returns the cached L2 norm of the vector.
func (v Vector) Norm() float64 {
	return v.norm
}

// Len returns the number of non-zero components.
func (v Vector) Len() int {
	return len(v.Indices)
}

// IsZero reports whether the vector has no weight at all.
func (v Vector) IsZero() bool {
	return v.norm == 0
}

func newVector(indices []int, weights []float64) Vector {
	var sum float64
	for _, w := range weights {
		sum += w * w
	}
	return Vector{Indices: indices, Weights: weights, norm: math.Sqrt(sum)}
}

// Dot computes the inner product of two vectors by merging their sorted
// index lists.
func Dot(a, b Vector) float64 {
	var (
		sum  float64
		i, j int
	)
	for i < len(a.Indices) && j < len(b.Indices) {
		switch {
		case a.Indices[i] == b.Indices[j]:
			sum += a.Weights[i] * b.Weights[j]
			i++
			j++
		case a.Indices[i] < b.Indices[j]:
			i++
		default:
			j++
		}
	}
	return sum
}

// Cosine returns dot(a, b) / (|a| * |b|), or 0 when either vector is zero.
// With non-negative weights the result lies in [0, 1].
func Cosine(a, b Vector) float64 {
	if a.norm == 0 || b.norm == 0 {
		return 0
	}
	c := Dot(a, b) / (a.norm * b.norm)
	if c > 1 {
		return 1
	}
	return c
}
