package domain

import "sort"

// SparseVector is a mostly-zero term vector stored as parallel index/value slices.
// Indices are strictly ascending.
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// NewSparseVector builds a vector from a term map, sorting indices.
func NewSparseVector(weights map[uint32]float32) SparseVector {
	if len(weights) == 0 {
		return SparseVector{}
	}
	indices := make([]uint32, 0, len(weights))
	for idx := range weights {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	values := make([]float32, len(indices))
	for i, idx := range indices {
		values[i] = weights[idx]
	}
	return SparseVector{Indices: indices, Values: values}
}

// Len returns the number of non-zero terms.
func (v SparseVector) Len() int { return len(v.Indices) }

// IsEmpty reports whether the vector has no terms.
func (v SparseVector) IsEmpty() bool { return len(v.Indices) == 0 }

// Dot computes the inner product with another sorted sparse vector.
func (v SparseVector) Dot(o SparseVector) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(v.Indices) && j < len(o.Indices) {
		switch {
		case v.Indices[i] == o.Indices[j]:
			sum += float64(v.Values[i]) * float64(o.Values[j])
			i++
			j++
		case v.Indices[i] < o.Indices[j]:
			i++
		default:
			j++
		}
	}
	return sum
}
