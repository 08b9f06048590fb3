package chunker

import (
	"fmt"
	"math"
)

// Dot returns the dot product of two equal-length vectors
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Norm returns the Euclidean length of v
func Norm(v []float32) float64 {
	return math.Sqrt(Dot(v, v))
}

// CosineSimilarity returns dot(a,b) / (||a|| * ||b||).
// Vectors of different length and zero vectors yield an error.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: dimension mismatch %d != %d", ErrInvalidInput, len(a), len(b))
	}
	na, nb := Norm(a), Norm(b)
	if na == 0 || nb == 0 {
		return 0, fmt.Errorf("%w: zero-norm vector", ErrDegenerateEmbedding)
	}
	return Dot(a, b) / (na * nb), nil
}

// checkVectors rejects empty, ragged and non-finite embeddings up front
func checkVectors(embeddings [][]float32) error {
	dim := len(embeddings[0])
	for i, v := range embeddings {
		if len(v) == 0 {
			return invalidInput(i, "empty embedding")
		}
		if len(v) != dim {
			return invalidInput(i, fmt.Sprintf("embedding has dimension %d, expected %d", len(v), dim))
		}
		for _, x := range v {
			f := float64(x)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return invalidInput(i, "embedding contains a non-finite value")
			}
		}
	}
	return nil
}
