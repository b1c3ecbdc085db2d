// Package search provides vector similarity math shared by matching,
// merge/split detection, and the SQLite similarity fallback.
package search

import "math"

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns a value between -1 (opposite) and 1 (identical).
// Returns 0 if either vector has zero magnitude or the dimensions differ.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, magA, magB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}

	if magA == 0 || magB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(magA) * math.Sqrt(magB))
}

// Centroid computes the element-wise mean of the vectors.
// Returns nil if the input is empty. Vectors with mismatched dimensions
// are skipped.
func Centroid(vectors [][]float64) []float64 {
	if len(vectors) == 0 {
		return nil
	}

	dim := len(vectors[0])
	sum := make([]float64, dim)
	count := 0
	for _, v := range vectors {
		if len(v) != dim {
			continue
		}
		for i := range v {
			sum[i] += v[i]
		}
		count++
	}

	if count == 0 {
		return nil
	}
	for i := range sum {
		sum[i] /= float64(count)
	}
	return sum
}

// MeanPairSimilarity returns the average cosine similarity between the query
// vector and each of the given vectors. Returns 0 for an empty input.
func MeanPairSimilarity(query []float64, vectors [][]float64) float64 {
	if len(vectors) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vectors {
		sum += CosineSimilarity(query, v)
	}
	return sum / float64(len(vectors))
}
