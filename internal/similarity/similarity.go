// Package similarity provides the pure vector-math primitives used by the
// retrieval pipeline: cosine similarity for single dense vectors and the
// late-interaction MaxSim score for multi-vector (token-level) embeddings.
// All functions are pure and safe for concurrent use.
package similarity

import "math"

// Cosine returns the cosine similarity between u and v.
// It returns 0.0 if either vector has zero norm, so callers never divide
// by zero. Vectors of unequal length are compared over the shorter prefix.
func Cosine(u, v []float32) float64 {
	n := len(u)
	if len(v) < n {
		n = len(v)
	}

	var dot, normU, normV float64
	for i := 0; i < n; i++ {
		dot += float64(u[i]) * float64(v[i])
		normU += float64(u[i]) * float64(u[i])
		normV += float64(v[i]) * float64(v[i])
	}
	for i := n; i < len(u); i++ {
		normU += float64(u[i]) * float64(u[i])
	}
	for i := n; i < len(v); i++ {
		normV += float64(v[i]) * float64(v[i])
	}

	if normU == 0 || normV == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normU) * math.Sqrt(normV))
}

// MaxSim computes the late-interaction score between a query multi-vector
// and a chunk multi-vector: every vector is normalized to unit length, the
// full pairwise similarity matrix is evaluated, and for each query token the
// maximum similarity across all chunk tokens is summed.
//
// The score is asymmetric and non-normalized — its magnitude grows with the
// number of query tokens, so values are only comparable across candidates
// scored against the same query. Returns 0.0 if either sequence is empty.
func MaxSim(query, chunk [][]float32) float64 {
	if len(query) == 0 || len(chunk) == 0 {
		return 0.0
	}

	queryNorm := normalize(query)
	chunkNorm := normalize(chunk)

	var total float64
	for _, q := range queryNorm {
		best := math.Inf(-1)
		for _, c := range chunkNorm {
			if sim := dot(q, c); sim > best {
				best = sim
			}
		}
		total += best
	}
	return total
}

// normalize returns unit-length copies of the input vectors.
// Zero-norm vectors are left as zero vectors (their dot products are 0).
func normalize(vectors [][]float32) [][]float64 {
	out := make([][]float64, len(vectors))
	for i, vec := range vectors {
		var norm float64
		for _, x := range vec {
			norm += float64(x) * float64(x)
		}
		norm = math.Sqrt(norm)

		unit := make([]float64, len(vec))
		if norm > 0 {
			for j, x := range vec {
				unit[j] = float64(x) / norm
			}
		}
		out[i] = unit
	}
	return out
}

// dot returns the dot product over the shorter of the two vectors.
func dot(u, v []float64) float64 {
	n := len(u)
	if len(v) < n {
		n = len(v)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += u[i] * v[i]
	}
	return sum
}
