// Package distance provides the dissimilarity functions used to rank
// vectors.
//
// All metrics follow the "smaller is closer" convention:
//
//   - Euclidean: L2 norm of the difference
//   - Cosine: 1 - cosine similarity (zero vectors are maximally distant)
//   - DotProduct: negated dot product
//
// Functions are pure and safe for concurrent use.
package distance
