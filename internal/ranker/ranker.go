// Package ranker scores candidate vectors against a query by cosine
// similarity and returns the best K.
package ranker

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

const DefaultTopK = 3

var (
	ErrZeroVector        = errors.New("zero-magnitude vector")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Candidate is an item to rank. Norm may be precomputed; zero means it is
// computed from Vector.
type Candidate[T any] struct {
	Item   T
	Vector []float64
	Norm   float64
}

type Scored[T any] struct {
	Item  T
	Score float64
}

// Norm returns the Euclidean length of v.
func Norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Cosine returns the cosine similarity of a and b, or NaN when either is a
// zero vector or their lengths differ.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return math.NaN()
	}
	return cosine(a, b, Norm(a), Norm(b))
}

func cosine(a, b []float64, na, nb float64) float64 {
	if na == 0 || nb == 0 {
		return math.NaN()
	}
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot / (na * nb)
}

// Rank scores every candidate against query and returns the top k in
// descending order. Exact ties keep input order.
func Rank[T any](query []float64, cands []Candidate[T], k int) ([]Scored[T], error) {
	if k <= 0 {
		k = DefaultTopK
	}

	qn := Norm(query)
	if qn == 0 {
		return nil, fmt.Errorf("query: %w", ErrZeroVector)
	}

	scored := make([]Scored[T], 0, len(cands))
	for i, c := range cands {
		if len(c.Vector) != len(query) {
			return nil, fmt.Errorf("candidate %d has %d dimensions, query has %d: %w",
				i, len(c.Vector), len(query), ErrDimensionMismatch)
		}
		n := c.Norm
		if n == 0 {
			n = Norm(c.Vector)
		}
		if n == 0 {
			return nil, fmt.Errorf("candidate %d: %w", i, ErrZeroVector)
		}
		scored = append(scored, Scored[T]{Item: c.Item, Score: cosine(query, c.Vector, qn, n)})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}
