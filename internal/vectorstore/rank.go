package vectorstore

import (
	"context"
	"math"
	"sort"

	"docqa/internal/domain"
)

// Cosine returns the cosine similarity of a and b, or 0 if either is a zero vector.
func Cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// IsZero reports whether v has no non-zero component.
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Rank orders results by descending score, then ascending chunk ordinal,
// and truncates to k.
func Rank(results []domain.SearchResult, k int) []domain.SearchResult {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.Ordinal < results[j].Chunk.Ordinal
	})
	if k >= 0 && len(results) > k {
		results = results[:k]
	}
	return results
}

// tieMargin is how many results beyond k are fetched up front.
const tieMargin = 8

// Fetch returns the n best matches as the engine ranks them. Engines break
// ties arbitrarily.
type Fetch func(ctx context.Context, n int) ([]domain.SearchResult, error)

// TopK queries an engine that cuts its result list at n without regard to
// chunk ordinals. It widens n until every result tied with the k-th score is
// in hand, so Rank can keep the lowest ordinals. limit is the largest n the
// engine can serve, usually the number of indexed chunks.
func TopK(ctx context.Context, k, limit int, fetch Fetch) ([]domain.SearchResult, error) {
	if k <= 0 || limit <= 0 {
		return nil, nil
	}
	n := min(limit, k+tieMargin)
	for {
		res, err := fetch(ctx, n)
		if err != nil {
			return nil, err
		}
		ranked := Rank(res, -1)
		if n >= limit || len(ranked) < n || len(ranked) <= k ||
			ranked[k-1].Score > ranked[len(ranked)-1].Score {
			return Rank(ranked, k), nil
		}
		n = min(limit, 2*n)
	}
}
