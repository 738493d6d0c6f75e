package searcher

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vecstore/distance"
	"github.com/hupe1980/vecstore/resource"
	"github.com/hupe1980/vecstore/vectorstore"
)

// ErrInvalidK is returned when k is not positive.
var ErrInvalidK = errors.New("k must be positive")

// DefaultMinPartition is the smallest number of rows worth a goroutine.
const DefaultMinPartition = 2048

// ctxCheckInterval is how many rows a partition scores between context checks.
const ctxCheckInterval = 1024

// Options tunes a search.
type Options struct {
	// Parallelism caps the partitions of one query. Zero means GOMAXPROCS.
	Parallelism int
	// MinPartition is the minimum rows per partition. Zero means DefaultMinPartition.
	MinPartition int
	// Resources bounds worker goroutines across concurrent queries.
	Resources *resource.Controller
}

var heapPool = sync.Pool{New: func() any { return new(topK) }}

// Search scores every row in rows against query and returns the best k,
// best first. Rows with a zero norm, or a zero query, score 0.
func Search(ctx context.Context, col *vectorstore.Columnar, rows *roaring.Bitmap, query []float32, k int, opts Options) ([]Candidate, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidK, k)
	}
	if col == nil || rows == nil || rows.IsEmpty() {
		return []Candidate{}, nil
	}

	candidates := rows.ToArray()
	parts := partitions(len(candidates), opts)

	// Scoring against the unit query keeps each dot product within the row
	// norm, so large components cannot overflow it.
	var qnorm float32
	if unit, ok := distance.NormalizeL2Copy(query); ok {
		query, qnorm = unit, 1
	}

	if len(parts) == 1 {
		out, err := scorePartition(ctx, col, candidates, query, qnorm, k)
		if err != nil {
			return nil, err
		}
		slices.SortFunc(out, compare)
		return out, nil
	}

	partial := make([][]Candidate, len(parts))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range parts {
		g.Go(func() error {
			if err := opts.Resources.AcquireWorker(gctx); err != nil {
				return err
			}
			defer opts.Resources.ReleaseWorker()

			out, err := scorePartition(gctx, col, candidates[p[0]:p[1]], query, qnorm, k)
			partial[i] = out
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return merge(partial, k), nil
}

// partitions splits n rows into [start, end) ranges.
func partitions(n int, opts Options) [][2]int {
	par := opts.Parallelism
	if par <= 0 {
		par = runtime.GOMAXPROCS(0)
	}
	minPart := opts.MinPartition
	if minPart <= 0 {
		minPart = DefaultMinPartition
	}

	count := max(1, min(par, n/minPart))
	size := (n + count - 1) / count

	parts := make([][2]int, 0, count)
	for start := 0; start < n; start += size {
		parts = append(parts, [2]int{start, min(start+size, n)})
	}
	return parts
}

func scorePartition(ctx context.Context, col *vectorstore.Columnar, rows []uint32, query []float32, qnorm float32, k int) ([]Candidate, error) {
	h := heapPool.Get().(*topK)
	defer heapPool.Put(h)
	h.reset(min(k, len(rows)))

	for i, row := range rows {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		score := distance.CosineFromParts(col.Dot(row, query), col.Norm(row), qnorm)
		h.offer(Candidate{Row: row, Score: score})
	}
	return slices.Clone(h.items), nil
}

func compare(a, b Candidate) int {
	switch {
	case better(a, b):
		return -1
	case better(b, a):
		return 1
	default:
		return 0
	}
}

func merge(partial [][]Candidate, k int) []Candidate {
	var n int
	for _, p := range partial {
		n += len(p)
	}
	all := make([]Candidate, 0, n)
	for _, p := range partial {
		all = append(all, p...)
	}
	slices.SortFunc(all, compare)
	if len(all) > k {
		all = all[:k]
	}
	return all
}

// FilterRows returns the rows for which keep reports true. It is how
// arbitrary predicates run before scoring.
func FilterRows(rows *roaring.Bitmap, keep func(row uint32) bool) *roaring.Bitmap {
	out := roaring.New()
	it := rows.Iterator()
	for it.HasNext() {
		if row := it.Next(); keep(row) {
			out.Add(row)
		}
	}
	return out
}
