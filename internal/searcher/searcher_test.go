package searcher

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecstore/distance"
	"github.com/hupe1980/vecstore/resource"
	"github.com/hupe1980/vecstore/vectorstore"
)

func column(t *testing.T, vecs ...[]float32) (*vectorstore.Columnar, *roaring.Bitmap) {
	t.Helper()
	col := vectorstore.New(len(vecs[0]))
	rows := roaring.New()
	for _, v := range vecs {
		row, err := col.Append(v)
		require.NoError(t, err)
		rows.Add(row)
	}
	return col, rows
}

func TestSearchRanksByCosine(t *testing.T) {
	a, _ := distance.NormalizeL2Copy([]float32{1, 0, 0, 0})
	b, _ := distance.NormalizeL2Copy([]float32{0, 1, 0, 0})
	c, _ := distance.NormalizeL2Copy([]float32{0.7, 0.7, 0, 0})
	col, rows := column(t, a, b, c)

	got, err := Search(context.Background(), col, rows, []float32{0, 1, 0, 0}, 2, Options{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint32(1), got[0].Row)
	assert.InDelta(t, 1.0, got[0].Score, 1e-6)
	assert.Equal(t, uint32(2), got[1].Row)
	assert.InDelta(t, 0.7071, got[1].Score, 1e-3)
}

func TestSearchEdgeCases(t *testing.T) {
	ctx := context.Background()
	col, rows := column(t, []float32{1, 0}, []float32{0, 0}, []float32{-1, 0})

	_, err := Search(ctx, col, rows, []float32{1, 0}, 0, Options{})
	assert.ErrorIs(t, err, ErrInvalidK)

	got, err := Search(ctx, nil, nil, []float32{1}, 5, Options{})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)

	got, err = Search(ctx, col, roaring.New(), []float32{1, 0}, 5, Options{})
	require.NoError(t, err)
	assert.Empty(t, got)

	// k larger than the candidates returns all of them; the zero row scores 0.
	got, err = Search(ctx, col, rows, []float32{1, 0}, 10, Options{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []uint32{0, 1, 2}, []uint32{got[0].Row, got[1].Row, got[2].Row})
	assert.Equal(t, float32(0), got[1].Score)
	assert.InDelta(t, -1, got[2].Score, 1e-6)

	// A zero query scores everything 0 and falls back to insertion order.
	got, err = Search(ctx, col, rows, []float32{0, 0}, 2, Options{})
	require.NoError(t, err)
	assert.Equal(t, []Candidate{{Row: 0}, {Row: 1}}, got)
}

func TestTiesBreakByRow(t *testing.T) {
	vecs := make([][]float32, 50)
	for i := range vecs {
		vecs[i] = []float32{1, 1}
	}
	col, rows := column(t, vecs...)

	for _, par := range []int{1, 3, 7} {
		got, err := Search(context.Background(), col, rows, []float32{2, 2}, 10, Options{Parallelism: par, MinPartition: 4})
		require.NoError(t, err)
		require.Len(t, got, 10)
		for i, c := range got {
			assert.Equal(t, uint32(i), c.Row, "parallelism %d", par)
		}
	}
}

func TestParallelMatchesSequential(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	vecs := make([][]float32, 3000)
	for i := range vecs {
		v := make([]float32, 16)
		for j := range v {
			v[j] = rng.Float32()*2 - 1
		}
		vecs[i] = v
	}
	col, rows := column(t, vecs...)
	rows.Remove(17)
	rows.Remove(2500)

	q := vecs[42]
	seq, err := Search(context.Background(), col, rows, q, 25, Options{Parallelism: 1})
	require.NoError(t, err)

	rc := resource.NewController(resource.Config{MaxSearchWorkers: 2})
	par, err := Search(context.Background(), col, rows, q, 25, Options{Parallelism: 8, MinPartition: 100, Resources: rc})
	require.NoError(t, err)

	assert.Equal(t, seq, par)
	assert.Equal(t, uint32(42), seq[0].Row)
	for i := 1; i < len(seq); i++ {
		assert.GreaterOrEqual(t, seq[i-1].Score, seq[i].Score)
	}
	for _, c := range seq {
		assert.NotEqual(t, uint32(17), c.Row)
		assert.LessOrEqual(t, c.Score, float32(1))
		assert.GreaterOrEqual(t, c.Score, float32(-1))
	}
}

func TestSearchCanceled(t *testing.T) {
	col, rows := column(t, []float32{1}, []float32{2})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Search(ctx, col, rows, []float32{1}, 1, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPartitions(t *testing.T) {
	assert.Equal(t, [][2]int{{0, 10}}, partitions(10, Options{Parallelism: 4}))
	assert.Equal(t, [][2]int{{0, 4}, {4, 8}, {8, 10}}, partitions(10, Options{Parallelism: 4, MinPartition: 3}))
	assert.Equal(t, [][2]int{{0, 5}, {5, 10}}, partitions(10, Options{Parallelism: 2, MinPartition: 1}))
}

func TestFilterRows(t *testing.T) {
	rows := roaring.BitmapOf(0, 1, 2, 3, 4)
	got := FilterRows(rows, func(row uint32) bool { return row%2 == 0 })
	assert.Equal(t, []uint32{0, 2, 4}, got.ToArray())
	assert.Equal(t, uint64(5), rows.GetCardinality())
}

func TestTopKKeepsBest(t *testing.T) {
	var h topK
	h.reset(3)
	for i, s := range []float32{0.1, 0.9, 0.5, 0.9, 0.3, 0.7} {
		h.offer(Candidate{Row: uint32(i), Score: s})
	}
	got := merge([][]Candidate{h.items}, 3)
	assert.Equal(t, []Candidate{{1, 0.9}, {3, 0.9}, {5, 0.7}}, got)
}
