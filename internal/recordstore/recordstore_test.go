package recordstore

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecstore/metadata"
	"github.com/hupe1980/vecstore/quantization"
	"github.com/hupe1980/vecstore/resource"
	"github.com/hupe1980/vecstore/vectorstore"
)

func newStore() *Store { return New(Options{Limits: DefaultLimits}) }

func TestPutFixesDimension(t *testing.T) {
	s := newStore()
	assert.Zero(t, s.Dimension())

	created, err := s.Put("a", []float32{1, 2, 3}, nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 3, s.Dimension())

	_, err = s.Put("b", []float32{1, 2}, nil)
	var de *DimensionError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 3, de.Expected)
	assert.Equal(t, 2, de.Actual)

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, []string{"a"}, s.IDs())
}

func TestPutRejectsInvalidInput(t *testing.T) {
	s := newStore()

	_, err := s.Put("a", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidVector)
	_, err = s.Put("a", []float32{1, float32(math.NaN())}, nil)
	assert.ErrorIs(t, err, ErrInvalidVector)
	_, err = s.Put("a", []float32{float32(math.Inf(1))}, nil)
	assert.ErrorIs(t, err, ErrInvalidVector)
	_, err = s.Put("", []float32{1}, nil)
	assert.ErrorIs(t, err, ErrInvalidID)

	small := New(Options{Limits: Limits{MaxDimension: 2}})
	_, err = small.Put("a", []float32{1, 2, 3}, nil)
	assert.ErrorIs(t, err, ErrInvalidVector)

	// Nothing was committed, so the dimension is still open.
	assert.Zero(t, s.Dimension())
	assert.Zero(t, s.Len())
}

func TestPutExistingIDUpdatesInPlace(t *testing.T) {
	s := newStore()
	_, err := s.Put("a", []float32{1, 0}, metadata.Document{"k": metadata.Int(1)})
	require.NoError(t, err)
	_, err = s.Put("b", []float32{0, 1}, nil)
	require.NoError(t, err)

	created, err := s.Put("a", []float32{2, 2}, metadata.Document{"k": metadata.Int(2)})
	require.NoError(t, err)
	assert.False(t, created)

	assert.Equal(t, []string{"a", "b"}, s.IDs())
	v, doc, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 2}, v)
	assert.Equal(t, metadata.Int(2), doc["k"])
	assert.Equal(t, 2, s.Len())
}

func TestUpdate(t *testing.T) {
	s := newStore()
	_, err := s.Put("a", []float32{1, 2}, metadata.Document{"k": metadata.String("x")})
	require.NoError(t, err)

	require.NoError(t, s.Update("a", nil, metadata.Document{"k": metadata.String("y")}, true))
	v, doc, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, v)
	assert.Equal(t, "y", doc["k"].Any())

	require.NoError(t, s.Update("a", []float32{3, 4}, nil, false))
	v, doc, _ = s.Get("a")
	assert.Equal(t, []float32{3, 4}, v)
	assert.Equal(t, "y", doc["k"].Any())

	var de *DimensionError
	assert.ErrorAs(t, s.Update("a", []float32{1}, nil, false), &de)
	assert.ErrorIs(t, s.Update("zz", []float32{1, 1}, nil, false), ErrNotFound)
}

func TestGetReturnsCopies(t *testing.T) {
	s := newStore()
	_, err := s.Put("a", []float32{1, 2}, metadata.Document{"k": metadata.Int(1)})
	require.NoError(t, err)

	v, doc, err := s.Get("a")
	require.NoError(t, err)
	v[0] = 99
	doc["k"] = metadata.Int(99)

	v, doc, _ = s.Get("a")
	assert.Equal(t, float32(1), v[0])
	assert.Equal(t, metadata.Int(1), doc["k"])

	_, _, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteAndCompaction(t *testing.T) {
	s := newStore()
	n := 2*compactMinDeleted + 10
	for i := range n {
		_, err := s.Put(fmt.Sprintf("id-%03d", i), []float32{float32(i), 1}, metadata.Document{"i": metadata.Int(int64(i))})
		require.NoError(t, err)
	}

	assert.False(t, s.Delete("nope"))

	// Delete everything except every third id.
	var keep []string
	for i := range n {
		id := fmt.Sprintf("id-%03d", i)
		if i%3 == 0 {
			keep = append(keep, id)
			continue
		}
		require.True(t, s.Delete(id))
	}

	assert.Equal(t, len(keep), s.Len())
	assert.Equal(t, keep, s.IDs())
	assert.Less(t, s.Deleted(), compactMinDeleted, "compaction should have run")

	for _, id := range keep {
		v, doc, err := s.Get(id)
		require.NoError(t, err)
		i, _ := doc["i"].AsInt64()
		assert.Equal(t, float32(i), v[0])
	}

	rows := s.Filter(metadata.Equals(metadata.Document{"i": metadata.Int(3)})).ToArray()
	require.Len(t, rows, 1)
	assert.Equal(t, "id-003", s.ID(rows[0]))
}

func TestExplicitCompactPreservesOrder(t *testing.T) {
	s := newStore()
	for _, id := range []string{"a", "b", "c", "d"} {
		_, err := s.Put(id, []float32{1}, nil)
		require.NoError(t, err)
	}
	s.Delete("b")
	s.Compact()

	assert.Zero(t, s.Deleted())
	assert.Equal(t, []string{"a", "c", "d"}, s.IDs())
	assert.Equal(t, []uint32{0, 1, 2}, s.Live().ToArray())
}

func TestCompress(t *testing.T) {
	s := newStore()
	for i := range 10 {
		_, err := s.Put(fmt.Sprintf("v%d", i), []float32{float32(i) / 10, 1 - float32(i)/10, 0.5}, nil)
		require.NoError(t, err)
	}
	before := s.SizeBytes()

	ratio, err := s.Compress(quantization.Bits16)
	require.NoError(t, err)
	assert.Equal(t, 2.0, ratio)
	mid := s.SizeBytes()
	assert.Less(t, mid, before)

	ratio, err = s.Compress(quantization.Bits8)
	require.NoError(t, err)
	assert.Equal(t, 4.0, ratio)
	assert.Less(t, s.SizeBytes(), mid)
	assert.Equal(t, quantization.Bits8, s.Bits())

	// Same width is a no-op, wider is rejected, others are unsupported.
	ratio, err = s.Compress(quantization.Bits8)
	require.NoError(t, err)
	assert.Equal(t, 4.0, ratio)
	_, err = s.Compress(quantization.Bits16)
	assert.ErrorIs(t, err, vectorstore.ErrWiderEncoding)
	_, err = s.Compress(quantization.Bits(4))
	assert.ErrorIs(t, err, quantization.ErrUnsupportedBits)

	v, _, err := s.Get("v3")
	require.NoError(t, err)
	assert.InDelta(t, 0.3, v[0], 0.01)
	assert.InDelta(t, 0.7, v[1], 0.01)

	// Later inserts use the trained encoding.
	_, err = s.Put("new", []float32{0.2, 0.2, 0.2}, nil)
	require.NoError(t, err)
	v, _, _ = s.Get("new")
	assert.InDelta(t, 0.2, v[0], 0.01)
}

func TestCompressEmptyTrainsOnFirstInsert(t *testing.T) {
	s := newStore()
	_, err := s.Compress(quantization.Bits8)
	require.NoError(t, err)
	assert.Equal(t, quantization.Bits8, s.Bits())

	_, err = s.Put("a", []float32{-5, 5}, nil)
	require.NoError(t, err)
	v, _, _ := s.Get("a")
	assert.InDelta(t, -5, v[0], 0.1)
	assert.InDelta(t, 5, v[1], 0.1)

	s.Clear()
	assert.Equal(t, quantization.Bits8, s.Bits())
	assert.Zero(t, s.Dimension())
	_, err = s.Put("b", []float32{100, 200, 300}, nil)
	require.NoError(t, err)
	v, _, _ = s.Get("b")
	assert.InDelta(t, 300, v[2], 1)
}

func TestEightBitWritesWidenTrainedRange(t *testing.T) {
	s := newStore()
	_, err := s.Compress(quantization.Bits8)
	require.NoError(t, err)

	_, err = s.Put("a", []float32{1, 0, 0}, nil)
	require.NoError(t, err)
	_, err = s.Put("b", []float32{0, 5, -3}, nil)
	require.NoError(t, err)

	sq, ok := s.Quantizer().(*quantization.ScalarQuantizer)
	require.True(t, ok)
	assert.InDelta(t, -3, sq.Min(), 1e-6)
	assert.InDelta(t, 5, sq.Max(), 1e-6)

	v, _, err := s.Get("b")
	require.NoError(t, err)
	assert.InDelta(t, 5, v[1], 0.05)
	assert.InDelta(t, -3, v[2], 0.05)
	v, _, err = s.Get("a")
	require.NoError(t, err)
	assert.InDelta(t, 1, v[0], 0.05)

	require.NoError(t, s.Update("a", []float32{-8, 0, 0}, nil, false))
	sq = s.Quantizer().(*quantization.ScalarQuantizer)
	assert.InDelta(t, -8, sq.Min(), 1e-6)
	v, _, _ = s.Get("a")
	assert.InDelta(t, -8, v[0], 0.05)
}

func TestSnapshotRoundTrip(t *testing.T) {
	for _, bits := range []quantization.Bits{quantization.Bits32, quantization.Bits16, quantization.Bits8} {
		t.Run(bits.String(), func(t *testing.T) {
			s := newStore()
			for i := range 5 {
				_, err := s.Put(fmt.Sprintf("r%d", i), []float32{float32(i), 1, -1}, metadata.Document{"i": metadata.Int(int64(i))})
				require.NoError(t, err)
			}
			s.Delete("r1")
			_, err := s.Compress(bits)
			require.NoError(t, err)

			restored, err := FromSnapshot(s.Snapshot(), Options{})
			require.NoError(t, err)

			assert.Equal(t, s.IDs(), restored.IDs())
			assert.Equal(t, s.Dimension(), restored.Dimension())
			assert.Equal(t, s.Bits(), restored.Bits())
			for _, id := range s.IDs() {
				v1, d1, _ := s.Get(id)
				v2, d2, _ := restored.Get(id)
				assert.Equal(t, v1, v2)
				assert.True(t, d1.Equal(d2))
			}
		})
	}
}

func TestMemoryLimit(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 100})
	s := New(Options{Resources: rc})

	// Each row costs 4*4 vector bytes, 4 norm bytes and the id.
	for i := range 4 {
		_, err := s.Put(fmt.Sprintf("%d", i), []float32{1, 2, 3, 4}, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(84), rc.MemoryUsage())

	_, err := s.Put("x", []float32{1, 2, 3, 4}, nil)
	require.ErrorIs(t, err, resource.ErrMemoryLimit)
	assert.Equal(t, 4, s.Len())

	_, err = s.Compress(quantization.Bits8)
	require.NoError(t, err)
	assert.Equal(t, int64(4*(4+4+1)), rc.MemoryUsage())

	s.Clear()
	assert.Zero(t, rc.MemoryUsage())
}
