package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecstore"
	"github.com/hupe1980/vecstore/metadata"
)

const testTable = "vectors"

func newTestStore(t *testing.T, opts ...Option) (*Store, *fakeClient) {
	t.Helper()
	client := newFakeClient()
	s, err := NewStore(client, testTable, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, client
}

func addABC(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	for _, v := range []struct {
		id  string
		vec []float32
		cat string
	}{
		{"a", []float32{0, 1}, "db"},
		{"b", []float32{1, 0}, "ai"},
		{"c", []float32{1, 1}, "ai"},
	} {
		_, err := s.AddVector(ctx, v.vec, map[string]any{"category": v.cat}, vecstore.WithID(v.id))
		require.NoError(t, err)
	}
}

func resultIDs(results []vecstore.Result) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	return ids
}

func TestStore_AddAndSearch(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	addABC(t, s)

	results, err := s.TopCosineSimilarity(ctx, []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"b", "c"}, resultIDs(results))
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
	assert.InDelta(t, 0.70710677, results[1].Similarity, 1e-6)
	assert.Equal(t, "ai", results[0].Metadata["category"].Any())

	ids, err := s.ListAllIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	n, err := s.GetVectorCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestStore_EmptySearch(t *testing.T) {
	s, _ := newTestStore(t)

	results, err := s.TopCosineSimilarity(context.Background(), []float32{1, 2, 3}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = s.TopCosineSimilarity(context.Background(), []float32{1}, 0, nil)
	assert.ErrorIs(t, err, vecstore.ErrInvalidK)
}

func TestStore_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	_, err := s.AddVector(ctx, []float32{1, 0}, nil, vecstore.WithID("a"))
	require.NoError(t, err)

	_, err = s.AddVector(ctx, []float32{1, 0, 0}, nil, vecstore.WithID("b"))
	var dm *vecstore.ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 2, dm.Expected)
	assert.Equal(t, 3, dm.Actual)
	assert.ErrorIs(t, err, vecstore.ErrDimension)

	n, err := s.GetVectorCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.TopCosineSimilarity(ctx, []float32{1, 0, 0}, 1, nil)
	assert.ErrorIs(t, err, vecstore.ErrDimension)
}

func TestStore_ReAddKeepsPosition(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	addABC(t, s)

	_, err := s.AddVector(ctx, []float32{1, 0}, map[string]any{"category": "ml"}, vecstore.WithID("a"))
	require.NoError(t, err)

	ids, err := s.ListAllIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	rec, err := s.GetVectorByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, rec.Vector)
	assert.Equal(t, "ml", rec.Metadata["category"].Any())

	// a and b are now identical; a was inserted first.
	results, err := s.TopCosineSimilarity(ctx, []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, resultIDs(results))
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	addABC(t, s)

	ok, err := s.DeleteVector(ctx, "missing")
	assert.False(t, ok)
	assert.ErrorIs(t, err, vecstore.ErrNotFound)

	ok, err = s.DeleteVector(ctx, "b")
	require.NoError(t, err)
	assert.True(t, ok)

	ids, err := s.ListAllIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids)

	_, err = s.GetVectorByID(ctx, "b")
	assert.ErrorIs(t, err, vecstore.ErrNotFound)
}

func TestStore_Update(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	addABC(t, s)

	ok, err := s.UpdateVector(ctx, "missing", []float32{1, 0}, nil)
	assert.False(t, ok)
	assert.ErrorIs(t, err, vecstore.ErrNotFound)

	t.Run("metadata only", func(t *testing.T) {
		_, err := s.UpdateVector(ctx, "a", nil, map[string]any{"year": 2024})
		require.NoError(t, err)

		rec, err := s.GetVectorByID(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, []float32{0, 1}, rec.Vector)
		assert.True(t, metadata.Int(2024).Equal(rec.Metadata["year"]))
		assert.NotContains(t, rec.Metadata, "category")
	})

	t.Run("vector keeps metadata", func(t *testing.T) {
		_, err := s.UpdateVector(ctx, "b", []float32{3, 4}, nil, vecstore.WithNormalize())
		require.NoError(t, err)

		rec, err := s.GetVectorByID(ctx, "b")
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float32{0.6, 0.8}, rec.Vector, 1e-6)
		assert.Equal(t, "ai", rec.Metadata["category"].Any())
	})

	t.Run("wrong dimension", func(t *testing.T) {
		ok, err := s.UpdateVector(ctx, "c", []float32{1, 2, 3}, nil)
		assert.False(t, ok)
		assert.ErrorIs(t, err, vecstore.ErrDimension)
	})

	ids, err := s.ListAllIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestStore_Filters(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	addABC(t, s)

	// a is the best match but is filtered out before scoring.
	results, err := s.TopCosineSimilarity(ctx, []float32{0, 1}, 3, func(_ string, md metadata.Document) bool {
		return md["category"].Any() == "ai"
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, resultIDs(results))

	results, err = s.SearchWithFilterSet(ctx, []float32{0, 1}, 3, metadata.NewFilterSet(
		metadata.Filter{Key: "category", Operator: metadata.OpIn, Value: metadata.Array([]metadata.Value{metadata.String("db")})},
	))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, resultIDs(results))

	_, err = s.SearchWithFilterSet(ctx, []float32{0, 1}, 3, metadata.NewFilterSet(
		metadata.Filter{Key: "category", Operator: metadata.Operator("like"), Value: metadata.String("x")},
	))
	assert.ErrorIs(t, err, vecstore.ErrInvalidFilter)

	recs, err := s.QueryByMetadata(ctx, map[string]any{"category": "ai"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "b", recs[0].ID)
	assert.Equal(t, "c", recs[1].ID)

	recs, err = s.QueryByMetadata(ctx, map[string]any{"category": "none"})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestStore_Pagination(t *testing.T) {
	ctx := context.Background()
	s, client := newTestStore(t)
	client.pageSize = 2

	var want []string
	for i := range 7 {
		id := fmt.Sprintf("v%d", 7-i)
		want = append(want, id)
		_, err := s.AddVector(ctx, []float32{float32(i + 1), 1}, nil, vecstore.WithID(id))
		require.NoError(t, err)
	}

	ids, err := s.ListAllIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, ids)

	n, err := s.GetVectorCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	results, err := s.TopCosineSimilarity(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	assert.Len(t, results, 7)
	assert.Equal(t, "v1", results[0].ID)
}

func TestStore_Batch(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	ids, err := s.AddVectorsBatch(ctx, []vecstore.BatchItem{
		{ID: "a", Vector: []float32{1, 0}},
		{Vector: []float32{0, 1}, Metadata: map[string]any{"k": "v"}},
		{ID: "bad", Vector: []float32{1, 0, 0}},
		{ID: "d", Vector: []float32{1, 1}},
	})
	require.Len(t, ids, 2)
	assert.Equal(t, "a", ids[0])
	assert.NotEmpty(t, ids[1])

	var be *vecstore.BatchError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 2, be.Index)
	assert.ErrorIs(t, err, vecstore.ErrDimension)

	n, err := s.GetVectorCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStore_GeneratedIDCollision(t *testing.T) {
	ctx := context.Background()
	seq := []string{"same", "same", "", "other"}
	next := 0
	s, _ := newTestStore(t, WithIDGenerator(func() string {
		id := seq[next]
		next++
		return id
	}))

	id, err := s.AddVector(ctx, []float32{1, 0}, nil)
	require.NoError(t, err)
	assert.Equal(t, "same", id)

	id, err = s.AddVector(ctx, []float32{0, 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, "other", id)

	rec, err := s.GetVectorByID(ctx, "same")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, rec.Vector)
}

func TestStore_ClearDatabase(t *testing.T) {
	ctx := context.Background()
	s, client := newTestStore(t)
	client.unprocessedOnce = true

	for i := range 30 {
		_, err := s.AddVector(ctx, []float32{float32(i), 1}, nil)
		require.NoError(t, err)
	}

	require.NoError(t, s.ClearDatabase(ctx))
	assert.Zero(t, client.records(DefaultNamespace))
	assert.Equal(t, 3, client.batchCalls)

	n, err := s.GetVectorCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// The dimension is released with the meta item.
	_, err = s.AddVector(ctx, []float32{1, 2, 3}, nil)
	require.NoError(t, err)
}

func TestStore_Namespaces(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	a, err := NewStore(client, testTable, WithNamespace("a"))
	require.NoError(t, err)
	b, err := NewStore(client, testTable, WithNamespace("b"))
	require.NoError(t, err)

	_, err = a.AddVector(ctx, []float32{1, 0}, nil)
	require.NoError(t, err)
	_, err = b.AddVector(ctx, []float32{1, 0, 0}, nil)
	require.NoError(t, err)

	na, err := a.GetVectorCount(ctx)
	require.NoError(t, err)
	nb, err := b.GetVectorCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, na)
	assert.Equal(t, 1, nb)
}

func TestStore_Stats(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Int(vecstore.StatTotalVectors))
	assert.Equal(t, 0, stats.Int(vecstore.StatDimension))

	addABC(t, s)
	stats, err = s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Int(vecstore.StatTotalVectors))
	assert.Equal(t, 2, stats.Int(vecstore.StatDimension))
	assert.Equal(t, Provider, stats.String(vecstore.StatProvider))
}

func TestStore_TextAndEmbedder(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	md := map[string]any{"lang": "go"}
	id, err := s.AddTextWithEmbedding(ctx, "hello", []float32{1, 0}, md, vecstore.WithID("t"))
	require.NoError(t, err)
	assert.Equal(t, "t", id)
	assert.NotContains(t, md, vecstore.TextKey)

	embed := vecstore.EmbedderFunc(func(context.Context, string) ([]float32, error) {
		return []float32{1, 0}, nil
	})
	results, err := s.SearchByText(ctx, "hi", embed, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "hello", results[0].Metadata[vecstore.TextKey].Any())

	_, err = s.SearchByText(ctx, "hi", nil, 1, nil)
	assert.ErrorIs(t, err, vecstore.ErrNoEmbedder)
}

func TestStore_Unsupported(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	assert.True(t, vecstore.IsNotImplemented(s.SaveToDisk(ctx, "c")))
	assert.True(t, vecstore.IsNotImplemented(s.LoadFromDisk(ctx, "c")))
	_, err := s.CompressVectors(ctx, 8)
	assert.True(t, vecstore.IsNotImplemented(err))
}

func TestStore_InvalidInput(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, WithValidationLimits(vecstore.Limits{MaxIDLength: 4, MaxTopN: 2}))

	_, err := s.AddVector(ctx, nil, nil)
	assert.ErrorIs(t, err, vecstore.ErrInvalidVector)

	_, err = s.AddVector(ctx, []float32{1, 0}, nil, vecstore.WithID("too-long"))
	assert.ErrorIs(t, err, vecstore.ErrInvalidID)

	_, err = s.AddVector(ctx, []float32{1, 0}, map[string]any{"bad": struct{}{}})
	assert.ErrorIs(t, err, vecstore.ErrInvalidMetadata)

	_, err = s.TopCosineSimilarity(ctx, []float32{1, 0}, 3, nil)
	assert.ErrorIs(t, err, vecstore.ErrLimitExceeded)
}

func TestStore_BackendErrors(t *testing.T) {
	ctx := context.Background()
	s, client := newTestStore(t)

	client.fail(errors.New("dial tcp 127.0.0.1:8000: connection refused"))
	_, err := s.AddVector(ctx, []float32{1, 0}, nil)
	assert.ErrorIs(t, err, vecstore.ErrConnection)
	_, err = s.GetVectorCount(ctx)
	assert.ErrorIs(t, err, vecstore.ErrConnection)

	client.fail(&smithy.GenericAPIError{Code: "ProvisionedThroughputExceededException"})
	_, err = s.ListAllIDs(ctx)
	assert.ErrorIs(t, err, vecstore.ErrOperation)
	assert.NotErrorIs(t, err, vecstore.ErrConnection)
}

func TestStore_Closed(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.AddVector(context.Background(), []float32{1}, nil)
	assert.ErrorIs(t, err, vecstore.ErrClosed)

	cctx, cancel := context.WithCancel(context.Background())
	cancel()
	s2, _ := newTestStore(t)
	_, err = s2.GetVectorCount(cctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewStore_Validation(t *testing.T) {
	_, err := NewStore(newFakeClient(), "")
	assert.ErrorIs(t, err, vecstore.ErrOperation)

	_, err = NewStore(newFakeClient(), testTable, WithNamespace("a#b"))
	assert.ErrorIs(t, err, vecstore.ErrOperation)

	_, err = NewStore(newFakeClient(), testTable, WithNamespace(""))
	assert.ErrorIs(t, err, vecstore.ErrOperation)
}

func TestTranslateError(t *testing.T) {
	apiErr := &smithy.GenericAPIError{Code: "ValidationException", Message: "bad"}
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"canceled", context.Canceled, context.Canceled},
		{"not found", vecstore.ErrNotFound, vecstore.ErrNotFound},
		{"api", apiErr, vecstore.ErrOperation},
		{"transport", errors.New("EOF"), vecstore.ErrConnection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, translateError(tt.in), tt.want)
		})
	}
	assert.NoError(t, translateError(nil))
}

func TestVectorEncoding(t *testing.T) {
	v := []float32{1.5, -2, 0, 3.25}
	got, err := decodeVector(encodeVector(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.ErrorIs(t, err, vecstore.ErrOperation)
}
