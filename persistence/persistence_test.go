package persistence

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecstore/blobstore"
	"github.com/hupe1980/vecstore/codec"
	"github.com/hupe1980/vecstore/internal/fs"
	"github.com/hupe1980/vecstore/metadata"
	"github.com/hupe1980/vecstore/quantization"
	"github.com/hupe1980/vecstore/resource"
)

func f32Row(vals ...float32) []byte {
	out := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}

func sampleSnapshot() *Snapshot {
	return &Snapshot{
		Dimension: 3,
		Records: []Record{
			{ID: "a", Vector: f32Row(1, 0, 0), Metadata: metadata.Document{"category": metadata.String("AI"), "year": metadata.Int(2024)}},
			{ID: "b", Vector: f32Row(0, 1, 0)},
			{ID: "c", Vector: f32Row(0.5, 0.5, -1), Metadata: metadata.Document{"tags": metadata.Array([]metadata.Value{metadata.String("x")})}},
		},
	}
}

func assertSnapshotsEqual(t *testing.T, want, got *Snapshot) {
	t.Helper()
	require.Equal(t, want.Dimension, got.Dimension)
	require.Equal(t, want.Bits(), got.Bits())
	require.Len(t, got.Records, len(want.Records))
	for i := range want.Records {
		w, g := want.Records[i], got.Records[i]
		assert.Equal(t, w.ID, g.ID)
		assert.Equal(t, w.Vector, g.Vector, w.ID)
		assert.True(t, w.Metadata.Equal(g.Metadata), w.ID)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	sq, err := quantization.NewScalarQuantizerRange(-1, 1)
	require.NoError(t, err)

	tests := []struct {
		name string
		snap *Snapshot
		opts WriteOptions
	}{
		{"float32 none", sampleSnapshot(), WriteOptions{Compression: CompressionNone}},
		{"float32 lz4", sampleSnapshot(), WriteOptions{Compression: CompressionLZ4}},
		{"float32 zstd std json", sampleSnapshot(), WriteOptions{Compression: CompressionZstd, Codec: codec.JSON{}}},
		{"empty", &Snapshot{}, WriteOptions{}},
		{"half", &Snapshot{
			Dimension: 2,
			Quantizer: quantization.HalfQuantizer{},
			Records:   []Record{{ID: "h", Vector: []byte{0x00, 0x3c, 0x00, 0xbc}}},
		}, WriteOptions{Compression: CompressionLZ4}},
		{"scalar", &Snapshot{
			Dimension: 4,
			Quantizer: sq,
			Records:   []Record{{ID: "q", Vector: []byte{0, 64, 128, 255}, Metadata: metadata.Document{"k": metadata.Float(0.5)}}},
		}, WriteOptions{Compression: CompressionZstd}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteSnapshot(&buf, tt.snap, tt.opts))

			got, err := ReadSnapshot(&buf)
			require.NoError(t, err)
			assertSnapshotsEqual(t, tt.snap, got)

			if want, ok := tt.snap.Quantizer.(*quantization.ScalarQuantizer); ok {
				sq, ok := got.Quantizer.(*quantization.ScalarQuantizer)
				require.True(t, ok)
				assert.Equal(t, want.Min(), sq.Min())
				assert.Equal(t, want.Max(), sq.Max())
			}
		})
	}
}

func TestWriteSnapshotRejectsWrongRowSize(t *testing.T) {
	snap := &Snapshot{Dimension: 3, Records: []Record{{ID: "a", Vector: f32Row(1, 2)}}}
	assert.Error(t, WriteSnapshot(&bytes.Buffer{}, snap, WriteOptions{}))
}

func encode(t *testing.T, c Compression) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(&buf, sampleSnapshot(), WriteOptions{Compression: c}))
	return buf.Bytes()
}

func TestReadSnapshotDetectsCorruption(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(c.String(), func(t *testing.T) {
			good := encode(t, c)

			cases := map[string][]byte{
				"empty":            {},
				"short header":     good[:HeaderSize-1],
				"truncated body":   good[:len(good)-1],
				"flipped body bit": flip(good, len(good)-1),
				"bad magic":        flip(good, 0),
				"bad checksum":     flip(good, HeaderSize-8),
			}
			for name, data := range cases {
				_, err := ReadSnapshot(bytes.NewReader(data))
				assert.ErrorIs(t, err, ErrCorruptSnapshot, name)
			}
		})
	}
}

func TestReadSnapshotRejectsNewerVersion(t *testing.T) {
	data := encode(t, CompressionNone)
	binary.LittleEndian.PutUint16(data[4:], Version+1)

	_, err := ReadSnapshot(bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func flip(b []byte, i int) []byte {
	out := bytes.Clone(b)
	out[i] ^= 0x40
	return out
}

func TestParseCompression(t *testing.T) {
	for in, want := range map[string]Compression{"": CompressionNone, "none": CompressionNone, "LZ4": CompressionLZ4, "zstd": CompressionZstd} {
		got, err := ParseCompression(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseCompression("gzip")
	assert.ErrorIs(t, err, ErrUnknownCompression)
}

func TestHeaderSize(t *testing.T) {
	assert.Equal(t, 48, HeaderSize)
}

func TestValidateCollectionName(t *testing.T) {
	for _, ok := range []string{"docs", "my_docs-1", "v1.2", "A"} {
		assert.NoError(t, ValidateCollectionName(ok), ok)
	}
	for _, bad := range []string{"", ".", "..", ".hidden", "a/b", `a\b`, "../etc", "sp ace", string(make([]byte, 200))} {
		assert.ErrorIs(t, ValidateCollectionName(bad), ErrInvalidCollectionName, bad)
	}
}

func TestManagerLifecycle(t *testing.T) {
	ctx := context.Background()

	for name, store := range map[string]blobstore.BlobStore{
		"local":  blobstore.NewLocalStore(filepath.Join(t.TempDir(), "data")),
		"memory": blobstore.NewMemoryStore(),
	} {
		t.Run(name, func(t *testing.T) {
			m := NewManager(store,
				WithCompression(CompressionZstd),
				WithResourceController(resource.NewController(resource.Config{IOLimitBytesPerSec: 1 << 20})),
			)

			_, err := m.Load(ctx, "docs")
			require.ErrorIs(t, err, ErrCollectionNotFound)

			require.NoError(t, m.Save(ctx, "docs", sampleSnapshot()))
			require.NoError(t, m.Save(ctx, "docs-archive", &Snapshot{}))

			got, err := m.Load(ctx, "docs")
			require.NoError(t, err)
			assertSnapshotsEqual(t, sampleSnapshot(), got)

			names, err := m.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"docs", "docs-archive"}, names)

			require.NoError(t, m.Delete(ctx, "docs"))
			assert.ErrorIs(t, m.Delete(ctx, "docs"), ErrCollectionNotFound)
			_, err = m.Load(ctx, "docs")
			assert.ErrorIs(t, err, ErrCollectionNotFound)

			assert.ErrorIs(t, m.Save(ctx, "../x", &Snapshot{}), ErrInvalidCollectionName)
		})
	}
}

func TestManagerFailedSaveKeepsPreviousSnapshot(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	require.NoError(t, NewManager(blobstore.NewLocalStore(root)).Save(ctx, "docs", sampleSnapshot()))

	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule(".tmp", fs.Fault{FailAfterBytes: 10})
	m := NewManager(blobstore.NewLocalStore(root, blobstore.WithFileSystem(ffs)))

	bigger := sampleSnapshot()
	bigger.Records = append(bigger.Records, Record{ID: "d", Vector: f32Row(1, 1, 1)})
	require.ErrorIs(t, m.Save(ctx, "docs", bigger), fs.ErrInjected)

	got, err := m.Load(ctx, "docs")
	require.NoError(t, err)
	assertSnapshotsEqual(t, sampleSnapshot(), got)
}

func TestManagerLoadCorruptBlob(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	require.NoError(t, store.Put(ctx, BlobName("docs"), []byte("not a snapshot at all, definitely not 48 bytes long......")))

	_, err := NewManager(store).Load(ctx, "docs")
	assert.ErrorIs(t, err, ErrCorruptSnapshot)
}
