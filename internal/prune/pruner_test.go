package prune

import (
	"bytes"
	"io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/splatprune/internal/fsutil"
	"github.com/banshee-data/splatprune/internal/ply"
	"github.com/banshee-data/splatprune/internal/plycache"
	"github.com/banshee-data/splatprune/internal/synth"
	"github.com/banshee-data/splatprune/internal/testutil"
	"github.com/banshee-data/splatprune/internal/timeutil"
)

func newTestPruner(t *testing.T) (*Pruner, *fsutil.MemoryFileSystem, *timeutil.MockClock) {
	t.Helper()
	mfs := fsutil.NewMemoryFileSystem()
	clock := timeutil.NewMockClock(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	mfs.SetClock(clock.Now)
	return NewPruner(mfs, clock), mfs, clock
}

func TestPrune_Elapsed(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	clock := timeutil.NewMockClock(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	clock.SetStep(250 * time.Millisecond)
	testutil.WriteScene(t, mfs, "/in/scene.ply", 10, 1, synth.Options{})

	res, err := NewPruner(mfs, clock).Prune("/in/scene.ply", "/out/scene.ply", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, res.Elapsed)
}

func TestPrune_CameraScene(t *testing.T) {
	p, mfs, _ := newTestPruner(t)
	scene := testutil.WriteScene(t, mfs, "/in/scene.ply", 1000, 5, synth.Options{Camera: true})

	res, err := p.Prune("/in/scene.ply", "/out/pruned.ply", DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 1000, res.InputPoints)
	assert.Equal(t, 500, res.OutputPoints)
	assert.Equal(t, len(scene.AuxData), res.AuxiliaryBytes)
	assert.True(t, res.ConformsToSchema)
	assert.False(t, res.CacheHit)
	assert.Len(t, res.Scores, 1000)
	assert.Len(t, res.Kept, 500)

	in, err := mfs.ReadFile("/in/scene.ply")
	require.NoError(t, err)
	out, err := mfs.ReadFile("/out/pruned.ply")
	require.NoError(t, err)
	assert.Equal(t, int64(len(in)), res.InputBytes)
	assert.Equal(t, int64(len(out)), res.OutputBytes)
	assert.Greater(t, res.CompressionRatio(), 1.0)
	assert.Greater(t, res.SpaceSaved(), 0.0)

	file, err := ply.DecodeBytes(out, ply.ReadOptions{StrictAuxiliary: true})
	require.NoError(t, err)
	assert.Equal(t, scene.Auxiliary, file.Header.Auxiliary)
	assert.True(t, testutil.IsSubsequence(scene.Points, file.Points))

	// Trailing bytes after the point array are identical to the input's.
	assert.True(t, bytes.HasSuffix(in, file.Auxiliary))
	assert.Equal(t, scene.AuxData, out[file.Header.DataOffset+file.Header.PointDataSize():])
}

func TestPrune_KeepAllIsByteIdentical(t *testing.T) {
	p, mfs, _ := newTestPruner(t)
	testutil.WriteScene(t, mfs, "/in/scene.ply", 300, 8, synth.Options{Camera: true})

	opts := DefaultOptions()
	opts.KeepRatio = 1
	_, err := p.Prune("/in/scene.ply", "/out/same.ply", opts)
	require.NoError(t, err)

	in, _ := mfs.ReadFile("/in/scene.ply")
	out, _ := mfs.ReadFile("/out/same.ply")
	assert.Equal(t, in, out)
}

func TestPrune_ZeroVertices(t *testing.T) {
	p, mfs, _ := newTestPruner(t)
	testutil.WriteScene(t, mfs, "/in/empty.ply", 0, 1, synth.Options{Camera: true})

	res, err := p.Prune("/in/empty.ply", "/out/empty.ply", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 0, res.InputPoints)
	assert.Equal(t, 0, res.OutputPoints)

	file, err := ply.ReadFile(mfs, "/out/empty.ply", ply.ReadOptions{StrictAuxiliary: true})
	require.NoError(t, err)
	assert.Empty(t, file.Points)
	assert.Len(t, file.Header.Auxiliary, 7)
}

func TestPrune_ZeroRetained(t *testing.T) {
	p, mfs, _ := newTestPruner(t)
	testutil.WriteScene(t, mfs, "/in/small.ply", 50, 1, synth.Options{})

	opts := DefaultOptions()
	opts.KeepRatio = 0.01
	res, err := p.Prune("/in/small.ply", "/out/none.ply", opts)
	require.NoError(t, err)
	assert.Equal(t, 0, res.OutputPoints)

	file, err := ply.ReadFile(mfs, "/out/none.ply", ply.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, file.Header.VertexCount)
}

func TestPrune_Failures(t *testing.T) {
	p, mfs, _ := newTestPruner(t)
	good := testutil.EncodeScene(t, synth.Generate(10, 1, synth.Options{}))
	require.NoError(t, mfs.WriteFile("/in/truncated.ply", good[:len(good)-7], 0644))
	require.NoError(t, mfs.WriteFile("/in/ascii.ply", []byte("ply\nformat ascii 1.0\nelement vertex 0\nend_header\n"), 0644))
	require.NoError(t, mfs.WriteFile("/in/good.ply", good, 0644))

	tests := []struct {
		name string
		in   string
		opts func(*Options)
		kind ErrorKind
	}{
		{"missing input", "/in/missing.ply", nil, KindIO},
		{"truncated", "/in/truncated.ply", nil, KindTruncated},
		{"ascii", "/in/ascii.ply", nil, KindParse},
		{"bad ratio", "/in/good.ply", func(o *Options) { o.KeepRatio = 0 }, KindInvalidArgument},
		{"bad method", "/in/good.ply", func(o *Options) { o.Method = "gradient" }, KindInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			if tt.opts != nil {
				tt.opts(&opts)
			}
			_, err := p.Prune(tt.in, "/out/result.ply", opts)
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
			assert.False(t, mfs.Exists("/out/result.ply"), "no output on failure")
		})
	}
}

func TestPrune_MissingInputWrapsNotExist(t *testing.T) {
	p, _, _ := newTestPruner(t)
	_, err := p.Prune("/in/nope.ply", "/out/x.ply", DefaultOptions())
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestPrune_StrictAuxiliary(t *testing.T) {
	p, mfs, _ := newTestPruner(t)
	data := testutil.EncodeScene(t, synth.Generate(20, 3, synth.Options{Camera: true}))
	require.NoError(t, mfs.WriteFile("/in/short-aux.ply", data[:len(data)-1], 0644))

	opts := DefaultOptions()
	_, err := p.Prune("/in/short-aux.ply", "/out/lenient.ply", opts)
	require.NoError(t, err)

	opts.StrictAuxiliary = true
	_, err = p.Prune("/in/short-aux.ply", "/out/strict.ply", opts)
	assert.Equal(t, KindParse, KindOf(err))
	assert.False(t, mfs.Exists("/out/strict.ply"))
}

func TestPrune_StrictAuxiliaryIsNotServedFromLenientCache(t *testing.T) {
	p, mfs, clock := newTestPruner(t)
	cache, err := plycache.New(mfs, clock, "/cache")
	require.NoError(t, err)
	p.WithCache(cache)

	var buf bytes.Buffer
	buf.WriteString(ply.EncodeHeader(4, []ply.Element{{
		Name: "tag", Count: 4, Properties: []ply.Property{{Name: "id", Type: "uchar"}},
	}}))
	buf.Write(make([]byte, 4*ply.RecordSize))
	buf.Write([]byte{1, 2, 3, 4, 5, 6, 7}) // header declares 4 bytes
	require.NoError(t, mfs.WriteFile("/in/long-aux.ply", buf.Bytes(), 0644))

	opts := DefaultOptions()
	lenient, err := p.Prune("/in/long-aux.ply", "/out/lenient.ply", opts)
	require.NoError(t, err)
	require.NoError(t, lenient.CacheErr)

	opts.StrictAuxiliary = true
	_, err = p.Prune("/in/long-aux.ply", "/out/strict.ply", opts)
	assert.Equal(t, KindParse, KindOf(err))
	assert.False(t, mfs.Exists("/out/strict.ply"))

	// The lenient entry is still served to lenient runs.
	opts.StrictAuxiliary = false
	again, err := p.Prune("/in/long-aux.ply", "/out/again.ply", opts)
	require.NoError(t, err)
	assert.True(t, again.CacheHit)
}

func TestPrune_NonConformingSchemaIsReported(t *testing.T) {
	p, mfs, _ := newTestPruner(t)
	var buf bytes.Buffer
	buf.WriteString("ply\nformat binary_little_endian 1.0\nelement vertex 1\n")
	for i := 0; i < ply.FieldsPerRecord; i++ {
		buf.WriteString("property float v\n")
	}
	buf.WriteString("end_header\n")
	buf.Write(make([]byte, ply.RecordSize))
	require.NoError(t, mfs.WriteFile("/in/odd.ply", buf.Bytes(), 0644))

	res, err := p.Prune("/in/odd.ply", "/out/odd.ply", DefaultOptions())
	require.NoError(t, err)
	assert.False(t, res.ConformsToSchema)
}

func TestPrune_Cache(t *testing.T) {
	p, mfs, clock := newTestPruner(t)
	cache, err := plycache.New(mfs, clock, "/cache")
	require.NoError(t, err)
	p.WithCache(cache)
	testutil.WriteScene(t, mfs, "/in/scene.ply", 200, 6, synth.Options{Camera: true})

	first, err := p.Prune("/in/scene.ply", "/out/a.ply", DefaultOptions())
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	require.NoError(t, first.CacheErr)

	second, err := p.Prune("/in/scene.ply", "/out/b.ply", DefaultOptions())
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.InputPoints, second.InputPoints)
	assert.Equal(t, first.OutputPoints, second.OutputPoints)
	assert.Equal(t, first.AuxiliaryBytes, second.AuxiliaryBytes)
	assert.Nil(t, second.Scores)

	a, _ := mfs.ReadFile("/out/a.ply")
	b, _ := mfs.ReadFile("/out/b.ply")
	assert.Equal(t, a, b)

	stats, err := cache.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FileCount)

	// A different ratio is a different entry.
	opts := DefaultOptions()
	opts.KeepRatio = 0.25
	third, err := p.Prune("/in/scene.ply", "/out/c.ply", opts)
	require.NoError(t, err)
	assert.False(t, third.CacheHit)
}

func TestPrune_UnseededRandomBypassesCache(t *testing.T) {
	p, mfs, clock := newTestPruner(t)
	cache, err := plycache.New(mfs, clock, "/cache")
	require.NoError(t, err)
	p.WithCache(cache)
	testutil.WriteScene(t, mfs, "/in/scene.ply", 100, 6, synth.Options{})

	opts := DefaultOptions()
	opts.Method = MethodRandom
	for i := 0; i < 2; i++ {
		res, err := p.Prune("/in/scene.ply", "/out/r.ply", opts)
		require.NoError(t, err)
		assert.False(t, res.CacheHit)
	}
	stats, err := cache.Stats()
	require.NoError(t, err)
	assert.Zero(t, stats.FileCount)
}

func TestPrune_CorruptCacheEntryIsRecomputed(t *testing.T) {
	p, mfs, clock := newTestPruner(t)
	cache, err := plycache.New(mfs, clock, "/cache")
	require.NoError(t, err)
	p.WithCache(cache)
	testutil.WriteScene(t, mfs, "/in/scene.ply", 40, 2, synth.Options{})

	in, err := mfs.ReadFile("/in/scene.ply")
	require.NoError(t, err)
	require.NoError(t, cache.Save(DefaultOptions().cacheKey(in), []byte("not a ply")))

	res, err := p.Prune("/in/scene.ply", "/out/x.ply", DefaultOptions())
	require.NoError(t, err)
	assert.False(t, res.CacheHit)
	assert.Equal(t, 20, res.OutputPoints)
}

func TestOptions_Deterministic(t *testing.T) {
	o := DefaultOptions()
	assert.True(t, o.Deterministic())
	o.Method = MethodRandom
	assert.False(t, o.Deterministic())
	o.Seed = 9
	assert.True(t, o.Deterministic())
}
