package ply

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/banshee-data/splatprune/internal/fsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeHeader(t *testing.T) {
	text := EncodeHeader(7, cameraElements)
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")

	require.Len(t, lines, 3+FieldsPerRecord+4+1)
	assert.Equal(t, "ply", lines[0])
	assert.Equal(t, FormatLine, lines[1])
	assert.Equal(t, "element vertex 7", lines[2])
	assert.Equal(t, "property float x", lines[3])
	assert.Equal(t, "property float rot_3", lines[3+FieldsPerRecord-1])
	assert.Equal(t, "element extrinsic 16", lines[3+FieldsPerRecord])
	assert.Equal(t, "property uchar version", lines[len(lines)-2])
	assert.Equal(t, EndHeader, lines[len(lines)-1])
}

func TestEncode_RoundTrip(t *testing.T) {
	points := samplePoints(9)
	data := encodeToBytes(t, points, cameraElements, cameraPayload())

	file, err := DecodeBytes(data, ReadOptions{StrictAuxiliary: true})
	require.NoError(t, err)
	assert.Equal(t, points.Len(), file.Header.VertexCount)
	assert.Equal(t, cameraElements, file.Header.Auxiliary)
	assert.Equal(t, points, file.Points)
	assert.True(t, file.Header.ConformsToSchema())

	// Re-encoding the decoded file reproduces it byte for byte.
	again := encodeToBytes(t, file.Points, file.Header.Auxiliary, file.Auxiliary)
	assert.Equal(t, data, again)
}

func TestEncode_AuxiliaryTrailerIsVerbatim(t *testing.T) {
	data := encodeToBytes(t, samplePoints(4), cameraElements, cameraPayload())
	h, err := ParseHeader(bytes.NewReader(data))
	require.NoError(t, err)

	trailer := data[h.DataOffset+h.PointDataSize():]
	assert.Equal(t, cameraPayload(), trailer)
}

func TestEncode_ZeroPoints(t *testing.T) {
	data := encodeToBytes(t, PointTable{}, cameraElements, cameraPayload())

	file, err := DecodeBytes(data, ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, file.Header.VertexCount)
	assert.Empty(t, file.Points)
	assert.Equal(t, cameraPayload(), file.Auxiliary)
}

func TestEncode_SpecialFloatsSurvive(t *testing.T) {
	points := PointTable{{Opacity: float32(math.Inf(-1)), Scale: [3]float32{float32(math.Inf(1)), 0, -1e-30}}}
	file, err := DecodeBytes(encodeToBytes(t, points, nil, nil), ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, points, file.Points)
}

type failingWriter struct{ after int }

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.after <= 0 {
		return 0, errors.New("disk full")
	}
	n := min(len(p), w.after)
	w.after -= n
	return n, nil
}

func TestEncode_WriterError(t *testing.T) {
	_, err := Encode(&failingWriter{after: 0}, samplePoints(2000), nil, nil)
	assert.ErrorContains(t, err, "disk full")
}

func TestWriteFile(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.MkdirAll("/out", 0755))

	n, err := WriteFile(mfs, "/out/pruned.ply", samplePoints(3), cameraElements, cameraPayload())
	require.NoError(t, err)

	data, err := mfs.ReadFile("/out/pruned.ply")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)

	infos, err := mfs.ListFiles("/out")
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}
