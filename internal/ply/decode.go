package ply

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/banshee-data/splatprune/internal/fsutil"
)

// File is a fully materialised splat PLY file.
type File struct {
	Header    *Header
	Points    PointTable
	Auxiliary []byte // everything after the vertex array, verbatim
}

// ReadOptions controls optional validation while reading.
type ReadOptions struct {
	// StrictAuxiliary fails with a ParseError when the trailing byte count
	// disagrees with the auxiliary declarations. Elements whose size cannot
	// be derived from the header (list or unknown types) disable the check.
	StrictAuxiliary bool
}

// DecodePoints reads exactly count records starting at offset.
// Fewer available bytes than count*RecordSize is a TruncatedDataError.
func DecodePoints(r io.ReaderAt, offset int64, count int) (PointTable, error) {
	if count < 0 {
		return nil, &ParseError{Reason: fmt.Sprintf("negative vertex count %d", count)}
	}
	if int64(count) > math.MaxInt64/RecordSize {
		return nil, &ParseError{Reason: fmt.Sprintf("vertex count %d overflows the file size", count)}
	}
	want := int64(count) * RecordSize

	// ReadAll grows with the bytes actually present, so a header that
	// overstates the count cannot force a huge allocation up front.
	data, err := io.ReadAll(io.NewSectionReader(r, offset, want))
	if err != nil {
		return nil, &IOError{Op: "read points", Err: err}
	}
	if int64(len(data)) < want {
		return nil, &TruncatedDataError{Want: want, Got: int64(len(data))}
	}

	points := make(PointTable, count)
	var f [FieldsPerRecord]float32
	for i := range points {
		rec := data[i*RecordSize : (i+1)*RecordSize]
		for j := range f {
			f[j] = math.Float32frombits(binary.LittleEndian.Uint32(rec[j*FieldSize:]))
		}
		points[i] = pointFromFields(f)
	}
	return points, nil
}

// ReadAuxiliary returns every byte from offset to the end of r. The result
// is empty, never nil, when nothing follows the vertex array.
func ReadAuxiliary(r io.ReaderAt, offset int64) ([]byte, error) {
	data, err := io.ReadAll(io.NewSectionReader(r, offset, math.MaxInt64-offset))
	if err != nil {
		return nil, &IOError{Op: "read auxiliary data", Err: err}
	}
	return data, nil
}

// Decode parses a complete file held by r.
func Decode(r io.ReaderAt, opts ReadOptions) (*File, error) {
	h, err := ParseHeader(io.NewSectionReader(r, 0, math.MaxInt64))
	if err != nil {
		return nil, err
	}

	points, err := DecodePoints(r, h.DataOffset, h.VertexCount)
	if err != nil {
		return nil, err
	}

	aux, err := ReadAuxiliary(r, h.DataOffset+h.PointDataSize())
	if err != nil {
		return nil, err
	}

	if opts.StrictAuxiliary {
		if want, ok := h.AuxiliarySize(); ok && want != int64(len(aux)) {
			return nil, &ParseError{Reason: fmt.Sprintf(
				"auxiliary data is %d bytes but the header declares %d", len(aux), want)}
		}
	}

	return &File{Header: h, Points: points, Auxiliary: aux}, nil
}

// DecodeBytes parses a complete file held in memory.
func DecodeBytes(data []byte, opts ReadOptions) (*File, error) {
	return Decode(bytes.NewReader(data), opts)
}

// ReadFile opens path on fsys, decodes it and closes it before returning.
func ReadFile(fsys fsutil.FileSystem, path string, opts ReadOptions) (*File, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	file, err := Decode(f, opts)
	if err != nil {
		if ioErr, ok := err.(*IOError); ok && ioErr.Path == "" {
			ioErr.Path = path
		}
		return nil, err
	}
	return file, nil
}
