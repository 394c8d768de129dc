package ply

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/banshee-data/splatprune/internal/fsutil"
)

// EncodeHeader renders a canonical header for count points followed by the
// given auxiliary declarations. Input comments are not carried over.
func EncodeHeader(count int, aux []Element) string {
	var b strings.Builder
	b.WriteString(MagicLine + "\n")
	b.WriteString(FormatLine + "\n")
	fmt.Fprintf(&b, "element %s %d\n", VertexElement, count)
	for _, p := range vertexSchema {
		fmt.Fprintf(&b, "property %s %s\n", p.Type, p.Name)
	}
	for _, el := range aux {
		fmt.Fprintf(&b, "element %s %d\n", el.Name, el.Count)
		for _, p := range el.Properties {
			fmt.Fprintf(&b, "property %s %s\n", p.Type, p.Name)
		}
	}
	b.WriteString(EndHeader + "\n")
	return b.String()
}

// Encode writes a complete file to w: canonical header, packed records and
// the auxiliary bytes unchanged. It returns the number of bytes written.
func Encode(w io.Writer, points PointTable, aux []Element, auxData []byte) (int64, error) {
	bw := bufio.NewWriterSize(w, 64*1024)
	var written int64

	n, err := bw.WriteString(EncodeHeader(len(points), aux))
	written += int64(n)
	if err != nil {
		return written, err
	}

	var rec [RecordSize]byte
	for i := range points {
		f := points[i].fields()
		for j, v := range f {
			binary.LittleEndian.PutUint32(rec[j*FieldSize:], math.Float32bits(v))
		}
		n, err = bw.Write(rec[:])
		written += int64(n)
		if err != nil {
			return written, err
		}
	}

	n, err = bw.Write(auxData)
	written += int64(n)
	if err != nil {
		return written, err
	}
	return written, bw.Flush()
}

// WriteFile encodes to path on fsys. The file appears only once it is
// complete; a failed write leaves any existing file at path untouched.
func WriteFile(fsys fsutil.FileSystem, path string, points PointTable, aux []Element, auxData []byte) (int64, error) {
	n, err := fsutil.WriteAtomic(fsys, path, func(w io.Writer) error {
		_, err := Encode(w, points, aux, auxData)
		return err
	})
	if err != nil {
		return 0, &IOError{Op: "write", Path: path, Err: err}
	}
	return n, nil
}
