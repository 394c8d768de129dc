// Package ply reads and writes binary little-endian PLY files that carry a
// 3D Gaussian Splatting scene.
//
// The vertex element is decoded into a fixed 14-field record; every other
// element is auxiliary metadata whose payload is carried as opaque bytes.
//
// FILE LAYOUT:
//
//	ply
//	format binary_little_endian 1.0
//	element vertex <N>
//	property float x ... property float rot_3      (14 properties)
//	[element <aux> <count> / property <type> <name> ...]*
//	end_header
//	<N x 56 bytes of packed little-endian float32 records>
//	<auxiliary bytes, copied verbatim>
package ply

// Format constants for the Gaussian vertex record.
const (
	VertexElement   = "vertex"                    // reserved name of the point element
	FieldsPerRecord = 14                          // x,y,z, f_dc_0..2, opacity, scale_0..2, rot_0..3
	FieldSize       = 4                           // float32
	RecordSize      = FieldsPerRecord * FieldSize // 56 bytes per point

	MagicLine  = "ply"
	FormatLine = "format binary_little_endian 1.0"
	EndHeader  = "end_header"

	formatBinaryLE = "binary_little_endian"
)

// Property is one (type, name) declaration inside an element.
type Property struct {
	Name string
	Type string
}

// Element is a declared element with its ordered property list.
type Element struct {
	Name       string
	Count      int
	Properties []Property
}

var vertexSchema = [FieldsPerRecord]Property{
	{Name: "x", Type: "float"},
	{Name: "y", Type: "float"},
	{Name: "z", Type: "float"},
	{Name: "f_dc_0", Type: "float"},
	{Name: "f_dc_1", Type: "float"},
	{Name: "f_dc_2", Type: "float"},
	{Name: "opacity", Type: "float"},
	{Name: "scale_0", Type: "float"},
	{Name: "scale_1", Type: "float"},
	{Name: "scale_2", Type: "float"},
	{Name: "rot_0", Type: "float"},
	{Name: "rot_1", Type: "float"},
	{Name: "rot_2", Type: "float"},
	{Name: "rot_3", Type: "float"},
}

// VertexSchema returns the canonical vertex property list in record order.
func VertexSchema() []Property {
	out := make([]Property, FieldsPerRecord)
	copy(out, vertexSchema[:])
	return out
}

// Point is one Gaussian. Opacity is stored as a pre-sigmoid logit and
// Scale as the natural log of the per-axis extent; Rotation is the stored,
// unnormalised quaternion.
type Point struct {
	X, Y, Z  float32
	DC       [3]float32
	Opacity  float32
	Scale    [3]float32
	Rotation [4]float32
}

// fields flattens the point in record order.
func (p *Point) fields() [FieldsPerRecord]float32 {
	return [FieldsPerRecord]float32{
		p.X, p.Y, p.Z,
		p.DC[0], p.DC[1], p.DC[2],
		p.Opacity,
		p.Scale[0], p.Scale[1], p.Scale[2],
		p.Rotation[0], p.Rotation[1], p.Rotation[2], p.Rotation[3],
	}
}

func pointFromFields(f [FieldsPerRecord]float32) Point {
	return Point{
		X: f[0], Y: f[1], Z: f[2],
		DC:       [3]float32{f[3], f[4], f[5]},
		Opacity:  f[6],
		Scale:    [3]float32{f[7], f[8], f[9]},
		Rotation: [4]float32{f[10], f[11], f[12], f[13]},
	}
}

// PointTable is the decoded vertex array in file order. Callers treat it as
// immutable; Subset returns a new table.
type PointTable []Point

// Len returns the number of points.
func (t PointTable) Len() int { return len(t) }

// Subset returns a new table holding the points at indices, in the order given.
func (t PointTable) Subset(indices []int) PointTable {
	out := make(PointTable, len(indices))
	for i, idx := range indices {
		out[i] = t[idx]
	}
	return out
}

// scalarSizes maps PLY scalar type names (both spellings) to byte widths.
var scalarSizes = map[string]int{
	"char": 1, "int8": 1,
	"uchar": 1, "uint8": 1,
	"short": 2, "int16": 2,
	"ushort": 2, "uint16": 2,
	"int": 4, "int32": 4,
	"uint": 4, "uint32": 4,
	"float": 4, "float32": 4,
	"double": 8, "float64": 8,
}

// ScalarSize returns the byte width of a scalar PLY type.
func ScalarSize(typ string) (int, bool) {
	n, ok := scalarSizes[typ]
	return n, ok
}
