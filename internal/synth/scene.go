// Package synth generates reproducible Gaussian splat scenes for tests,
// benchmarks and the gen-splat tool.
package synth

import (
	"bytes"
	"encoding/binary"
	"math"
	"math/rand/v2"

	"github.com/banshee-data/splatprune/internal/ply"
)

// Value ranges of generated points.
const (
	MinOpacityLogit = -5.0
	MaxOpacityLogit = 5.0
	MinLogScale     = -6.0
	MaxLogScale     = -1.0
	MaxDC           = 1.0
	SceneExtent     = 10.0
)

// Options controls scene generation.
type Options struct {
	// LinearOpacity spaces opacity logits evenly from MinOpacityLogit to
	// MaxOpacityLogit in point order instead of drawing them at random.
	LinearOpacity bool

	// Camera appends the camera metadata elements written by single-image
	// splat generators after the vertex array.
	Camera bool

	// Width and Height are recorded in the image_size element. Zero uses 1920x1080.
	Width, Height uint32
}

// Scene is a generated point table with its auxiliary payload.
type Scene struct {
	Points    ply.PointTable
	Auxiliary []ply.Element
	AuxData   []byte
}

// Generate returns n points drawn from a PCG source seeded with seed.
func Generate(n int, seed uint64, opts Options) *Scene {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	points := make(ply.PointTable, n)
	for i := range points {
		pt := &points[i]
		pt.X = uniform(rng, -SceneExtent, SceneExtent)
		pt.Y = uniform(rng, -SceneExtent, SceneExtent)
		pt.Z = uniform(rng, -SceneExtent, SceneExtent)
		for c := range pt.DC {
			pt.DC[c] = uniform(rng, -MaxDC, MaxDC)
		}
		if opts.LinearOpacity {
			pt.Opacity = linear(i, n, MinOpacityLogit, MaxOpacityLogit)
		} else {
			pt.Opacity = uniform(rng, MinOpacityLogit, MaxOpacityLogit)
		}
		for a := range pt.Scale {
			pt.Scale[a] = uniform(rng, MinLogScale, MaxLogScale)
		}
		pt.Rotation = unitQuaternion(rng)
	}

	s := &Scene{Points: points}
	if opts.Camera {
		s.Auxiliary, s.AuxData = cameraBlock(opts.Width, opts.Height)
	}
	return s
}

func uniform(rng *rand.Rand, lo, hi float64) float32 {
	return float32(lo + rng.Float64()*(hi-lo))
}

func linear(i, n int, lo, hi float64) float32 {
	if n <= 1 {
		return float32(lo)
	}
	return float32(lo + float64(i)*(hi-lo)/float64(n-1))
}

// unitQuaternion samples a uniformly distributed rotation.
func unitQuaternion(rng *rand.Rand) [4]float32 {
	var q [4]float64
	var norm float64
	for norm < 1e-12 {
		norm = 0
		for i := range q {
			q[i] = rng.NormFloat64()
			norm += q[i] * q[i]
		}
	}
	norm = math.Sqrt(norm)
	return [4]float32{float32(q[0] / norm), float32(q[1] / norm), float32(q[2] / norm), float32(q[3] / norm)}
}

// cameraBlock builds the per-image camera elements: a 4x4 extrinsic, a
// 3x3 intrinsic, image size, frame range, disparity range, colour space and
// a format version.
func cameraBlock(width, height uint32) ([]ply.Element, []byte) {
	if width == 0 || height == 0 {
		width, height = 1920, 1080
	}
	focal := float32(width)
	extrinsic := []float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}
	intrinsic := []float32{focal, 0, float32(width) / 2, 0, focal, float32(height) / 2, 0, 0, 1}

	var buf bytes.Buffer
	write := func(v any) {
		// bytes.Buffer writes cannot fail.
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}
	write(extrinsic)
	write(intrinsic)
	write([]uint32{width, height})
	write([]int32{1, 1})
	write([]float32{0.01, 1})
	write([]uint8{1})
	write([]uint8{1, 5, 0})

	elements := []ply.Element{
		single("extrinsic", 16, "float"),
		single("intrinsic", 9, "float"),
		single("image_size", 2, "uint"),
		single("frame", 2, "int"),
		single("disparity", 2, "float"),
		single("color_space", 1, "uchar"),
		single("version", 3, "uchar"),
	}
	return elements, buf.Bytes()
}

func single(name string, count int, typ string) ply.Element {
	return ply.Element{Name: name, Count: count, Properties: []ply.Property{{Name: name, Type: typ}}}
}
