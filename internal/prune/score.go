// Package prune ranks the Gaussians of a splat scene and keeps the most
// important fraction of them.
//
// Scoring is a pure two-pass computation over a ply.PointTable: the first
// pass gathers the corpus-wide percentiles used for normalisation, the
// second combines per-point opacity, volume and colour terms.
package prune

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/banshee-data/splatprune/internal/ply"
)

// Epsilon keeps percentile normalisation finite when a percentile is zero.
const Epsilon = 1e-8

const (
	volumePercentile = 0.90
	colorPercentile  = 0.95
)

// ScoreParams weights the three importance terms.
type ScoreParams struct {
	OpacityWeight float64
	ScaleWeight   float64
	ColorWeight   float64
	VolumePower   float64 // exponent applied to the clipped volume ratio
}

// DefaultScoreParams returns the standard 0.6/0.3/0.1 weighting with a
// volume exponent of 0.1.
func DefaultScoreParams() ScoreParams {
	return ScoreParams{
		OpacityWeight: 0.6,
		ScaleWeight:   0.3,
		ColorWeight:   0.1,
		VolumePower:   0.1,
	}
}

// Validate rejects negative or non-finite parameters.
func (p ScoreParams) Validate() error {
	checks := []struct {
		name string
		v    float64
	}{
		{"opacity_weight", p.OpacityWeight},
		{"scale_weight", p.ScaleWeight},
		{"color_weight", p.ColorWeight},
		{"volume_power", p.VolumePower},
	}
	for _, c := range checks {
		if math.IsNaN(c.v) || math.IsInf(c.v, 0) || c.v < 0 {
			return &InvalidArgumentError{Name: c.name, Value: c.v, Reason: "must be a finite non-negative number"}
		}
	}
	return nil
}

// MaxScore is the upper bound of any importance score under p.
func (p ScoreParams) MaxScore() float64 {
	return p.OpacityWeight + p.ScaleWeight + p.ColorWeight
}

// Normalization holds the corpus-wide statistics of one scoring pass.
type Normalization struct {
	VolumeP90 float64
	ColorP95  float64
}

// Sigmoid maps an opacity logit to (0,1).
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Volume returns the ellipsoid volume proxy exp(s0)*exp(s1)*exp(s2).
func Volume(pt *ply.Point) float64 {
	return math.Exp(float64(pt.Scale[0])) * math.Exp(float64(pt.Scale[1])) * math.Exp(float64(pt.Scale[2]))
}

// ColorIntensity returns the Euclidean norm of the DC colour term.
func ColorIntensity(pt *ply.Point) float64 {
	r, g, b := float64(pt.DC[0]), float64(pt.DC[1]), float64(pt.DC[2])
	return math.Sqrt(r*r + g*g + b*b)
}

// ComputeImportance scores every point. The result has one entry per point
// in table order and each score lies in [0, p.MaxScore()] for finite input.
func ComputeImportance(points ply.PointTable, p ScoreParams) ([]float64, Normalization) {
	n := len(points)
	volumes := make([]float64, n)
	colors := make([]float64, n)
	for i := range points {
		volumes[i] = Volume(&points[i])
		colors[i] = ColorIntensity(&points[i])
	}

	norm := Normalization{
		VolumeP90: percentile(volumes, volumePercentile),
		ColorP95:  percentile(colors, colorPercentile),
	}

	scores := make([]float64, n)
	for i := range points {
		opacity := Sigmoid(float64(points[i].Opacity))
		scale := math.Pow(clip01(volumes[i]/(norm.VolumeP90+Epsilon)), p.VolumePower)
		color := clip01(colors[i] / (norm.ColorP95 + Epsilon))
		scores[i] = p.OpacityWeight*opacity + p.ScaleWeight*scale + p.ColorWeight*color
	}
	return scores, norm
}

// OpacityScores returns sigmoid(opacity) for every point.
func OpacityScores(points ply.PointTable) []float64 {
	scores := make([]float64, len(points))
	for i := range points {
		scores[i] = Sigmoid(float64(points[i].Opacity))
	}
	return scores
}

// RandomScores draws one uniform [0,1) value per point from rng.
func RandomScores(n int, rng *rand.Rand) []float64 {
	scores := make([]float64, n)
	for i := range scores {
		scores[i] = rng.Float64()
	}
	return scores
}

// percentile returns the q-quantile of values, interpolating linearly
// between the order statistics around rank (n-1)*q, or 0 for an empty
// slice. values is not modified.
func percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	h := float64(len(sorted)-1) * q
	lo := int(math.Floor(h))
	hi := int(math.Ceil(h))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[hi]-sorted[lo])
}

func clip01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
