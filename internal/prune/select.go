package prune

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sort"
	"strings"

	"github.com/banshee-data/splatprune/internal/ply"
)

// Method selects how points are ranked.
type Method string

const (
	MethodImportance Method = "importance"
	MethodOpacity    Method = "opacity"
	MethodRandom     Method = "random"
)

// Methods lists the supported ranking methods.
var Methods = []Method{MethodImportance, MethodOpacity, MethodRandom}

// ParseMethod validates a method name. Matching is case-insensitive.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(Methods, m) {
		return m, nil
	}
	return "", &InvalidArgumentError{Name: "method", Value: s, Reason: fmt.Sprintf("must be one of %v", Methods)}
}

// ValidateKeepRatio accepts ratios in (0, 1].
func ValidateKeepRatio(r float64) error {
	if math.IsNaN(r) || r <= 0 || r > 1 {
		return &InvalidArgumentError{Name: "keep_ratio", Value: r, Reason: "must be in (0, 1]"}
	}
	return nil
}

// KeepCount returns floor(n * ratio).
func KeepCount(n int, ratio float64) int {
	k := int(math.Floor(float64(n) * ratio))
	return max(0, min(k, n))
}

// Selection is the retained subset of a point table.
type Selection struct {
	Indices []int // strictly increasing original indices
	Points  ply.PointTable
	Scores  []float64 // score of every input point, in table order
}

// SelectOptions configures Select.
type SelectOptions struct {
	KeepRatio float64
	Method    Method
	Params    ScoreParams
	// Seed makes MethodRandom reproducible. Zero draws a fresh seed.
	Seed uint64
}

// Scores ranks points with the configured method.
func Scores(points ply.PointTable, opts SelectOptions) ([]float64, error) {
	switch opts.Method {
	case MethodImportance:
		if err := opts.Params.Validate(); err != nil {
			return nil, err
		}
		scores, _ := ComputeImportance(points, opts.Params)
		return scores, nil
	case MethodOpacity:
		return OpacityScores(points), nil
	case MethodRandom:
		return RandomScores(len(points), newRand(opts.Seed)), nil
	default:
		return nil, &InvalidArgumentError{Name: "method", Value: string(opts.Method), Reason: fmt.Sprintf("must be one of %v", Methods)}
	}
}

// Select scores points and keeps the top floor(len*KeepRatio) of them in
// their original order.
func Select(points ply.PointTable, opts SelectOptions) (*Selection, error) {
	if err := ValidateKeepRatio(opts.KeepRatio); err != nil {
		return nil, err
	}
	scores, err := Scores(points, opts)
	if err != nil {
		return nil, err
	}

	indices := TopN(scores, KeepCount(len(points), opts.KeepRatio))
	return &Selection{
		Indices: indices,
		Points:  points.Subset(indices),
		Scores:  scores,
	}, nil
}

// TopN returns the indices of the n highest scores sorted ascending.
// Equal scores favour the earlier index; NaN ranks below every number.
func TopN(scores []float64, n int) []int {
	n = max(0, min(n, len(scores)))
	if n == len(scores) {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return ranksAbove(scores[order[a]], scores[order[b]])
	})

	kept := order[:n:n]
	sort.Ints(kept)
	return kept
}

func ranksAbove(a, b float64) bool {
	if math.IsNaN(b) {
		return !math.IsNaN(a)
	}
	return a > b
}

func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
