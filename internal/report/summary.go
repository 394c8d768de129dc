// Package report describes the score distribution of a prune run as a text
// summary, a PNG histogram and an interactive HTML chart.
package report

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultBins is the histogram resolution used by the file writers.
const DefaultBins = 40

// Summary holds descriptive statistics of one run's scores. NaN scores are
// excluded from every statistic.
type Summary struct {
	Count     int
	Kept      int
	Mean      float64
	StdDev    float64
	Min       float64
	P50       float64
	P90       float64
	Max       float64
	Threshold float64 // lowest retained score, NaN when nothing was kept
}

// String renders the summary on one line.
func (s Summary) String() string {
	return fmt.Sprintf("scores n=%d kept=%d mean=%.4f sd=%.4f min=%.4f p50=%.4f p90=%.4f max=%.4f threshold=%.4f",
		s.Count, s.Kept, s.Mean, s.StdDev, s.Min, s.P50, s.P90, s.Max, s.Threshold)
}

// Summarize computes statistics over scores. kept lists retained indices.
func Summarize(scores []float64, kept []int) Summary {
	s := Summary{Count: len(scores), Kept: len(kept), Threshold: math.NaN()}

	finite := finiteSorted(scores)
	if len(finite) > 0 {
		s.Mean, s.StdDev = stat.MeanStdDev(finite, nil)
		if len(finite) == 1 {
			s.StdDev = 0
		}
		s.Min = floats.Min(finite)
		s.Max = floats.Max(finite)
		s.P50 = stat.Quantile(0.5, stat.LinInterp, finite, nil)
		s.P90 = stat.Quantile(0.9, stat.LinInterp, finite, nil)
	}

	for _, i := range kept {
		if v := scores[i]; !math.IsNaN(v) && (math.IsNaN(s.Threshold) || v < s.Threshold) {
			s.Threshold = v
		}
	}
	return s
}

// Histogram splits scores into equal-width bins, separating kept and pruned
// points. Edges has len(Kept)+1 entries.
type Histogram struct {
	Edges  []float64
	Kept   []int
	Pruned []int
}

// Bin builds a Histogram over the finite range of scores.
func Bin(scores []float64, kept []int, bins int) Histogram {
	if bins < 1 {
		bins = 1
	}
	h := Histogram{Edges: make([]float64, bins+1), Kept: make([]int, bins), Pruned: make([]int, bins)}

	finite := finiteSorted(scores)
	lo, hi := 0.0, 1.0
	if len(finite) > 0 {
		lo, hi = finite[0], finite[len(finite)-1]
	}
	if hi <= lo {
		hi = lo + 1
	}
	floats.Span(h.Edges, lo, hi)

	isKept := make(map[int]bool, len(kept))
	for _, i := range kept {
		isKept[i] = true
	}
	width := (hi - lo) / float64(bins)
	for i, v := range scores {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		b := min(int((v-lo)/width), bins-1)
		if isKept[i] {
			h.Kept[b]++
		} else {
			h.Pruned[b]++
		}
	}
	return h
}

func finiteSorted(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}
