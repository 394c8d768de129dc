package prune

import (
	"math"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/splatprune/internal/ply"
	"github.com/banshee-data/splatprune/internal/synth"
	"github.com/banshee-data/splatprune/internal/testutil"
)

func TestParseMethod(t *testing.T) {
	for _, in := range []string{"importance", "Opacity", " random "} {
		m, err := ParseMethod(in)
		require.NoError(t, err, in)
		assert.Contains(t, Methods, m)
	}

	_, err := ParseMethod("gradient")
	var inv *InvalidArgumentError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, "method", inv.Name)
}

func TestValidateKeepRatio(t *testing.T) {
	for _, r := range []float64{1e-9, 0.5, 1} {
		assert.NoError(t, ValidateKeepRatio(r), "ratio %v", r)
	}
	for _, r := range []float64{0, -0.1, 1.0000001, math.NaN(), math.Inf(1)} {
		assert.Error(t, ValidateKeepRatio(r), "ratio %v", r)
	}
}

func TestKeepCount(t *testing.T) {
	tests := []struct {
		n     int
		ratio float64
		want  int
	}{
		{1000, 1.0, 1000},
		{1000, 0.5, 500},
		{1000, 0.01, 10},
		{1000, 0.0009, 0},
		{7, 0.5, 3},
		{0, 0.5, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KeepCount(tt.n, tt.ratio), "n=%d ratio=%v", tt.n, tt.ratio)
	}
}

func TestTopN(t *testing.T) {
	scores := []float64{0.1, 0.9, 0.5, 0.9, math.NaN(), 0.7}

	if diff := cmp.Diff([]int{1, 3, 5}, TopN(scores, 3)); diff != "" {
		t.Errorf("TopN mismatch (-want +got):\n%s", diff)
	}
	// Ties favour the earlier index.
	assert.Equal(t, []int{1}, TopN(scores, 1))
	// NaN ranks last.
	assert.Equal(t, []int{0, 1, 2, 3, 5}, TopN(scores, 5))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, TopN(scores, 6))
	assert.Empty(t, TopN(scores, 0))
	assert.Empty(t, TopN(nil, 3))
	assert.Len(t, TopN(scores, 99), 6)
}

func TestSelect_CountLawAndOrder(t *testing.T) {
	points := synth.Generate(1000, 21, synth.Options{}).Points

	for _, method := range Methods {
		for _, ratio := range []float64{1.0, 0.5, 0.01, 0.0005} {
			sel, err := Select(points, SelectOptions{KeepRatio: ratio, Method: method, Params: DefaultScoreParams(), Seed: 3})
			require.NoError(t, err)

			want := int(math.Floor(1000 * ratio))
			assert.Len(t, sel.Points, want, "%s ratio %v", method, ratio)
			assert.Len(t, sel.Scores, 1000)
			assert.True(t, sort.IntsAreSorted(sel.Indices), "%s ratio %v", method, ratio)
			assert.True(t, testutil.IsSubsequence(points, sel.Points), "%s ratio %v", method, ratio)
			for i := 1; i < len(sel.Indices); i++ {
				assert.Less(t, sel.Indices[i-1], sel.Indices[i])
			}
		}
	}
}

func TestSelect_KeepAllIsIdentity(t *testing.T) {
	points := synth.Generate(64, 2, synth.Options{Camera: true}).Points
	for _, method := range Methods {
		sel, err := Select(points, SelectOptions{KeepRatio: 1, Method: method, Params: DefaultScoreParams()})
		require.NoError(t, err)
		assert.Equal(t, points, sel.Points, "method %s", method)
	}
}

func TestSelect_OpacityMonotonicity(t *testing.T) {
	points := synth.Generate(777, 13, synth.Options{}).Points
	sel, err := Select(points, SelectOptions{KeepRatio: 0.3, Method: MethodOpacity})
	require.NoError(t, err)

	kept := make(map[int]bool, len(sel.Indices))
	minKept := math.Inf(1)
	for _, i := range sel.Indices {
		kept[i] = true
		minKept = math.Min(minKept, sel.Scores[i])
	}
	for i, s := range sel.Scores {
		if !kept[i] {
			assert.LessOrEqual(t, s, minKept, "pruned point %d outranks a kept point", i)
		}
	}
}

func TestSelect_OpacityScenario(t *testing.T) {
	points := synth.Generate(1000, 99, synth.Options{LinearOpacity: true}).Points
	sel, err := Select(points, SelectOptions{KeepRatio: 0.5, Method: MethodOpacity})
	require.NoError(t, err)
	require.Len(t, sel.Points, 500)

	logits := make([]float64, len(points))
	for i, p := range points {
		logits[i] = float64(p.Opacity)
	}
	sort.Float64s(logits)
	median := (logits[499] + logits[500]) / 2

	for _, p := range sel.Points {
		assert.GreaterOrEqual(t, float64(p.Opacity), median)
	}
}

func TestSelect_ImportanceKeepsSubstantialPoints(t *testing.T) {
	points := ply.PointTable{
		{Opacity: -6, Scale: [3]float32{-6, -6, -6}},
		{Opacity: 5, DC: [3]float32{0.8, 0.8, 0.8}, Scale: [3]float32{-1, -1, -1}},
		{Opacity: -6, Scale: [3]float32{-6, -6, -6}},
		{Opacity: 4, DC: [3]float32{0.5, 0.2, 0.1}, Scale: [3]float32{-2, -2, -2}},
	}
	sel, err := Select(points, SelectOptions{KeepRatio: 0.5, Method: MethodImportance, Params: DefaultScoreParams()})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, sel.Indices)
}

func TestSelect_SeededRandomIsReproducible(t *testing.T) {
	points := synth.Generate(500, 4, synth.Options{}).Points
	opts := SelectOptions{KeepRatio: 0.2, Method: MethodRandom, Seed: 42}

	a, err := Select(points, opts)
	require.NoError(t, err)
	b, err := Select(points, opts)
	require.NoError(t, err)
	assert.Equal(t, a.Indices, b.Indices)

	opts.Seed = 43
	c, err := Select(points, opts)
	require.NoError(t, err)
	assert.NotEqual(t, a.Indices, c.Indices)
}

func TestSelect_EmptyTable(t *testing.T) {
	for _, method := range Methods {
		sel, err := Select(ply.PointTable{}, SelectOptions{KeepRatio: 0.5, Method: method, Params: DefaultScoreParams()})
		require.NoError(t, err)
		assert.Empty(t, sel.Points)
		assert.Empty(t, sel.Indices)
	}
}

func TestSelect_InvalidArguments(t *testing.T) {
	points := synth.Generate(10, 1, synth.Options{}).Points

	tests := []struct {
		name  string
		opts  SelectOptions
		field string
	}{
		{"zero ratio", SelectOptions{KeepRatio: 0, Method: MethodOpacity}, "keep_ratio"},
		{"ratio above one", SelectOptions{KeepRatio: 1.5, Method: MethodOpacity}, "keep_ratio"},
		{"unknown method", SelectOptions{KeepRatio: 0.5, Method: "gradient"}, "method"},
		{"negative weight", SelectOptions{KeepRatio: 0.5, Method: MethodImportance, Params: ScoreParams{ScaleWeight: -1}}, "scale_weight"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Select(points, tt.opts)
			var inv *InvalidArgumentError
			require.ErrorAs(t, err, &inv)
			assert.Equal(t, tt.field, inv.Name)
			assert.Equal(t, KindInvalidArgument, KindOf(err))
		})
	}
}
