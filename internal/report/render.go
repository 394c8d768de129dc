package report

import (
	"fmt"
	"image/color"
	"io"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/splatprune/internal/fsutil"
)

var (
	keptColor   = color.RGBA{R: 0x35, G: 0xb7, B: 0x79, A: 0xff}
	prunedColor = color.RGBA{R: 0x44, G: 0x01, B: 0x54, A: 0xff}
)

// WriteHistogramPNG draws kept and pruned score counts per bin as
// overlaid bar charts.
func WriteHistogramPNG(w io.Writer, scores []float64, kept []int, title string) error {
	h := Bin(scores, kept, DefaultBins)

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Score bin"
	p.Y.Label.Text = "Points"

	width := vg.Points(6)
	pruned, err := plotter.NewBarChart(counts(h.Pruned), width)
	if err != nil {
		return fmt.Errorf("pruned bars: %w", err)
	}
	pruned.Color = prunedColor
	pruned.LineStyle.Width = 0

	keptBars, err := plotter.NewBarChart(counts(h.Kept), width)
	if err != nil {
		return fmt.Errorf("kept bars: %w", err)
	}
	keptBars.Color = keptColor
	keptBars.LineStyle.Width = 0
	keptBars.StackOn(pruned)

	p.Add(pruned, keptBars)
	p.Legend.Add("pruned", pruned)
	p.Legend.Add("kept", keptBars)
	p.Legend.Top = true
	p.NominalX(binLabels(h, 8)...)

	wt, err := p.WriterTo(10*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("png writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

// RenderHTML writes a self-contained page with a stacked bar chart of kept
// and pruned points per score bin.
func RenderHTML(w io.Writer, scores []float64, kept []int, title string) error {
	h := Bin(scores, kept, DefaultBins)
	s := Summarize(scores, kept)

	keptData := make([]opts.BarData, len(h.Kept))
	prunedData := make([]opts.BarData, len(h.Pruned))
	for i := range h.Kept {
		keptData[i] = opts.BarData{Value: h.Kept[i]}
		prunedData[i] = opts.BarData{Value: h.Pruned[i]}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: s.String()}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "score", NameLocation: "middle", NameGap: 30}),
		charts.WithYAxisOpts(opts.YAxis{Name: "points"}),
	)
	bar.SetXAxis(binLabels(h, 1)).
		AddSeries("pruned", prunedData, charts.WithBarChartOpts(opts.BarChart{Stack: "points"})).
		AddSeries("kept", keptData, charts.WithBarChartOpts(opts.BarChart{Stack: "points"}))

	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(bar)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	return nil
}

// WriteFiles writes <name>.scores.png and <name>.scores.html into dir and
// returns their paths.
func WriteFiles(fsys fsutil.FileSystem, dir, name string, scores []float64, kept []int) ([]string, error) {
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	title := fmt.Sprintf("%s importance scores", name)

	pngPath := filepath.Join(dir, name+".scores.png")
	if _, err := fsutil.WriteAtomic(fsys, pngPath, func(w io.Writer) error {
		return WriteHistogramPNG(w, scores, kept, title)
	}); err != nil {
		return nil, fmt.Errorf("write %s: %w", pngPath, err)
	}

	htmlPath := filepath.Join(dir, name+".scores.html")
	if _, err := fsutil.WriteAtomic(fsys, htmlPath, func(w io.Writer) error {
		return RenderHTML(w, scores, kept, title)
	}); err != nil {
		return []string{pngPath}, fmt.Errorf("write %s: %w", htmlPath, err)
	}
	return []string{pngPath, htmlPath}, nil
}

func counts(c []int) plotter.Values {
	v := make(plotter.Values, len(c))
	for i, n := range c {
		v[i] = float64(n)
	}
	return v
}

// binLabels labels every step-th bin with its lower edge and leaves the
// rest blank.
func binLabels(h Histogram, step int) []string {
	labels := make([]string, len(h.Kept))
	for i := range labels {
		if i%step == 0 {
			labels[i] = fmt.Sprintf("%.3f", h.Edges[i])
		}
	}
	return labels
}
