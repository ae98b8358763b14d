// Package report turns a register trace database into offline artefacts:
// interactive HTML charts, a latency summary and sensor tuning plots.
package report

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/davidplowman/imx258/internal/fsutil"
	"github.com/davidplowman/imx258/internal/trace"
)

// Generator writes report files for trace sessions into one output
// directory. All file I/O goes through the FileSystem so tests can run
// against memory.
type Generator struct {
	store  *trace.Store
	fs     fsutil.FileSystem
	outDir string
}

func NewGenerator(store *trace.Store, fs fsutil.FileSystem, outDir string) *Generator {
	return &Generator{store: store, fs: fs, outDir: outDir}
}

// GenerateAll writes every report for the session and returns the paths
// written.
func (g *Generator) GenerateAll(sessionID string) ([]string, error) {
	if err := g.fs.MkdirAll(g.outDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	var paths []string
	for _, gen := range []func(string) (string, error){
		g.RegisterTimeline,
		g.WriteCountsChart,
		g.WriteLatencyReport,
	} {
		path, err := gen(sessionID)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	path, err := g.ExposureEnvelopePNG()
	if err != nil {
		return paths, err
	}
	return append(paths, path), nil
}

// RegisterTimeline writes an HTML scatter chart of the session's register
// writes: time on X, register address on Y, written value as the colour.
func (g *Generator) RegisterTimeline(sessionID string) (string, error) {
	points, err := g.store.WriteSeries(sessionID)
	if err != nil {
		return "", fmt.Errorf("load write series: %w", err)
	}
	if len(points) == 0 {
		return "", fmt.Errorf("session %s has no successful writes", sessionID)
	}

	data := make([]opts.ScatterData, 0, len(points))
	maxValue := float64(0)
	for _, p := range points {
		if float64(p.Value) > maxValue {
			maxValue = float64(p.Value)
		}
		data = append(data, opts.ScatterData{Value: []interface{}{p.ElapsedMS, p.Addr, p.Value}})
	}
	if maxValue == 0 {
		maxValue = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Register Timeline", Theme: "dark", Width: "1200px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{Title: "Register Write Timeline", Subtitle: fmt.Sprintf("session=%s writes=%d", sessionID, len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time (ms)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Register", NameLocation: "middle", NameGap: 45}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxValue),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#31688e", "#35b779", "#fde725"}},
		}),
	)
	scatter.AddSeries("writes", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		return "", fmt.Errorf("render timeline: %w", err)
	}

	path := filepath.Join(g.outDir, "register_timeline.html")
	if err := g.fs.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("write timeline: %w", err)
	}
	return path, nil
}

// WriteCountsChart writes an HTML bar chart of write counts per register
// address for the session.
func (g *Generator) WriteCountsChart(sessionID string) (string, error) {
	counts, err := g.store.WriteCounts(sessionID)
	if err != nil {
		return "", fmt.Errorf("load write counts: %w", err)
	}
	if len(counts) == 0 {
		return "", fmt.Errorf("session %s has no writes", sessionID)
	}

	x := make([]string, 0, len(counts))
	y := make([]opts.BarData, 0, len(counts))
	for _, c := range counts {
		x = append(x, fmt.Sprintf("0x%04x", c.Addr))
		y = append(y, opts.BarData{Value: c.Count})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Write Counts", Width: "100%", Height: "720px"}),
		charts.WithTitleOpts(opts.Title{Title: "Register Write Counts", Subtitle: fmt.Sprintf("session=%s registers=%d", sessionID, len(counts))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("writes", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return "", fmt.Errorf("render write counts: %w", err)
	}

	path := filepath.Join(g.outDir, "write_counts.html")
	if err := g.fs.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("write counts chart: %w", err)
	}
	return path, nil
}
