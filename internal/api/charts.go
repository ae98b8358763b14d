package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/davidplowman/imx258/internal/httputil"
)

// showRegisterChart renders a quick scatter plot (HTML) of the register
// writes in a trace session using go-echarts. This is a debugging-only
// endpoint: X is time since the first write, Y the register address, and
// the colour scale the written value.
func (s *Server) showRegisterChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.store == nil {
		httputil.NotFound(w, "register tracing is disabled")
		return
	}

	session := r.URL.Query().Get("session")
	if session == "" {
		latest, err := s.store.LatestSession()
		if err != nil {
			httputil.NotFound(w, err.Error())
			return
		}
		session = latest
	}

	points, err := s.store.WriteSeries(session)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load write series: %v", err))
		return
	}
	if len(points) == 0 {
		httputil.NotFound(w, "no writes recorded for session")
		return
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
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Register Writes", Theme: "dark", Width: "1200px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{Title: "Register Write Activity", Subtitle: fmt.Sprintf("session=%s writes=%d", session, len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time (ms)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Register", NameLocation: "middle", NameGap: 45}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxValue),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}},
		}),
	)
	scatter.AddSeries("writes", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
