package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// weightSeries returns the weight names in order with their values.
func weightSeries(weights map[string]float64) ([]string, []opts.BarData) {
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)

	data := make([]opts.BarData, len(names))
	for i, name := range names {
		data[i] = opts.BarData{Value: weights[name]}
	}
	return names, data
}

// handleWeightsChart renders the current expression weights as a bar chart.
func (ws *WebServer) handleWeightsChart(w http.ResponseWriter, r *http.Request) {
	snap := ws.source.Snapshot()
	names, data := weightSeries(snap.Weights)

	subtitle := "no blend shapes received"
	if !snap.WeightsUpdatedAt.IsZero() {
		subtitle = fmt.Sprintf("%d weights, updated %s", len(names), snap.WeightsUpdatedAt.Format(time.RFC3339Nano))
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Expression weights", Width: "100%", Height: "720px"}),
		charts.WithTitleOpts(opts.Title{Title: "Expression Weights", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Rotate: 60, Interval: "0"}}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1, Name: "weight"}),
	)
	bar.SetXAxis(names).AddSeries("weight", data)

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
