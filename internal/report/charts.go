// Package report renders session reports: go-echarts HTML pages for the
// browser and gonum/plot PNGs for download. It works on completed
// sessions only; the inputs are the stored session row, its transitions,
// and any aggregation windows overlapping the session.
package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/sitwell-data/posture.report/internal/session"
)

// echartsAssetsPrefix hosts the ECharts runtime. The device serves HTML
// only; the browser fetches the JS from here.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// Series colours. Aligned/not-aligned follow the verdict colours the UI
// shows; the rest come from the viridis ramp used on the debug charts.
const (
	colorAligned    = "#35b779"
	colorNotAligned = "#ff5252"
	colorMetric     = "#31688e"
	colorWindowAvg  = "#9e9e9e"
)

// secsInto converts an absolute frame timestamp to seconds since the
// session opened.
func secsInto(s *session.Session, tsNs int64) float64 {
	return float64(tsNs-s.StartNs) / 1e9
}

// timelineChart plots the verdict over the session as one point per
// transition: aligned verdicts at y=1, not aligned at y=0.
func timelineChart(s *session.Session, transitions []session.Transition) *charts.Scatter {
	aligned := make([]opts.ScatterData, 0, len(transitions))
	notAligned := make([]opts.ScatterData, 0, len(transitions))
	for _, tr := range transitions {
		pt := opts.ScatterData{Value: []interface{}{secsInto(s, tr.TsNs), boolToY(tr.Aligned)}}
		if tr.Aligned {
			aligned = append(aligned, pt)
		} else {
			notAligned = append(notAligned, pt)
		}
	}

	durationSecs := secsInto(s, s.EndNs)
	pad := durationSecs * 1.05
	if pad == 0 {
		pad = 1.0
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Posture Session Report", Theme: "dark", Width: "900px", Height: "360px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Verdict Timeline", Subtitle: fmt.Sprintf("session=%s frames=%d aligned=%.1f%% transitions=%d", s.ID, s.Frames, s.AlignedRatio*100, s.Transitions)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: pad, Name: "Seconds into session", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -0.5, Max: 1.5, Name: "Aligned", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("aligned", aligned, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}), charts.WithItemStyleOpts(opts.ItemStyle{Color: colorAligned}))
	scatter.AddSeries("not aligned", notAligned, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}), charts.WithItemStyleOpts(opts.ItemStyle{Color: colorNotAligned}))
	return scatter
}

func boolToY(aligned bool) int {
	if aligned {
		return 1
	}
	return 0
}

// metricChart plots the metric captured at each transition, one series
// per metric name, plus the window averages from any rollups supplied.
// A session normally holds a single camera facing, so one metric series
// carries the data and the other stays empty.
func metricChart(s *session.Session, transitions []session.Transition, rollups []session.Rollup) *charts.Scatter {
	byMetric := map[string][]opts.ScatterData{}
	maxVal := 0.0
	for _, tr := range transitions {
		byMetric[tr.Metric] = append(byMetric[tr.Metric], opts.ScatterData{Value: []interface{}{secsInto(s, tr.TsNs), tr.Value}})
		if tr.Value > maxVal {
			maxVal = tr.Value
		}
	}

	windowAvgs := make([]opts.ScatterData, 0, len(rollups))
	for _, r := range rollups {
		mid := (r.WindowStartNs + r.WindowEndNs) / 2
		avg := r.AvgNeckDeg
		if avg == 0 {
			avg = r.AvgNoseOffsetPx
		}
		if avg == 0 {
			continue
		}
		windowAvgs = append(windowAvgs, opts.ScatterData{Value: []interface{}{secsInto(s, mid), avg}})
		if avg > maxVal {
			maxVal = avg
		}
	}

	durationSecs := secsInto(s, s.EndNs)
	pad := durationSecs * 1.05
	if pad == 0 {
		pad = 1.0
	}
	if maxVal == 0 {
		maxVal = 1.0
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "900px", Height: "360px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Metric at Verdict Changes", Subtitle: fmt.Sprintf("session=%s", s.ID)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: pad, Name: "Seconds into session", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: maxVal * 1.1, Name: "Metric value", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries(session.MetricNeckAngleDeg, byMetric[session.MetricNeckAngleDeg], charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}), charts.WithItemStyleOpts(opts.ItemStyle{Color: colorMetric}))
	scatter.AddSeries(session.MetricNoseOffsetPx, byMetric[session.MetricNoseOffsetPx], charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}), charts.WithItemStyleOpts(opts.ItemStyle{Color: colorNotAligned}))
	if len(windowAvgs) > 0 {
		scatter.AddSeries("window avg", windowAvgs, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}), charts.WithItemStyleOpts(opts.ItemStyle{Color: colorWindowAvg}))
	}
	return scatter
}

// countsBar summarises the session's frame counters.
func countsBar(s *session.Session) *charts.Bar {
	x := []string{"Frames", "Aligned frames", "Transitions"}
	y := []opts.BarData{
		{Value: s.Frames},
		{Value: s.AlignedFrames},
		{Value: s.Transitions},
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "900px", Height: "360px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Session Counters", Subtitle: fmt.Sprintf("aligned ratio %.3f", s.AlignedRatio)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("counters", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

// percentilesBar shows the per-facing percentile summary. Facings with no
// samples carry all-zero percentiles and are left off the chart.
func percentilesBar(s *session.Session) *charts.Bar {
	var x []string
	var y []opts.BarData
	if s.P50NeckDeg > 0 || s.P95NeckDeg > 0 {
		x = append(x, "p50 neck (deg)", "p85 neck (deg)", "p95 neck (deg)")
		y = append(y, opts.BarData{Value: s.P50NeckDeg}, opts.BarData{Value: s.P85NeckDeg}, opts.BarData{Value: s.P95NeckDeg})
	}
	if s.P50NoseOffsetPx > 0 || s.P95NoseOffsetPx > 0 {
		x = append(x, "p50 nose (px)", "p85 nose (px)", "p95 nose (px)")
		y = append(y, opts.BarData{Value: s.P50NoseOffsetPx}, opts.BarData{Value: s.P85NoseOffsetPx}, opts.BarData{Value: s.P95NoseOffsetPx})
	}
	if len(x) == 0 {
		return nil
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "900px", Height: "360px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Metric Percentiles"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("percentiles", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

// RenderSessionCharts writes the full HTML report page for one session.
func RenderSessionCharts(w io.Writer, s *session.Session, transitions []session.Transition, rollups []session.Rollup) error {
	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(
		timelineChart(s, transitions),
		metricChart(s, transitions, rollups),
		countsBar(s),
	)
	if pb := percentilesBar(s); pb != nil {
		page.AddCharts(pb)
	}
	return page.Render(w)
}
