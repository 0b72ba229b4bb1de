package report

import (
	"errors"
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/sitwell-data/posture.report/internal/session"
)

// ErrNoSamples is returned when a session recorded no metric samples to
// plot.
var ErrNoSamples = errors.New("no metric samples recorded for session")

// metricSamples splits transition values by metric name and returns the
// dominant metric's samples. The two metrics carry different units, so
// they never share a histogram; ties go to the neck angle.
func metricSamples(transitions []session.Transition) (string, plotter.Values) {
	byMetric := map[string]plotter.Values{}
	for _, tr := range transitions {
		byMetric[tr.Metric] = append(byMetric[tr.Metric], tr.Value)
	}
	neck := byMetric[session.MetricNeckAngleDeg]
	nose := byMetric[session.MetricNoseOffsetPx]
	if len(nose) > len(neck) {
		return session.MetricNoseOffsetPx, nose
	}
	return session.MetricNeckAngleDeg, neck
}

// histBins picks a bin count that keeps small sessions readable.
func histBins(n int) int {
	bins := n
	if bins < 4 {
		bins = 4
	}
	if bins > 16 {
		bins = 16
	}
	return bins
}

// RenderMetricHistogramPNG writes a PNG histogram of the session's
// dominant transition metric. Returns ErrNoSamples when the session has
// no transitions to draw.
func RenderMetricHistogramPNG(w io.Writer, s *session.Session, transitions []session.Transition) error {
	metric, vals := metricSamples(transitions)
	if len(vals) == 0 {
		return ErrNoSamples
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Session %s", s.ID)
	p.X.Label.Text = metric
	p.Y.Label.Text = "Verdict changes"

	h, err := plotter.NewHist(vals, histBins(len(vals)))
	if err != nil {
		return fmt.Errorf("build histogram: %w", err)
	}
	h.FillColor = color.RGBA{R: 0x31, G: 0x68, B: 0x8e, A: 255}
	p.Add(h)

	wt, err := p.WriterTo(10*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("render png: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}
