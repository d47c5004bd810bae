// Package diagnostics draws MCMC trace plots and probability reliability
// diagrams with gonum/plot.
package diagnostics

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/YuminosukeSato/binclf/pkg/errors"
	"github.com/YuminosukeSato/binclf/sklearn/bayes"
)

// DefaultSize is the width and height used by Save and WriteTo.
const DefaultSize = 5 * vg.Inch

// TracePlot draws the draws of coefficient feature, one line per chain.
func TracePlot(trace *bayes.Trace, feature int) (*plot.Plot, error) {
	if trace == nil || trace.Len() == 0 {
		return nil, errors.NewModelError("TracePlot", "empty trace", errors.ErrEmptyData)
	}
	if feature < 0 || feature >= trace.NFeatures() {
		return nil, errors.NewValidationError("feature", fmt.Sprintf("must be in [0, %d)", trace.NFeatures()), feature)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Trace of coefficient %d", feature)
	p.X.Label.Text = "Draw"
	p.Y.Label.Text = "Value"

	for c := 0; c < trace.NChains(); c++ {
		draws := trace.Chain(c)
		n, _ := draws.Dims()
		pts := make(plotter.XYs, n)
		for i := range pts {
			pts[i].X = float64(i)
			pts[i].Y = draws.At(i, feature)
		}
		l, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		l.Color = plotutil.Color(c)
		l.LineStyle.Width = vg.Points(0.5)
		p.Add(l)
		p.Legend.Add(fmt.Sprintf("chain %d", c), l)
	}

	if t := trace.NTuned(); t > 0 {
		// 調整期間の終わりを縦線で示す
		lo, hi := p.Y.Min, p.Y.Max
		l, err := plotter.NewLine(plotter.XYs{{X: float64(t), Y: lo}, {X: float64(t), Y: hi}})
		if err != nil {
			return nil, err
		}
		l.Color = color.Gray{Y: 128}
		l.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(l)
	}
	return p, nil
}

// Bin is one bucket of a reliability diagram.
type Bin struct {
	// Lower and Upper bound the predicted probabilities in the bin.
	Lower, Upper float64
	// MeanPredicted is the mean P(1) of the samples in the bin.
	MeanPredicted float64
	// FractionPositive is the observed frequency of label 1.
	FractionPositive float64
	Count            int
}

// CalibrationCurve buckets P(1) into nBins equal-width bins over [0, 1].
// Empty bins are omitted.
func CalibrationCurve(yTrue, proba []float64, nBins int) ([]Bin, error) {
	if len(yTrue) != len(proba) {
		return nil, errors.NewDimensionError("CalibrationCurve", len(yTrue), len(proba), 0)
	}
	if len(yTrue) == 0 {
		return nil, errors.NewModelError("CalibrationCurve", "empty input", errors.ErrEmptyData)
	}
	if nBins < 1 {
		return nil, errors.NewValidationError("n_bins", "must be >= 1", nBins)
	}

	sumP := make([]float64, nBins)
	sumY := make([]float64, nBins)
	count := make([]int, nBins)
	for i, p := range proba {
		if p < 0 || p > 1 {
			return nil, errors.NewValueError("CalibrationCurve", fmt.Sprintf("probability %v outside [0, 1]", p))
		}
		if yTrue[i] != 0 && yTrue[i] != 1 {
			return nil, errors.NewValueError("CalibrationCurve", "yTrue must contain only 0 and 1")
		}
		b := int(p * float64(nBins))
		if b == nBins {
			b--
		}
		sumP[b] += p
		sumY[b] += yTrue[i]
		count[b]++
	}

	width := 1 / float64(nBins)
	var bins []Bin
	for b := 0; b < nBins; b++ {
		if count[b] == 0 {
			continue
		}
		n := float64(count[b])
		bins = append(bins, Bin{
			Lower:            float64(b) * width,
			Upper:            float64(b+1) * width,
			MeanPredicted:    sumP[b] / n,
			FractionPositive: sumY[b] / n,
			Count:            count[b],
		})
	}
	return bins, nil
}

// ReliabilityDiagram plots the calibration curve of proba against yTrue
// together with the diagonal of perfect calibration.
func ReliabilityDiagram(yTrue, proba []float64, nBins int) (*plot.Plot, []Bin, error) {
	bins, err := CalibrationCurve(yTrue, proba, nBins)
	if err != nil {
		return nil, nil, err
	}

	p := plot.New()
	p.Title.Text = "Reliability diagram"
	p.X.Label.Text = "Mean predicted probability"
	p.Y.Label.Text = "Fraction of positives"
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1

	diag, err := plotter.NewLine(plotter.XYs{{X: 0, Y: 0}, {X: 1, Y: 1}})
	if err != nil {
		return nil, nil, err
	}
	diag.Color = color.Gray{Y: 160}
	diag.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(diag)

	pts := make(plotter.XYs, len(bins))
	for i, b := range bins {
		pts[i].X = b.MeanPredicted
		pts[i].Y = b.FractionPositive
	}
	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return nil, nil, err
	}
	line.Color = plotutil.Color(0)
	points.Color = plotutil.Color(0)
	points.Shape = draw.CircleGlyph{}
	p.Add(line, points)
	p.Legend.Add("classifier", line, points)
	p.Legend.Add("perfectly calibrated", diag)
	p.Legend.Top = true
	p.Legend.Left = true
	return p, bins, nil
}

// Save writes p to filename; the format follows the extension (.png, .svg, .pdf, ...).
func Save(p *plot.Plot, filename string) error {
	return p.Save(DefaultSize, DefaultSize, filename)
}

// WriteTo renders p in format ("png", "svg", ...) to w.
func WriteTo(p *plot.Plot, w io.Writer, format string) error {
	wt, err := p.WriterTo(DefaultSize, DefaultSize, format)
	if err != nil {
		return errors.Wrapf(err, "diagnostics: format %q", format)
	}
	_, err = wt.WriteTo(w)
	return err
}
