package eval

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotAccuracy draws word accuracy per correct-word length as a bar chart.
func PlotAccuracy(r *Report) (*plot.Plot, error) {
	lengths := r.Lengths()
	if len(lengths) == 0 {
		return nil, errors.New("eval: nothing to plot")
	}
	values := make(plotter.Values, len(lengths))
	labels := make([]string, len(lengths))
	for i, l := range lengths {
		values[i] = r.ByLength[l].Accuracy()
		labels[i] = strconv.Itoa(l)
	}

	p := plot.New()
	p.Title.Text = "Word accuracy by length"
	p.X.Label.Text = "Correct word length"
	p.Y.Label.Text = "Accuracy"
	p.Y.Min = 0
	p.Y.Max = 1

	bars, err := plotter.NewBarChart(values, vg.Points(16))
	if err != nil {
		return nil, err
	}
	p.Add(bars)
	p.NominalX(labels...)
	return p, nil
}

func combineErrors(errors ...error) (err error) {
	for _, e := range errors {
		switch {
		case e == nil:
			// ignore
		case err == nil:
			err = e
		default:
			err = multierror.Append(err, e)
		}
	}
	return err
}

// WritePlot renders p in format ("png", "svg", "pdf", ...) to output.
func WritePlot(p *plot.Plot, width, height vg.Length, output io.Writer, format string) error {
	w, err := p.WriterTo(width, height, format)
	if err != nil {
		return err
	}
	_, err = w.WriteTo(output)
	return err
}

// SavePlot writes p to path; the format follows the file extension.
func SavePlot(p *plot.Plot, path string) (err error) {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if format == "" {
		format = "png"
	}
	output, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = combineErrors(err, output.Close())
	}()
	return WritePlot(p, 6*vg.Inch, 4*vg.Inch, output, format)
}
