package report

import (
	"bytes"
	"fmt"
	"image/color"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/mea-sync/internal/fsutil"
	"github.com/banshee-data/mea-sync/internal/security"
)

// maxChartPoints caps the points sent to the HTML chart.
const maxChartPoints = 5000

// DriftPNG renders the drift series as a PNG line plot.
func DriftPNG(title string, s DriftSeries) ([]byte, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "LED time (s)"
	p.Y.Label.Text = "MEA - LED offset (ms)"

	pts := make(plotter.XYs, len(s.Time))
	for i := range s.Time {
		pts[i] = plotter.XY{X: s.Time[i] / 1e6, Y: s.Offset[i] / 1e3}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("drift line: %w", err)
	}
	line.Width = vg.Points(1)
	line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	p.Add(line, plotter.NewGrid())

	wt, err := p.WriterTo(14*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return nil, fmt.Errorf("drift png: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("drift png: %w", err)
	}
	return buf.Bytes(), nil
}

// DriftHTML renders the drift series as an interactive line chart.
func DriftHTML(title string, s DriftSeries, st DriftStats) ([]byte, error) {
	stride := 1
	if n := len(s.Time); n > maxChartPoints {
		stride = (n + maxChartPoints - 1) / maxChartPoints
	}
	var (
		x []string
		y []opts.LineData
	)
	for i := 0; i < len(s.Time); i += stride {
		x = append(x, fmt.Sprintf("%.3f", s.Time[i]/1e6))
		y = append(y, opts.LineData{Value: s.Offset[i] / 1e3})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("samples=%d mean=%.1fus std=%.1fus slope=%.2fppm", st.Samples, st.MeanOffset, st.StdOffset, st.SlopePPM),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "LED time (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "offset (ms)", NameLocation: "middle", NameGap: 40}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(x).AddSeries("offset", y)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return nil, fmt.Errorf("drift html: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteDriftPlots writes the PNG and HTML plots for one recording. Both
// paths must lie within dir.
func WriteDriftPlots(fsys fsutil.FileSystem, dir, pngPath, htmlPath, title string, s DriftSeries) error {
	for _, p := range []string{pngPath, htmlPath} {
		if err := security.ValidatePathWithinDirectory(p, dir); err != nil {
			return err
		}
	}
	if len(s.Time) == 0 {
		return fmt.Errorf("no drift samples for %s", title)
	}
	png, err := DriftPNG(title, s)
	if err != nil {
		return err
	}
	if err := fsys.WriteFile(pngPath, png, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", pngPath, err)
	}
	html, err := DriftHTML(title, s, s.Stats())
	if err != nil {
		return err
	}
	if err := fsys.WriteFile(htmlPath, html, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", htmlPath, err)
	}
	return nil
}
