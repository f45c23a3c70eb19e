package timeline

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/vgimg"
)

const (
	DefaultWidth  = 900
	DefaultHeight = 300

	yMax   = 2
	xTicks = 10
)

type rect struct {
	x0, x1 uint64
	y0, y1 float64
	c      color.Color
}

type legendEntry struct {
	label string
	c     color.Color
}

// Raster is a PNG Canvas. Shapes are buffered and the plot is built on Flush,
// after the axis is known.
type Raster struct {
	// Width and Height are in pixels.
	Width  int
	Height int

	title   string
	axisMax uint64
	rects   []rect
	legend  []legendEntry
}

// NewRaster returns a canvas with the default image size.
func NewRaster() *Raster {
	return &Raster{Width: DefaultWidth, Height: DefaultHeight}
}

func (r *Raster) SetTitle(title string) { r.title = title }

func (r *Raster) SetAxis(max uint64) { r.axisMax = max }

func (r *Raster) FillRect(x0, x1 uint64, y0, y1 float64, c color.Color) {
	r.rects = append(r.rects, rect{x0: x0, x1: x1, y0: y0, y1: y1, c: c})
}

func (r *Raster) AddLegend(label string, c color.Color) {
	r.legend = append(r.legend, legendEntry{label: label, c: c})
}

// Plot builds the chart from the buffered shapes. Bars are clipped to the axis.
func (r *Raster) Plot() (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = r.title

	p.Add(plotter.NewGrid())

	for _, rc := range r.rects {
		poly, err := bar(rc)
		if err != nil {
			return nil, err
		}
		p.Add(poly)
	}

	for _, e := range r.legend {
		swatch, err := bar(rect{x1: 1, y1: 1, c: e.c})
		if err != nil {
			return nil, err
		}
		p.Legend.Add(e.label, swatch)
	}
	p.Legend.Top = true

	// Ranges are fixed after Add, which widens them to fit the data.
	axisMax := float64(r.axisMax)
	if axisMax == 0 {
		axisMax = 1
	}
	p.X.Min = 0
	p.X.Max = axisMax
	p.X.Tick.Marker = plot.TickerFunc(func(min, max float64) []plot.Tick {
		ticks := make([]plot.Tick, 0, xTicks+1)
		for i := 0; i <= xTicks; i++ {
			v := r.axisMax / xTicks * uint64(i)
			ticks = append(ticks, plot.Tick{Value: float64(v), Label: tickLabel(v)})
		}
		return ticks
	})

	p.Y.Min = 0
	p.Y.Max = yMax
	p.Y.Tick.Marker = plot.ConstantTicks([]plot.Tick{
		{Value: 0, Label: "0"},
		{Value: 1, Label: "1"},
		{Value: 2, Label: "2"},
	})

	return p, nil
}

func bar(rc rect) (*plotter.Polygon, error) {
	poly, err := plotter.NewPolygon(plotter.XYs{
		{X: float64(rc.x0), Y: rc.y0},
		{X: float64(rc.x1), Y: rc.y0},
		{X: float64(rc.x1), Y: rc.y1},
		{X: float64(rc.x0), Y: rc.y1},
	})
	if err != nil {
		return nil, fmt.Errorf("bar polygon: %w", err)
	}
	poly.Color = rc.c
	poly.LineStyle.Width = 0
	return poly, nil
}

// pixels converts an image dimension to plot units at the PNG resolution.
func pixels(n int) vg.Length {
	return vg.Length(n) * vg.Inch / vgimg.DefaultDPI
}

// Flush encodes the plot as PNG. The file is written next to path and renamed
// into place, creating the directory if needed.
func (r *Raster) Flush(path string) error {
	p, err := r.Plot()
	if err != nil {
		return err
	}

	wt, err := p.WriterTo(pixels(r.Width), pixels(r.Height), "png")
	if err != nil {
		return fmt.Errorf("render png: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := wt.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("encode png: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		return fmt.Errorf("chmod: %w", err)
	}

	return os.Rename(tmp, path)
}

func tickLabel(v uint64) string {
	switch {
	case v == 0:
		return "0"
	case v%1_000_000 == 0:
		return fmt.Sprintf("%dM", v/1_000_000)
	case v >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(v)/1_000_000)
	case v%1_000 == 0:
		return fmt.Sprintf("%dk", v/1_000)
	default:
		return fmt.Sprint(v)
	}
}
