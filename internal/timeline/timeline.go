// Package timeline renders boot phase intervals as a horizontal timeline.
package timeline

import (
	"fmt"
	"image/color"

	"github.com/tinyrange/bootbench/internal/guest"
	"github.com/tinyrange/bootbench/internal/phase"
)

// Canvas is a drawing surface with a data-space time axis.
type Canvas interface {
	SetTitle(title string)
	// SetAxis fixes the time axis to [0, max].
	SetAxis(max uint64)
	// FillRect fills [x0, x1] on the time axis and [y0, y1] on the vertical axis.
	FillRect(x0, x1 uint64, y0, y1 float64, c color.Color)
	AddLegend(label string, c color.Color)
	// Flush writes the canvas to path, replacing any existing file.
	Flush(path string) error
}

// Palette is cycled by interval index.
var Palette = []color.RGBA{
	{R: 0x00, G: 0xff, B: 0xff, A: 0xff}, // cyan
	{R: 0x00, G: 0xff, B: 0x00, A: 0xff}, // green
	{R: 0xff, G: 0x00, B: 0xff, A: 0xff}, // magenta
	{R: 0xff, G: 0x00, B: 0x00, A: 0xff}, // red
	{R: 0xff, G: 0xff, B: 0x00, A: 0xff}, // yellow
	{R: 0x00, G: 0x00, B: 0x00, A: 0xff}, // black
}

// Height of each phase bar on the vertical axis, which spans [0, 2].
const barHeight = 1

// ColorFor returns the palette colour of the i-th interval.
func ColorFor(i int) color.RGBA {
	return Palette[i%len(Palette)]
}

// Render draws one bar and one legend entry per interval, in order, and writes
// the result to the profile's output path. An empty interval list still
// produces an image with axes and title.
func Render(c Canvas, p guest.Profile, intervals []phase.Interval) error {
	c.SetTitle(p.Title)
	c.SetAxis(p.AxisMax)

	for i, iv := range intervals {
		col := ColorFor(i)
		c.FillRect(iv.Start, iv.End, 0, barHeight, col)
		c.AddLegend(iv.Label, col)
	}

	if err := c.Flush(p.Output); err != nil {
		return fmt.Errorf("write %s: %w", p.Output, err)
	}
	return nil
}
