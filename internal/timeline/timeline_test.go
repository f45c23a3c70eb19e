package timeline

import (
	"bytes"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tinyrange/bootbench/internal/guest"
	"github.com/tinyrange/bootbench/internal/phase"
)

type recordingCanvas struct {
	title   string
	axisMax uint64
	rects   []rect
	legend  []legendEntry
	flushed string
}

func (c *recordingCanvas) SetTitle(title string) { c.title = title }
func (c *recordingCanvas) SetAxis(max uint64) { c.axisMax = max }
func (c *recordingCanvas) FillRect(x0, x1 uint64, y0, y1 float64, col color.Color) {
	c.rects = append(c.rects, rect{x0: x0, x1: x1, y0: y0, y1: y1, c: col})
}
func (c *recordingCanvas) AddLegend(label string, col color.Color) {
	c.legend = append(c.legend, legendEntry{label: label, c: col})
}
func (c *recordingCanvas) Flush(path string) error {
	c.flushed = path
	return nil
}

func sampleIntervals(n int) []phase.Interval {
	var out []phase.Interval
	var cursor uint64
	for i := range n {
		end := cursor + uint64(i+1)*1_000_000
		out = append(out, phase.Interval{Label: phase.DefaultKeypoints[i%len(phase.DefaultKeypoints)], Start: cursor, End: end})
		cursor = end
	}
	return out
}

func TestRenderCyclesPalette(t *testing.T) {
	c := &recordingCanvas{}
	profile := guest.Profile{Title: "OVMF Phases with SNP", Output: "out/snp.png", AxisMax: 20_000_000}

	if err := Render(c, profile, sampleIntervals(8)); err != nil {
		t.Fatalf("Render: %v", err)
	}

	if c.title != profile.Title || c.axisMax != profile.AxisMax || c.flushed != profile.Output {
		t.Fatalf("canvas not configured from profile: %+v", c)
	}
	if len(c.rects) != 8 || len(c.legend) != 8 {
		t.Fatalf("expected 8 rects and legend entries, got %d and %d", len(c.rects), len(c.legend))
	}
	if c.rects[6].c != Palette[0] || c.rects[7].c != Palette[1] {
		t.Fatalf("palette did not wrap around")
	}
	for i, r := range c.rects {
		if r.y0 != 0 || r.y1 != 1 {
			t.Fatalf("rect %d has height [%v, %v]", i, r.y0, r.y1)
		}
		if c.legend[i].c != r.c {
			t.Fatalf("legend %d colour does not match its bar", i)
		}
	}
}

func TestRasterFlush(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "nested", "nosev.png")

	// Pre-existing output must be replaced.
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(out, []byte("old"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	profile := guest.Profile{Title: "OVMF Phases without SEV", Output: out, AxisMax: 20_000_000}
	intervals := []phase.Interval{
		{Label: "SecCoreStartupWithStack", Start: 0, End: 10_000_000},
		{Label: "Platform PEIM Loaded", Start: 10_000_000, End: 12_000_000},
	}

	if err := Render(NewRaster(), profile, intervals); err != nil {
		t.Fatalf("Render: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != DefaultWidth || b.Dy() != DefaultHeight {
		t.Fatalf("unexpected image size %v", b)
	}

	// The first bar spans 10M ticks and the second 2M.
	cyan, green := 0, 0
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			switch {
			case r == 0 && g == 0xffff && b == 0xffff:
				cyan++
			case r == 0 && g == 0xffff && b == 0:
				green++
			}
		}
	}
	if cyan == 0 || green == 0 {
		t.Fatalf("expected both bars drawn, got %d cyan and %d green pixels", cyan, green)
	}
	if cyan <= green {
		t.Fatalf("first bar is five times longer but has %d pixels against %d", cyan, green)
	}

	entries, err := os.ReadDir(filepath.Dir(out))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the output file, found %d entries", len(entries))
	}
}

func TestRasterNoIntervals(t *testing.T) {
	out := filepath.Join(t.TempDir(), "empty.png")
	profile := guest.Profile{Title: "nothing", Output: out, AxisMax: 20_000_000}

	if err := Render(NewRaster(), profile, nil); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("Stat: %v", err)
	}
}

func TestRasterFixesAxis(t *testing.T) {
	r := NewRaster()
	r.SetAxis(1000)
	r.FillRect(0, 5000, 0, 1, Palette[0])
	r.AddLegend("beyond the axis", Palette[0])

	p, err := r.Plot()
	if err != nil {
		t.Fatalf("Plot: %v", err)
	}
	if p.X.Min != 0 || p.X.Max != 1000 {
		t.Fatalf("x range = [%v, %v], want [0, 1000]", p.X.Min, p.X.Max)
	}
	if p.Y.Min != 0 || p.Y.Max != yMax {
		t.Fatalf("y range = [%v, %v], want [0, %d]", p.Y.Min, p.Y.Max, yMax)
	}

	ticks := p.X.Tick.Marker.Ticks(p.X.Min, p.X.Max)
	if len(ticks) != xTicks+1 || ticks[len(ticks)-1].Label != "1k" {
		t.Fatalf("unexpected ticks %v", ticks)
	}
}

func TestRenderWriteFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	profile := guest.Profile{Output: filepath.Join(blocker, "out.png"), AxisMax: 100}
	if err := Render(NewRaster(), profile, sampleIntervals(1)); err == nil {
		t.Fatalf("expected error writing below a regular file")
	}
}

func TestTickLabel(t *testing.T) {
	tests := map[uint64]string{
		0:          "0",
		2_000_000:  "2M",
		2_500_000:  "2.5M",
		5_000:      "5k",
		1234:       "1234",
		20_000_000: "20M",
	}
	for in, want := range tests {
		if got := tickLabel(in); got != want {
			t.Errorf("tickLabel(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestSummary(t *testing.T) {
	var buf bytes.Buffer
	intervals := []phase.Interval{
		{Label: "SecCoreStartupWithStack", Start: 0, End: 10},
		{Label: "Platform PEIM Loaded", Start: 10, End: 150},
		{Label: "Loading DXE CORE", Start: 150, End: 9000},
	}

	if err := Summary(&buf, "OVMF Phases without SEV", intervals, false); err != nil {
		t.Fatalf("Summary: %v", err)
	}

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected title plus 3 rows, got %d:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[3], "8850") {
		t.Fatalf("expected DXE duration in row: %q", lines[3])
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("plain summary must not contain escape sequences")
	}

	buf.Reset()
	if err := Summary(&buf, "coloured", intervals, true); err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if !strings.Contains(buf.String(), "\x1b[") {
		t.Fatalf("coloured summary should contain escape sequences")
	}
}

func TestSummaryEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := Summary(&buf, "empty", nil, false); err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if !strings.Contains(buf.String(), "no phases") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}
