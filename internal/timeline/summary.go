package timeline

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/tinyrange/bootbench/internal/phase"
)

const summaryBarWidth = 40

// terminal counterparts of Palette; black is swapped for grey so it stays visible
var ansiPalette = []ansi.BasicColor{
	ansi.Cyan,
	ansi.Green,
	ansi.Magenta,
	ansi.Red,
	ansi.Yellow,
	ansi.BrightBlack,
}

// Summary writes a text table of the intervals with a proportional bar per
// phase. When colour is set the bars use the same palette order as the image.
func Summary(w io.Writer, title string, intervals []phase.Interval, colour bool) error {
	header := title
	if colour {
		header = ansi.Style{}.Bold().Styled(title)
	}
	if _, err := fmt.Fprintln(w, header); err != nil {
		return err
	}

	if len(intervals) == 0 {
		_, err := fmt.Fprintln(w, "  (no phases recognised)")
		return err
	}

	labelWidth := 0
	for _, iv := range intervals {
		labelWidth = max(labelWidth, ansi.StringWidth(iv.Label))
	}

	total := intervals[len(intervals)-1].End
	for i, iv := range intervals {
		n := 0
		if total > 0 {
			n = int(iv.Duration() * summaryBarWidth / total)
		}
		if n == 0 && iv.Duration() > 0 {
			n = 1
		}
		bar := strings.Repeat("█", n)
		if colour {
			bar = ansi.Style{}.ForegroundColor(ansiPalette[i%len(ansiPalette)]).Styled(bar)
		}

		pad := strings.Repeat(" ", labelWidth-ansi.StringWidth(iv.Label))
		if _, err := fmt.Fprintf(w, "  %s%s %10d %10d %10d %s\n",
			iv.Label, pad, iv.Start, iv.End, iv.Duration(), bar); err != nil {
			return err
		}
	}

	return nil
}
