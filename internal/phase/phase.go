// Package phase derives boot phase intervals from a captured firmware event log.
package phase

import (
	"fmt"
	"strings"

	"github.com/tinyrange/bootbench/internal/eventlog"
)

// CounterPeriod is added to a tick that appears to run backwards. The firmware
// reports a 24-bit counter, so only a single wrap between two consecutive
// keypoints can be corrected.
const CounterPeriod = 16_777_215

// Keypoints is an ordered list of message substrings marking phase boundaries.
// The order is the expected chronological order of the boundaries.
type Keypoints []string

// DefaultKeypoints are the OVMF boundaries recognised out of the box.
var DefaultKeypoints = Keypoints{
	"SecCoreStartupWithStack", // start of the log
	"Platform PEIM Loaded",    // PEI
	"Loading DXE CORE",        // start of DXE
	"EekDxeMain3",             // end of DXE
	"EekBds2",                 // late BDS
}

// Validate rejects empty and duplicate patterns.
func (k Keypoints) Validate() error {
	seen := make(map[string]struct{}, len(k))
	for i, p := range k {
		if p == "" {
			return fmt.Errorf("keypoint %d is empty", i)
		}
		if _, ok := seen[p]; ok {
			return fmt.Errorf("duplicate keypoint %q", p)
		}
		seen[p] = struct{}{}
	}
	return nil
}

// Interval is the span between the previous matched keypoint and this one.
type Interval struct {
	Label string
	Start uint64
	End   uint64
}

// Duration is zero for an interval that runs backwards, which only happens when
// the counter wrapped more than once between two keypoints.
func (i Interval) Duration() uint64 {
	if i.End < i.Start {
		return 0
	}
	return i.End - i.Start
}

func (i Interval) String() string {
	return fmt.Sprintf("%s [%d, %d]", i.Label, i.Start, i.End)
}

// Extract walks the log once and emits an interval for the first entry matching
// each keypoint. An entry is attributed to the earliest keypoint (in list order)
// it contains, and a keypoint that already matched is not considered again.
// Keypoints that never match produce no interval.
func Extract(entries []eventlog.Entry, keypoints Keypoints) []Interval {
	var (
		intervals []Interval
		cursor    uint64
		matched   = make([]bool, len(keypoints))
	)

	for _, entry := range entries {
		if len(intervals) == len(keypoints) {
			break
		}
		for i, p := range keypoints {
			if matched[i] || !strings.Contains(entry.Message, p) {
				continue
			}

			tick := entry.Tick
			if tick < cursor {
				tick += CounterPeriod
			}

			intervals = append(intervals, Interval{Label: p, Start: cursor, End: tick})
			cursor = tick
			matched[i] = true
			break
		}
	}

	return intervals
}

// Missing returns the keypoints that have no interval in intervals.
func Missing(keypoints Keypoints, intervals []Interval) []string {
	found := make(map[string]struct{}, len(intervals))
	for _, iv := range intervals {
		found[iv.Label] = struct{}{}
	}

	var missing []string
	for _, p := range keypoints {
		if _, ok := found[p]; !ok {
			missing = append(missing, p)
		}
	}
	return missing
}
