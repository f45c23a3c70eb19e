package run

import (
	"fmt"

	"github.com/tinyrange/bootbench/internal/guest"
)

// State is a step of a single benchmark run.
type State int

const (
	Idle State = iota
	Listening
	Running
	Observing
	Terminating
	Extracting
	Rendering
	Done
)

var stateNames = [...]string{
	Idle:        "idle",
	Listening:   "listening",
	Running:     "running",
	Observing:   "observing",
	Terminating: "terminating",
	Extracting:  "extracting",
	Rendering:   "rendering",
	Done:        "done",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Phase groups run states for error reporting.
type Phase string

const (
	PhaseSetup      Phase = "setup"
	PhaseCapture    Phase = "capture"
	PhaseExtraction Phase = "extraction"
	PhaseRender     Phase = "render"
)

// Error is a fatal failure of one run.
type Error struct {
	RunID string
	Guest guest.Type
	Phase Phase
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("run %s (%s): %s: %v", e.RunID, e.Guest, e.Phase, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
