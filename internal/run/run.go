// Package run drives benchmark runs: launch a guest, capture its firmware debug
// stream for a fixed window, then extract and render the boot phases.
package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/tinyrange/bootbench/internal/capture"
	"github.com/tinyrange/bootbench/internal/eventlog"
	"github.com/tinyrange/bootbench/internal/guest"
	"github.com/tinyrange/bootbench/internal/phase"
	"github.com/tinyrange/bootbench/internal/timeline"
	"golang.org/x/sync/errgroup"
)

// Source starts the guest whose firmware writes to the debug socket.
type Source interface {
	Start(ctx context.Context, t guest.Type) (guest.Instance, error)
}

// Result describes a completed run.
type Result struct {
	RunID     string
	Guest     guest.Type
	Entries   int
	Intervals []phase.Interval
	Missing   []string
	Output    string
}

// Controller runs guests one at a time. All runs share Socket, so a Controller
// must not be used concurrently.
type Controller struct {
	Socket    string
	Source    Source
	Keypoints phase.Keypoints
	Table     guest.Table

	Window        time.Duration
	AcceptTimeout time.Duration
	// DrainTimeout bounds the wait for the stream to close after the guest was
	// asked to stop. The connection is closed from our side once it expires.
	DrainTimeout time.Duration

	// NewCanvas creates the drawing surface per run. Defaults to a PNG raster.
	NewCanvas func() timeline.Canvas

	// RawDir, when set, receives the unparsed firmware log of each run as
	// <guest>.log.
	RawDir string

	// Summary, when set, receives a text table of each run's phases.
	Summary io.Writer
	Colour  bool

	// Progress, when set, shows the observation window as a progress bar.
	Progress io.Writer

	Logger *slog.Logger

	// OnState is called on every state transition.
	OnState func(State)
}

func (c *Controller) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func durationOr(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}

func (c *Controller) enter(log *slog.Logger, s State) {
	log.Debug("run state", "state", s)
	if c.OnState != nil {
		c.OnState(s)
	}
}

// Run performs a complete run for t. Any failure aborts the run and is
// returned as an *Error.
func (c *Controller) Run(ctx context.Context, t guest.Type) (*Result, error) {
	runID := uuid.NewString()
	log := c.logger().With("run", runID, "guest", t)

	fail := func(p Phase, err error) (*Result, error) {
		return nil, &Error{RunID: runID, Guest: t, Phase: p, Err: err}
	}

	c.enter(log, Idle)

	if err := c.Keypoints.Validate(); err != nil {
		return fail(PhaseExtraction, fmt.Errorf("keypoints: %w", err))
	}
	profile, err := c.Table.Lookup(t)
	if err != nil {
		return fail(PhaseRender, err)
	}
	if c.Source == nil {
		return fail(PhaseSetup, errors.New("no guest source configured"))
	}

	c.enter(log, Listening)
	ch, err := capture.Open(c.Socket)
	if err != nil {
		return fail(PhaseSetup, err)
	}
	defer ch.Close()

	c.enter(log, Running)
	inst, err := c.Source.Start(ctx, t)
	if err != nil {
		return fail(PhaseSetup, err)
	}
	defer inst.Terminate()

	acceptCtx, cancel := context.WithTimeout(ctx, durationOr(c.AcceptTimeout, 30*time.Second))
	conn, err := ch.Accept(acceptCtx)
	cancel()
	if err != nil {
		return fail(PhaseSetup, fmt.Errorf("wait for firmware debug connection: %w", err))
	}
	log.Info("firmware connected", "socket", ch.Path())

	c.enter(log, Observing)
	events := eventlog.New()

	var opts []capture.Option
	if c.RawDir != "" {
		raw, err := c.openRaw(t)
		if err != nil {
			return fail(PhaseSetup, err)
		}
		defer raw.Close()
		opts = append(opts, capture.WithRawOutput(raw))
	}

	var g errgroup.Group
	captureDone := make(chan struct{})
	g.Go(func() error {
		defer close(captureDone)
		return capture.Capture(conn, events, opts...)
	})

	c.observe(ctx, log, t, captureDone)

	c.enter(log, Terminating)
	if err := inst.Terminate(); err != nil {
		log.Warn("failed to terminate guest", "error", err)
	}

	drainTimeout := durationOr(c.DrainTimeout, 5*time.Second)
	drain := time.NewTimer(drainTimeout)
	select {
	case <-captureDone:
	case <-drain.C:
		log.Warn("firmware stream still open after terminate; closing it")
		if err := ch.Interrupt(); err != nil {
			log.Warn("failed to close firmware stream", "error", err)
		}
	}
	drain.Stop()

	// From here on the capture goroutine has returned and the log is ours.
	captureErr := g.Wait()
	entries := events.Seal()
	c.reap(log, inst, drainTimeout)
	if captureErr != nil {
		return fail(PhaseCapture, captureErr)
	}
	if err := ctx.Err(); err != nil {
		return fail(PhaseCapture, err)
	}
	log.Info("capture complete", "entries", len(entries))

	c.enter(log, Extracting)
	intervals := phase.Extract(entries, c.Keypoints)
	for _, iv := range intervals {
		log.Info("phase", "label", iv.Label, "start", iv.Start, "end", iv.End)
	}
	missing := phase.Missing(c.Keypoints, intervals)
	if len(missing) > 0 {
		log.Warn("keypoints not found in firmware log", "missing", missing)
	}

	c.enter(log, Rendering)
	if err := timeline.Render(c.canvas(), profile, intervals); err != nil {
		return fail(PhaseRender, err)
	}
	if c.Summary != nil {
		if err := timeline.Summary(c.Summary, profile.Title, intervals, c.Colour); err != nil {
			log.Warn("failed to write summary", "error", err)
		}
	}
	log.Info("wrote timeline", "path", profile.Output)

	c.enter(log, Done)

	return &Result{
		RunID:     runID,
		Guest:     t,
		Entries:   len(entries),
		Intervals: intervals,
		Missing:   missing,
		Output:    profile.Output,
	}, nil
}

// observe waits out the observation window. It returns early when the capture
// finishes on its own or ctx is cancelled.
func (c *Controller) observe(ctx context.Context, log *slog.Logger, t guest.Type, captureDone <-chan struct{}) {
	window := durationOr(c.Window, 10*time.Second)

	timer := time.NewTimer(window)
	defer timer.Stop()

	var (
		bar  *progressbar.ProgressBar
		tick <-chan time.Time
	)
	if c.Progress != nil {
		const step = 100 * time.Millisecond
		bar = progressbar.NewOptions64(int64(window/step),
			progressbar.OptionSetWriter(c.Progress),
			progressbar.OptionSetDescription(fmt.Sprintf("observing %s", t)),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Close()

		ticker := time.NewTicker(step)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-timer.C:
			log.Debug("observation window elapsed", "window", window)
			return
		case <-captureDone:
			log.Info("firmware stream ended before the observation window elapsed")
			return
		case <-ctx.Done():
			log.Warn("run cancelled", "error", ctx.Err())
			return
		case <-tick:
			bar.Add(1)
		}
	}
}

// reap waits up to timeout for the guest to exit. A guest that outlives it is
// left to be reaped in the background.
func (c *Controller) reap(log *slog.Logger, inst guest.Instance, timeout time.Duration) {
	exited := make(chan error, 1)
	go func() { exited <- inst.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-exited:
		if err != nil {
			log.Warn("guest exited with error", "error", err)
			return
		}
		log.Debug("guest exited")
	case <-timer.C:
		log.Warn("guest still running after terminate", "timeout", timeout)
	}
}

func (c *Controller) canvas() timeline.Canvas {
	if c.NewCanvas != nil {
		return c.NewCanvas()
	}
	return timeline.NewRaster()
}

func (c *Controller) openRaw(t guest.Type) (*os.File, error) {
	if err := os.MkdirAll(c.RawDir, 0o755); err != nil {
		return nil, fmt.Errorf("create raw log dir: %w", err)
	}
	f, err := os.Create(filepath.Join(c.RawDir, string(t)+".log"))
	if err != nil {
		return nil, fmt.Errorf("create raw log: %w", err)
	}
	return f, nil
}

// RunAll runs each guest type in order. A failed run is logged and does not
// stop the remaining runs; cancelling ctx does. The returned error joins every
// run failure.
func (c *Controller) RunAll(ctx context.Context, types []guest.Type) ([]*Result, error) {
	var (
		results []*Result
		errs    []error
	)

	for _, t := range types {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("skipping %s: %w", t, err))
			break
		}

		res, err := c.Run(ctx, t)
		if err != nil {
			c.logger().Error("run failed", "guest", t, "error", err)
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
	}

	return results, errors.Join(errs...)
}
