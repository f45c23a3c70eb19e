// Package capture receives the firmware debug console stream from the
// hypervisor and records it into an event log.
package capture

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/tinyrange/bootbench/internal/eventlog"
)

const maxLineSize = 1024 * 1024

// LineError reports a line that could not be parsed as an event.
type LineError struct {
	Line int // 1-based
	Text string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("capture: line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

type options struct {
	raw io.Writer
}

// Option configures Capture.
type Option func(*options)

// WithRawOutput copies every received line, unparsed, to w.
func WithRawOutput(w io.Writer) Option {
	return func(o *options) {
		o.raw = w
	}
}

// Capture reads newline-delimited events from r and appends them to log until
// the stream ends. A closed connection counts as end of stream. The first
// malformed line stops the capture and is returned as a *LineError.
func Capture(r io.Reader, log *eventlog.Log, opts ...Option) error {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSuffix(scanner.Text(), "\r")

		if o.raw != nil {
			if _, err := io.WriteString(o.raw, line+"\n"); err != nil {
				return fmt.Errorf("capture: write raw output: %w", err)
			}
		}

		entry, err := eventlog.ParseLine(line)
		if err != nil {
			return &LineError{Line: lineNum, Text: line, Err: err}
		}

		if err := log.Append(entry); err != nil {
			return fmt.Errorf("capture: line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		return fmt.Errorf("capture: read after line %d: %w", lineNum, err)
	}

	return nil
}
