// Package eventlog holds the ordered firmware debug events captured during a
// single boot.
//
// A Log has exactly one writer (the capture routine) while a run is in
// progress. Once the writer has returned, the run controller calls Seal to take
// sole ownership of the entries; no appends are accepted after that.
package eventlog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Delimiter separates the free-text message from the tick count on the wire.
const Delimiter = " TICKS="

// ErrSealed is returned by Append once the log has been handed off.
var ErrSealed = errors.New("eventlog: log is sealed")

// Entry is one debug line emitted by the firmware.
type Entry struct {
	Message string
	// Tick is the raw 24-bit hardware counter value. It wraps to 0 on overflow.
	Tick uint64
}

func (e Entry) String() string {
	return fmt.Sprintf("%d - %s", e.Tick, e.Message)
}

// ParseLine splits a wire line into an Entry at the first occurrence of
// Delimiter. Everything after it must be a bare decimal tick.
func ParseLine(line string) (Entry, error) {
	msg, tickText, ok := strings.Cut(line, Delimiter)
	if !ok {
		return Entry{}, fmt.Errorf("missing %q delimiter", strings.TrimSpace(Delimiter))
	}

	tick, err := strconv.ParseUint(tickText, 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("parse tick %q: %w", tickText, err)
	}

	return Entry{Message: msg, Tick: tick}, nil
}

// Log is an append-only sequence of entries in arrival order.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	sealed  bool
}

// New returns an empty, unsealed log.
func New() *Log {
	return &Log{}
}

// Append adds an entry at the end of the log.
func (l *Log) Append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sealed {
		return ErrSealed
	}
	l.entries = append(l.entries, e)
	return nil
}

// Len returns the number of entries appended so far.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Seal stops further appends and returns the final entries. The returned slice
// is owned by the caller. Calling Seal more than once returns the same entries.
func (l *Log) Seal() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sealed = true
	return l.entries[:len(l.entries):len(l.entries)]
}
