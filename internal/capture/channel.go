package capture

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"sync"
	"sync/atomic"
)

// ErrAlreadyAccepted is returned when Accept is called a second time on the
// same channel.
var ErrAlreadyAccepted = errors.New("capture: channel already accepted a connection")

// Channel is a single-shot unix socket endpoint for the firmware debug console.
// It accepts exactly one connection and then stops listening.
type Channel struct {
	path     string
	listener net.Listener
	closed   atomic.Bool

	mu       sync.Mutex
	accepted bool
	conn     net.Conn
}

// Open binds a fresh listening socket at path. A stale socket left behind by an
// earlier run is removed first.
func Open(path string) (*Channel, error) {
	if err := removeSocket(path); err != nil {
		return nil, err
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}

	return &Channel{
		path:     path,
		listener: listener,
	}, nil
}

func removeSocket(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove stale socket %s: %w", path, err)
	}
	return nil
}

// Path returns the filesystem path of the socket.
func (c *Channel) Path() string {
	return c.path
}

// Accept blocks until the first inbound connection arrives or ctx is done. The
// listening socket is closed as soon as Accept returns, so any later connection
// attempt is refused instead of left pending.
func (c *Channel) Accept(ctx context.Context) (net.Conn, error) {
	c.mu.Lock()
	if c.accepted {
		c.mu.Unlock()
		return nil, ErrAlreadyAccepted
	}
	c.accepted = true
	c.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		c.listener.Close()
	})
	defer stop()

	conn, err := c.listener.Accept()
	c.listener.Close()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("accept: %w", ctxErr)
		}
		return nil, fmt.Errorf("accept: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		conn.Close()
		return nil, fmt.Errorf("accept: %w", net.ErrClosed)
	}
	c.conn = conn

	return conn, nil
}

// Interrupt closes the accepted connection so a blocked reader observes end of
// stream. It is safe to call before a connection was accepted.
func (c *Channel) Interrupt() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Close shuts down the listener and any accepted connection, then removes the
// socket file.
func (c *Channel) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.listener.Close()

	if err := c.Interrupt(); err != nil {
		return fmt.Errorf("close connection: %w", err)
	}

	return removeSocket(c.path)
}
