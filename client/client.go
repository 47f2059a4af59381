// Package client drives a roof controller from the host over its serial port.
package client

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/tarm/serial"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNotConnected = errors.New("covers are not connected")
	ErrRejected     = errors.New("command rejected by controller")
)

const (
	// PollPeriod is how often the status is requested while connected.
	PollPeriod = 1 * time.Second
	// replyTimeout bounds the wait for the answer to a single command.
	replyTimeout = 2 * time.Second
)

// Covers talks to one controller. Replies are matched to commands in order,
// since the controller answers every line exactly once.
type Covers struct {
	statusCallback StatusCallback
	pollPeriod     time.Duration

	mu      sync.Mutex
	conn    io.ReadWriteCloser
	pending []chan string
	status  Status
}

func newCovers(statusCallback StatusCallback) *Covers {
	if statusCallback == nil {
		statusCallback = func(Status) {}
	}
	return &Covers{statusCallback: statusCallback, pollPeriod: PollPeriod}
}

// Connect opens the serial port in the background, reconnecting whenever it
// is lost, until ctx is canceled.
func Connect(ctx context.Context, port string, baud int, statusCallback StatusCallback) (*Covers, error) {
	c := newCovers(statusCallback)
	go c.reconnectLoop(ctx, port, baud)
	return c, nil
}

func (c *Covers) reconnectLoop(ctx context.Context, port string, baud int) {
	first := true
	for {
		if !first {
			select {
			case <-ctx.Done():
				return
			case <-time.After(1 * time.Second):
			}
		}
		first = false
		s, err := serial.OpenPort(&serial.Config{Name: port, Baud: baud})
		if err != nil {
			log.Printf("opening %q: %v", port, err)
			continue
		}
		log.Printf("opened %q", port)
		if err := c.attach(ctx, s); err != nil && ctx.Err() == nil {
			log.Printf("watching %q: %v", port, err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// attach uses conn until it fails or ctx is canceled.
func (c *Covers) attach(ctx context.Context, conn io.ReadWriteCloser) error {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	err := c.watch(ctx, conn)
	c.mu.Lock()
	c.conn = nil
	for _, ch := range c.pending {
		close(ch)
	}
	c.pending = nil
	c.mu.Unlock()
	c.setStatus(Status{State: Offline})
	return err
}

// scanLines splits on CR or LF and drops empty lines.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for start < len(data) && (data[start] == '\r' || data[start] == '\n') {
		start++
	}
	if i := bytes.IndexAny(data[start:], "\r\n"); i >= 0 {
		return start + i + 1, data[start : start+i], nil
	}
	if atEOF && start < len(data) {
		return len(data), data[start:], nil
	}
	return start, nil, nil
}

func (c *Covers) watch(ctx context.Context, conn io.ReadWriteCloser) error {
	g, ctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		// Wait for context to be canceled, then close connection.
		select {
		case <-ctx.Done():
		case <-done:
		}
		return conn.Close()
	})
	g.Go(func() error {
		defer close(done)
		scanner := bufio.NewScanner(conn)
		scanner.Split(scanLines)
		for scanner.Scan() {
			c.deliver(scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading port: %w", err)
		}
		return io.EOF
	})
	g.Go(func() error {
		for {
			if err := c.poll(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("polling status: %w", err)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.pollPeriod):
			}
		}
	})
	return g.Wait()
}

// deliver hands a reply line to the oldest waiting command.
func (c *Covers) deliver(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		log.Printf("unexpected reply %q", line)
		return
	}
	ch := c.pending[0]
	c.pending = c.pending[1:]
	ch <- line
}

func (c *Covers) send(ctx context.Context, cmd string) (string, error) {
	ch := make(chan string, 1)
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return "", ErrNotConnected
	}
	c.pending = append(c.pending, ch)
	if _, err := io.WriteString(c.conn, cmd+"\n"); err != nil {
		c.pending = c.pending[:len(c.pending)-1]
		c.mu.Unlock()
		return "", err
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()
	select {
	case reply, ok := <-ch:
		if !ok {
			return "", ErrNotConnected
		}
		return reply, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Covers) poll(ctx context.Context) error {
	reply, err := c.send(ctx, "?")
	if err != nil {
		return err
	}
	st, ok := ParseState(reply)
	if !ok {
		return fmt.Errorf("unknown status %q", reply)
	}
	c.setStatus(Status{State: st})
	return nil
}

func (c *Covers) setStatus(status Status) {
	c.mu.Lock()
	old := c.status
	c.status = status
	c.mu.Unlock()
	if status != old {
		c.statusCallback(status)
	}
}

func (c *Covers) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Covers) command(ctx context.Context, verb string) error {
	reply, err := c.send(ctx, verb)
	if err != nil {
		return err
	}
	switch reply {
	case "$":
		return nil
	case "?":
		return ErrRejected
	}
	return fmt.Errorf("unexpected reply %q to %s", reply, verb)
}

func (c *Covers) Open(ctx context.Context) error {
	return c.command(ctx, "O")
}

func (c *Covers) Close(ctx context.Context) error {
	return c.command(ctx, "C")
}

func (c *Covers) Stop(ctx context.Context) error {
	return c.command(ctx, "S")
}

// Refresh requests the status immediately instead of waiting for the poller.
func (c *Covers) Refresh(ctx context.Context) (Status, error) {
	if err := c.poll(ctx); err != nil {
		return c.Status(), err
	}
	return c.Status(), nil
}

// WaitFor refreshes the status every poll period until it reports target.
// Commands only take effect on the controller's next tick, so the old resting
// state is expected at first. Coming to rest at the other end, or ctx ending
// first, is an error.
func (c *Covers) WaitFor(ctx context.Context, target State) (Status, error) {
	moved := false
	for {
		s, err := c.Refresh(ctx)
		if err != nil {
			return s, err
		}
		switch {
		case s.State == target:
			return s, nil
		case s.State.Moving():
			moved = true
		case moved && s.State != Stopped:
			// A reversal through STOPPED is transient; anything else is not.
			return s, fmt.Errorf("covers came to rest %v, want %v", s.State, target)
		}
		select {
		case <-ctx.Done():
			return s, fmt.Errorf("still %v, want %v: %w", s.State, target, ctx.Err())
		case <-time.After(c.pollPeriod):
		}
	}
}
