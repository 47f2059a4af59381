// Package controller connects the serial protocol, the tick source and the
// sequencer into the roof controller.
package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/w1xm/covers_interface/protocol"
	"github.com/w1xm/covers_interface/sequencer"
	"golang.org/x/sync/errgroup"
)

type Controller struct {
	seq *sequencer.Sequencer

	// ticks overrides the TickPeriod ticker in tests.
	ticks <-chan time.Time
}

func New(seq *sequencer.Sequencer) *Controller {
	return &Controller{seq: seq}
}

// RunTicker calls Tick once per TickPeriod until ctx is canceled.
func (c *Controller) RunTicker(ctx context.Context) error {
	ticks := c.ticks
	if ticks == nil {
		t := time.NewTicker(sequencer.TickPeriod)
		defer t.Stop()
		ticks = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticks:
		}
		c.seq.Tick()
	}
}

// Serve answers commands read from conn until it is closed or ctx is canceled.
// Each connection gets its own line buffer.
func (c *Controller) Serve(ctx context.Context, conn io.ReadWriteCloser) error {
	g, ctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		// Close the connection on cancel to unblock the reader.
		select {
		case <-ctx.Done():
		case <-done:
		}
		return conn.Close()
	})
	g.Go(func() error {
		defer close(done)
		parser := protocol.NewParser(c.seq, c.seq.Params().Terminator)
		buf := make([]byte, 64)
		for {
			n, err := conn.Read(buf)
			if ferr := parser.Feed(buf[:n], conn); ferr != nil {
				return fmt.Errorf("writing reply: %w", ferr)
			}
			if err == io.EOF {
				return nil
			}
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("reading port: %w", err)
			}
		}
	})
	return g.Wait()
}

// Run ticks the sequencer and serves the serial port until ctx is canceled.
// Functions in also run in the same group, e.g. a simulated roof. The first
// one to fail stops the controller.
func (c *Controller) Run(ctx context.Context, port string, baud int, also ...func(context.Context) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.RunTicker(ctx)
	})
	for _, f := range also {
		f := f
		g.Go(func() error {
			return f(ctx)
		})
	}
	g.Go(func() error {
		c.reconnectLoop(ctx, port, baud)
		return ctx.Err()
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Controller) reconnectLoop(ctx context.Context, port string, baud int) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(1 * time.Second):
		}
		s, err := openSerial(port, baud)
		if err != nil {
			log.Printf("opening %q: %v", port, err)
			continue
		}
		log.Printf("opened %q", port)
		if err := c.Serve(ctx, s); err != nil && ctx.Err() == nil {
			log.Printf("serving %q: %v", port, err)
		}
	}
}
