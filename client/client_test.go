package client

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/w1xm/covers_interface/controller"
	"github.com/w1xm/covers_interface/relay"
	"github.com/w1xm/covers_interface/sequencer"
)

func TestScanLines(t *testing.T) {
	for _, test := range []struct {
		input string
		want  []string
	}{
		{"OPEN\r", []string{"OPEN"}},
		{"$\r\nCLOSING\r\n", []string{"$", "CLOSING"}},
		{"\r\n\r\n?\n", []string{"?"}},
		{"STOPPED", []string{"STOPPED"}},
		{"\r\n", nil},
	} {
		t.Run(test.input, func(t *testing.T) {
			scanner := bufio.NewScanner(strings.NewReader(test.input))
			scanner.Split(scanLines)
			var got []string
			for scanner.Scan() {
				got = append(got, scanner.Text())
			}
			if err := scanner.Err(); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(got, test.want); diff != "" {
				t.Errorf("got(-)/want(+):\n%s", diff)
			}
		})
	}
}

func TestParseState(t *testing.T) {
	for _, s := range []State{Stopped, Open, Closed, Opening, Closing} {
		got, ok := ParseState(s.String())
		if !ok || got != s {
			t.Errorf("ParseState(%q) = %v, %v", s.String(), got, ok)
		}
	}
	for _, label := range []string{"OFFLINE", "opening", "STOPPING", ""} {
		if _, ok := ParseState(label); ok {
			t.Errorf("ParseState(%q) accepted", label)
		}
	}
	if !Opening.Moving() || Open.Moving() {
		t.Error("Moving() mismatch")
	}
}

type rig struct {
	seq      *sequencer.Sequencer
	covers   *Covers
	statuses chan Status
	peer     net.Conn
	done     chan error
}

// newRig connects a client to an in-process controller over a pipe.
func newRig(t *testing.T, params sequencer.Params) *rig {
	t.Helper()
	seq, err := sequencer.New(params, &relay.Recorder{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	r := &rig{seq: seq, statuses: make(chan Status, 100), done: make(chan error, 1)}
	r.covers = newCovers(func(s Status) { r.statuses <- s })
	r.covers.pollPeriod = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	a, b := net.Pipe()
	r.peer = b
	go controller.New(seq).Serve(ctx, b)
	go func() { r.done <- r.covers.attach(ctx, a) }()
	t.Cleanup(func() {
		cancel()
		<-r.done
	})
	return r
}

func (r *rig) waitFor(t *testing.T, want State) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case s := <-r.statuses:
			if s.State == want {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %v (now %v)", want, r.covers.Status().State)
		}
	}
}

func TestOpenAndPoll(t *testing.T) {
	r := newRig(t, sequencer.Pico)
	ctx := context.Background()
	r.waitFor(t, Stopped)

	if err := r.covers.Open(ctx); err != nil {
		t.Fatalf("Open() = %v", err)
	}
	r.seq.Tick()
	r.waitFor(t, Opening)
	for i := 0; i < sequencer.Pico.Window; i++ {
		r.seq.Tick()
	}
	r.waitFor(t, Open)

	if err := r.covers.Close(ctx); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	r.seq.Tick()
	status, err := r.covers.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh() = %v", err)
	}
	if status.State != Closing {
		t.Errorf("Refresh() = %v, want CLOSING", status.State)
	}
	if err := r.covers.Stop(ctx); err != nil {
		t.Fatalf("Stop() = %v", err)
	}
	r.seq.Tick()
	r.waitFor(t, Stopped)
}

func TestWaitForTarget(t *testing.T) {
	r := newRig(t, sequencer.Pico)
	ctx := context.Background()
	r.waitFor(t, Stopped)
	if err := r.covers.Close(ctx); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	for i := 0; i <= sequencer.Pico.Window; i++ {
		r.seq.Tick()
	}
	r.waitFor(t, Closed)

	if err := r.covers.Open(ctx); err != nil {
		t.Fatalf("Open() = %v", err)
	}
	// No tick yet: the controller still reports the old end.
	status, err := r.covers.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh() = %v", err)
	}
	if status.State != Closed {
		t.Fatalf("Refresh() before tick = %v, want CLOSED", status.State)
	}
	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	status, err = r.covers.WaitFor(short, Open)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitFor(OPEN) before tick = %v, %v; want deadline exceeded", status.State, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i <= sequencer.Pico.Window; i++ {
			r.seq.Tick()
			time.Sleep(time.Millisecond)
		}
	}()
	long, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	status, err = r.covers.WaitFor(long, Open)
	<-done
	if err != nil || status.State != Open {
		t.Errorf("WaitFor(OPEN) = %v, %v; want OPEN", status.State, err)
	}
}

func TestWaitForWrongEnd(t *testing.T) {
	r := newRig(t, sequencer.Pico)
	ctx := context.Background()
	r.waitFor(t, Stopped)
	if err := r.covers.Close(ctx); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	r.seq.Tick()
	r.waitFor(t, Closing)
	done := make(chan struct{})
	go func() {
		defer close(done)
		// Let WaitFor see the move before it ends.
		time.Sleep(100 * time.Millisecond)
		for i := 0; i < sequencer.Pico.Window; i++ {
			r.seq.Tick()
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	status, err := r.covers.WaitFor(ctx, Open)
	<-done
	if err == nil || errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitFor(OPEN) at the closed end = %v, %v; want a rest error", status.State, err)
	}
	if status.State != Closed {
		t.Errorf("WaitFor(OPEN) stopped at %v, want CLOSED", status.State)
	}
}

func TestRejected(t *testing.T) {
	r := newRig(t, sequencer.AVR)
	r.waitFor(t, Stopped)
	if err := r.covers.command(context.Background(), "X"); err != ErrRejected {
		t.Errorf("command(X) = %v, want ErrRejected", err)
	}
}

func TestDisconnect(t *testing.T) {
	r := newRig(t, sequencer.Pico)
	r.waitFor(t, Stopped)
	r.peer.Close()
	r.waitFor(t, Offline)
	if err := <-r.done; err == nil {
		t.Error("attach() returned nil after the peer closed")
	}
	// Leave a result for the cleanup.
	r.done <- nil
	if err := r.covers.Open(context.Background()); err != ErrNotConnected {
		t.Errorf("Open() after disconnect = %v, want ErrNotConnected", err)
	}
}

func TestNotConnected(t *testing.T) {
	c := newCovers(nil)
	if err := c.Stop(context.Background()); err != ErrNotConnected {
		t.Errorf("Stop() = %v, want ErrNotConnected", err)
	}
	if got := c.Status().State; got != Offline {
		t.Errorf("Status() = %v, want OFFLINE", got)
	}
}
