// Package gpio drives relay lines wired directly to Raspberry Pi GPIO pins.
package gpio

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
	"github.com/w1xm/covers_interface/relay"
)

// line is the part of rpio.Pin a Board writes to.
type line interface {
	Write(state rpio.State)
}

type Board struct {
	layout    relay.Layout
	activeLow bool

	mu    sync.Mutex
	lines []line
	on    []bool
}

// Open maps pins (BCM numbering) to the layout's lines in order and drives
// them all inactive. Relay boards that energize on a low input need activeLow.
func Open(pins []int, layout relay.Layout, activeLow bool) (*Board, error) {
	if len(pins) != layout.Lines {
		return nil, fmt.Errorf("layout has %d relay lines, got %d pins", layout.Lines, len(pins))
	}
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("opening gpio: %w", err)
	}
	lines := make([]line, len(pins))
	for i, n := range pins {
		pin := rpio.Pin(n)
		pin.Output()
		lines[i] = pin
	}
	b := newBoard(lines, layout, activeLow)
	b.release()
	return b, nil
}

func newBoard(lines []line, layout relay.Layout, activeLow bool) *Board {
	return &Board{
		layout:    layout,
		activeLow: activeLow,
		lines:     lines,
		on:        make([]bool, len(lines)),
	}
}

func (b *Board) level(on bool) rpio.State {
	if on != b.activeLow {
		return rpio.High
	}
	return rpio.Low
}

func (b *Board) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, l := range b.lines {
		l.Write(b.level(false))
		b.on[i] = false
	}
}

// SetOutputs drops the lines the pattern does not use before energizing the
// new ones, so two patterns are never applied at once.
func (b *Board) SetOutputs(p relay.Pattern) error {
	mask, err := b.layout.Mask(p)
	if err != nil {
		return err
	}
	want := relay.BitsToLines(mask, b.layout.Lines)

	b.mu.Lock()
	defer b.mu.Unlock()
	for i, l := range b.lines {
		if b.on[i] && !want[i] {
			l.Write(b.level(false))
			b.on[i] = false
		}
	}
	for i, l := range b.lines {
		if want[i] && !b.on[i] {
			l.Write(b.level(true))
			b.on[i] = true
		}
	}
	return nil
}

// Close releases every line and unmaps the GPIO registers.
func (b *Board) Close() error {
	b.release()
	return rpio.Close()
}
