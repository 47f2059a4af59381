// Package modbusrelay drives the roof actuators from a Modbus RTU relay board
// whose coils 0..n-1 are the relay lines.
package modbusrelay

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/w1xm/covers_interface/internal/modbus"
	"github.com/w1xm/covers_interface/relay"
)

type Status struct {
	Coils []bool
	// Mismatch is set when the board reported coils other than the last
	// pattern written.
	Mismatch bool
}

type StatusCallback func(status Status)

type Board struct {
	layout         relay.Layout
	statusCallback StatusCallback

	mu      sync.Mutex
	client  *modbus.Client
	pattern relay.Pattern
	coils   []bool
}

func Connect(ctx context.Context, port string, baud int, slaveID byte, layout relay.Layout, statusCallback StatusCallback) (*Board, error) {
	if err := layout.Check(); err != nil {
		return nil, err
	}
	b := &Board{
		layout: layout,
		client: &modbus.Client{
			Port:         port,
			BaudRate:     baud,
			SlaveId:      slaveID,
			PollInterval: 500 * time.Millisecond,
		},
		statusCallback: statusCallback,
	}
	b.client.Poll = b.pollOnce
	return b, b.client.Connect(ctx)
}

func (b *Board) SetOutputs(p relay.Pattern) error {
	mask, err := b.layout.Mask(p)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.client.WriteCoils(mask, b.layout.Lines); err != nil {
		return fmt.Errorf("writing coils for %v: %w", p, err)
	}
	b.pattern = p
	return nil
}

// pollOnce reads the coils back and rewrites them if the board lost the
// pattern, e.g. after a power cycle of the board alone.
func (b *Board) pollOnce() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	results, err := b.client.ReadCoils(0, uint16(b.layout.Lines))
	if err != nil {
		return err
	}
	coils := modbus.BytesToBits(results)
	if len(coils) < b.layout.Lines {
		return fmt.Errorf("short coil read: %d bytes", len(results))
	}
	b.coils = coils[:b.layout.Lines]
	want := relay.BitsToLines(b.layout.Masks[b.pattern], b.layout.Lines)
	status := Status{Coils: b.coils}
	for i := range want {
		if want[i] != b.coils[i] {
			status.Mismatch = true
		}
	}
	if status.Mismatch {
		log.Printf("relay board reports %v, want %v; rewriting", b.coils, want)
		if err := b.client.WriteCoils(b.layout.Masks[b.pattern], b.layout.Lines); err != nil {
			return err
		}
	}
	if b.statusCallback != nil {
		b.statusCallback(status)
	}
	return nil
}
