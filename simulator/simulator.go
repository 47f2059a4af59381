// Package simulator models the roof panels so the controller can run
// without relays attached.
package simulator

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/w1xm/covers_interface/relay"
)

const (
	// Fraction of full travel per second while an actuator is powered.
	TravelRate = 1.0 / 20
	// Discrete simulation step size
	stepSize = 100 * time.Millisecond
)

// Status reports panel positions from 0 (closed) to 1 (open).
type Status struct {
	Pattern relay.Pattern
	West    float64
	East    float64
	// Clashes counts steps where the trailing panel moved before the lead
	// panel had its head start.
	Clashes int
	// Faults counts illegal patterns that were refused.
	Faults int
}

// Roof is a relay.Driver that moves simulated panels.
type Roof struct {
	headStart float64

	mu     sync.Mutex
	status Status
}

// New returns a roof with both panels at position. headStart is the travel
// the lead panel needs before the trailing panel may move; zero disables
// clash detection for roofs whose panels do not overlap.
func New(position, headStart float64) *Roof {
	return &Roof{
		headStart: headStart,
		status:    Status{West: position, East: position},
	}
}

func (r *Roof) SetOutputs(p relay.Pattern) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !p.Valid() {
		r.status.Faults++
		return fmt.Errorf("illegal relay pattern %v", p)
	}
	if p != r.status.Pattern {
		log.Printf("sim: relays %v -> %v", r.status.Pattern, p)
	}
	r.status.Pattern = p
	return nil
}

func (r *Roof) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Step advances the panels by dt.
func (r *Roof) Step(dt time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delta := TravelRate * dt.Seconds()
	s := &r.status
	switch s.Pattern {
	case relay.OpenLead:
		s.West = clamp(s.West + delta)
	case relay.OpenBoth:
		if r.headStart > 0 && s.East < 1 && s.West < r.headStart {
			s.Clashes++
		}
		s.West = clamp(s.West + delta)
		s.East = clamp(s.East + delta)
	case relay.CloseLead:
		s.East = clamp(s.East - delta)
	case relay.CloseBoth:
		if r.headStart > 0 && s.West > 0 && s.East > 1-r.headStart {
			s.Clashes++
		}
		s.West = clamp(s.West - delta)
		s.East = clamp(s.East - delta)
	}
}

// Run steps the simulation in real time until ctx is canceled.
func (r *Roof) Run(ctx context.Context) error {
	t := time.NewTicker(stepSize)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		r.Step(stepSize)
	}
}
