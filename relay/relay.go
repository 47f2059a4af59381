package relay

import (
	"fmt"
	"strconv"
	"strings"
)

// Pattern is one of the legal relay outputs. Anything the sequencer asks a
// driver to apply is one of these; there is no way to combine them.
type Pattern uint8

const (
	Idle Pattern = iota
	// OpenLead drives the west panel open on its own.
	OpenLead
	OpenBoth
	// CloseLead drives the east panel closed on its own.
	CloseLead
	CloseBoth

	numPatterns
)

type Direction int

const (
	None Direction = iota
	Opening
	Closing
)

func (p Pattern) Valid() bool {
	return p < numPatterns
}

func (p Pattern) Direction() Direction {
	switch p {
	case OpenLead, OpenBoth:
		return Opening
	case CloseLead, CloseBoth:
		return Closing
	}
	return None
}

// Both reports whether both panels are driven.
func (p Pattern) Both() bool {
	return p == OpenBoth || p == CloseBoth
}

func (p Pattern) String() string {
	switch p {
	case Idle:
		return "IDLE"
	case OpenLead:
		return "OPEN_WEST"
	case OpenBoth:
		return "OPEN_BOTH"
	case CloseLead:
		return "CLOSE_EAST"
	case CloseBoth:
		return "CLOSE_BOTH"
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(p))
}

// Lead returns the single-panel pattern for a direction.
func Lead(d Direction) Pattern {
	switch d {
	case Opening:
		return OpenLead
	case Closing:
		return CloseLead
	}
	return Idle
}

// Full returns the both-panel pattern for a direction.
func Full(d Direction) Pattern {
	switch d {
	case Opening:
		return OpenBoth
	case Closing:
		return CloseBoth
	}
	return Idle
}

// Driver applies a pattern to the hardware. SetOutputs must be idempotent.
type Driver interface {
	SetOutputs(p Pattern) error
}

// Layout maps each pattern to the bit mask of energized output lines.
// Bit 0 is the first configured line.
type Layout struct {
	Lines int
	Masks [numPatterns]uint32
}

var (
	// Four relays on consecutive lines: two polarity pairs, one per panel.
	FourLine = Layout{
		Lines: 4,
		Masks: [numPatterns]uint32{
			Idle:      0,
			OpenLead:  0b1001,
			OpenBoth:  0b1101,
			CloseLead: 0b0110,
			CloseBoth: 0b1110,
		},
	}
	// Two relays, one per direction, each switching both panels.
	TwoLine = Layout{
		Lines: 2,
		Masks: [numPatterns]uint32{
			Idle:      0,
			OpenLead:  0b01,
			OpenBoth:  0b01,
			CloseLead: 0b10,
			CloseBoth: 0b10,
		},
	}
)

func (l Layout) Mask(p Pattern) (uint32, error) {
	if !p.Valid() {
		return 0, fmt.Errorf("invalid relay pattern %d", uint8(p))
	}
	return l.Masks[p], nil
}

// Check verifies the layout can be applied safely: idle must release every
// line and no mask may reference a line that does not exist.
func (l Layout) Check() error {
	if l.Lines <= 0 || l.Lines > 32 {
		return fmt.Errorf("invalid line count %d", l.Lines)
	}
	if l.Masks[Idle] != 0 {
		return fmt.Errorf("idle mask %#b energizes relays", l.Masks[Idle])
	}
	for p := Pattern(0); p < numPatterns; p++ {
		if l.Masks[p]>>uint(l.Lines) != 0 {
			return fmt.Errorf("%v mask %#b exceeds %d lines", p, l.Masks[p], l.Lines)
		}
	}
	for _, d := range []Direction{Opening, Closing} {
		if l.Masks[Lead(d)] == 0 || l.Masks[Full(d)] == 0 {
			return fmt.Errorf("direction %d has an empty mask", d)
		}
	}
	if l.Masks[OpenLead] == l.Masks[CloseLead] {
		return fmt.Errorf("open and close lead masks are identical (%#b)", l.Masks[OpenLead])
	}
	return nil
}

// ParseLayout reads a layout written as five comma separated binary masks in
// pattern order, e.g. "0,1001,1101,0110,1110".
func ParseLayout(lines int, masks string) (Layout, error) {
	l := Layout{Lines: lines}
	parts := strings.Split(masks, ",")
	if len(parts) != int(numPatterns) {
		return l, fmt.Errorf("want %d masks, got %d", numPatterns, len(parts))
	}
	for i, part := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 2, 32)
		if err != nil {
			return l, fmt.Errorf("mask %d: %w", i, err)
		}
		l.Masks[i] = uint32(v)
	}
	return l, l.Check()
}

// BitsToLines expands a mask into per-line values.
func BitsToLines(mask uint32, lines int) []bool {
	out := make([]bool, lines)
	for i := range out {
		out[i] = (mask>>uint(i))&1 == 1
	}
	return out
}
