package sequencer

import (
	"fmt"
	"strings"

	"github.com/aamcrae/config"
	"github.com/w1xm/covers_interface/relay"
)

type Counting int

const (
	// CountUp counts elapsed ticks from 1.
	CountUp Counting = iota
	// CountDown counts remaining ticks from Window.
	CountDown
)

func (c Counting) String() string {
	if c == CountDown {
		return "down"
	}
	return "up"
}

// Params describes one hardware variant of the controller.
type Params struct {
	Name string
	// Stagger is the number of ticks the lead panel runs alone before the
	// trailing panel is released. Zero drives both panels from the start.
	Stagger int
	// Window is the number of ticks the actuators stay powered per move.
	Window   int
	Counting Counting
	// ReverseViaStop makes a change of direction pass through Stopped with
	// the relays released for one tick.
	ReverseViaStop bool
	// Persist restores the requested state from the store at startup and
	// writes every request to it.
	Persist bool
	// Terminator ends every reply line.
	Terminator string
	Layout     relay.Layout
}

var (
	// Pico is the four relay controller: west panel leads when opening,
	// east panel leads when closing.
	Pico = Params{
		Name:       "pico",
		Stagger:    5,
		Window:     27,
		Counting:   CountUp,
		Terminator: "\r",
		Layout:     relay.FourLine,
	}
	// AVR is the two relay controller with the target kept in EEPROM.
	AVR = Params{
		Name:           "avr",
		Stagger:        0,
		Window:         30,
		Counting:       CountDown,
		ReverseViaStop: true,
		Persist:        true,
		Terminator:     "\r\n",
		Layout:         relay.TwoLine,
	}
)

// Preset returns the named built-in variant.
func Preset(name string) (Params, error) {
	switch name {
	case Pico.Name:
		return Pico, nil
	case AVR.Name:
		return AVR, nil
	}
	return Params{}, fmt.Errorf("unknown variant %q", name)
}

const maxWindow = 0xFFFF

func (p Params) Check() error {
	if p.Window < 1 || p.Window > maxWindow {
		return fmt.Errorf("window %d out of range", p.Window)
	}
	if p.Stagger < 0 || p.Stagger >= p.Window {
		return fmt.Errorf("stagger %d must be in [0, %d)", p.Stagger, p.Window)
	}
	if p.Terminator == "" {
		return fmt.Errorf("empty terminator")
	}
	if err := p.Layout.Check(); err != nil {
		return fmt.Errorf("layout: %w", err)
	}
	return nil
}

// start is the counter value on the tick that energizes the relays.
func (p Params) start() int {
	if p.Counting == CountDown {
		return p.Window
	}
	return 1
}

// elapsed converts a counter value to the number of ticks since activation
// at the moment the counter is read at the top of a tick.
func (p Params) elapsed(counter int) int {
	if p.Counting == CountDown {
		return p.Window - counter + 1
	}
	return counter
}

func (p Params) advance(counter int) int {
	if p.Counting == CountDown {
		return counter - 1
	}
	return counter + 1
}

// ParseConfig reads a variant from a config file section, starting from the
// preset named by base (default pico).
// Sample config:
//  [roof]
//  base=pico              # preset to start from
//  stagger=5              # ticks the lead panel runs alone
//  window=27              # ticks the actuators stay powered
//  counting=up            # up or down
//  reverse=direct         # direct or stop
//  persist=no             # yes or no
//  terminator=cr          # cr, lf or crlf
//  relays=4,0,1001,1101,0110,1110   # line count, then masks in pattern order
func ParseConfig(conf *config.Config, name string) (Params, error) {
	s := conf.GetSection(name)
	if s == nil {
		return Params{}, fmt.Errorf("no config for %s", name)
	}
	base := Pico.Name
	if b, err := s.GetArg("base"); err == nil {
		base = b
	}
	p, err := Preset(base)
	if err != nil {
		return Params{}, fmt.Errorf("base: %v", err)
	}
	p.Name = name
	for _, key := range []struct {
		name string
		dest *int
	}{
		{"stagger", &p.Stagger},
		{"window", &p.Window},
	} {
		if _, err := s.GetArg(key.name); err != nil {
			continue
		}
		n, err := s.Parse(key.name, "%d", key.dest)
		if err != nil {
			return Params{}, fmt.Errorf("%s: %v", key.name, err)
		}
		if n != 1 {
			return Params{}, fmt.Errorf("%s: argument count", key.name)
		}
	}
	if v, err := s.GetArg("counting"); err == nil {
		switch v {
		case "up":
			p.Counting = CountUp
		case "down":
			p.Counting = CountDown
		default:
			return Params{}, fmt.Errorf("counting: unknown value %q", v)
		}
	}
	if v, err := s.GetArg("reverse"); err == nil {
		switch v {
		case "direct":
			p.ReverseViaStop = false
		case "stop":
			p.ReverseViaStop = true
		default:
			return Params{}, fmt.Errorf("reverse: unknown value %q", v)
		}
	}
	if v, err := s.GetArg("persist"); err == nil {
		switch v {
		case "yes":
			p.Persist = true
		case "no":
			p.Persist = false
		default:
			return Params{}, fmt.Errorf("persist: unknown value %q", v)
		}
	}
	if v, err := s.GetArg("terminator"); err == nil {
		t, ok := terminators[v]
		if !ok {
			return Params{}, fmt.Errorf("terminator: unknown value %q", v)
		}
		p.Terminator = t
	}
	var v string
	if n, err := s.Parse("relays", "%s", &v); err == nil && n == 1 {
		var lines int
		parts := strings.SplitN(v, ",", 2)
		if len(parts) != 2 {
			return Params{}, fmt.Errorf("relays: want line count and masks")
		}
		if _, err := fmt.Sscanf(parts[0], "%d", &lines); err != nil {
			return Params{}, fmt.Errorf("relays: %v", err)
		}
		if p.Layout, err = relay.ParseLayout(lines, parts[1]); err != nil {
			return Params{}, fmt.Errorf("relays: %v", err)
		}
	}
	if err := p.Check(); err != nil {
		return Params{}, fmt.Errorf("%s: %v", name, err)
	}
	return p, nil
}

var terminators = map[string]string{
	"cr":   "\r",
	"lf":   "\n",
	"crlf": "\r\n",
}
