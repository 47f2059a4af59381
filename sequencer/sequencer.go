package sequencer

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/w1xm/covers_interface/persist"
	"github.com/w1xm/covers_interface/relay"
)

// TickPeriod is the fixed interval between calls to Tick.
const TickPeriod = 1 * time.Second

// Sequencer runs the relays for a two panel roof. Request may be called from
// any goroutine; Tick must only be called from one.
type Sequencer struct {
	params Params
	driver relay.Driver
	store  persist.Store

	// critical is held for the whole of Tick and around the persisted write
	// in Request, so a tick never observes a half-finished request.
	critical sync.Mutex

	// requested is written only by Request.
	requested atomic.Uint32
	// progress packs the committed state and move counter; written only by Tick.
	progress atomic.Uint32

	// Owned by Tick.
	pattern relay.Pattern
	applied bool
	resume  bool
}

func pack(state State, counter int) uint32 {
	return uint32(state)<<16 | uint32(counter)
}

func unpack(v uint32) (State, int) {
	return State(v >> 16), int(v & 0xFFFF)
}

// New creates a sequencer with the relays released. When the variant
// persists its state, the stored target is loaded and driven again on the
// first tick.
func New(params Params, driver relay.Driver, store persist.Store) (*Sequencer, error) {
	if err := params.Check(); err != nil {
		return nil, err
	}
	s := &Sequencer{
		params: params,
		driver: driver,
		store:  store,
	}
	initial := Stopped
	if params.Persist && store != nil {
		v, err := store.Load()
		if err != nil {
			return nil, fmt.Errorf("loading state: %w", err)
		}
		if st := State(v); st.Valid() {
			initial = st
		} else {
			log.Printf("ignoring invalid persisted state %d", v)
		}
	}
	s.requested.Store(uint32(initial))
	s.progress.Store(pack(initial, 0))
	s.resume = initial != Stopped
	if err := driver.SetOutputs(relay.Idle); err != nil {
		return nil, fmt.Errorf("releasing relays: %w", err)
	}
	s.applied = true
	return s, nil
}

func (s *Sequencer) Params() Params {
	return s.params
}

// Request sets the target state. It takes effect on the next tick.
func (s *Sequencer) Request(st State) error {
	if !st.Valid() {
		return fmt.Errorf("invalid state %d", st)
	}
	s.critical.Lock()
	defer s.critical.Unlock()
	s.requested.Store(uint32(st))
	if s.params.Persist && s.store != nil {
		if err := s.store.Store(byte(st)); err != nil {
			return fmt.Errorf("persisting %v: %w", st, err)
		}
	}
	return nil
}

func (s *Sequencer) Requested() State {
	return State(s.requested.Load())
}

func (s *Sequencer) Status() Status {
	st, counter := unpack(s.progress.Load())
	return Status{State: st, MoveCounter: counter}
}

// Pattern returns the relay pattern most recently computed by Tick.
func (s *Sequencer) Pattern() relay.Pattern {
	s.critical.Lock()
	defer s.critical.Unlock()
	return s.pattern
}

// Tick advances the sequence by one period.
func (s *Sequencer) Tick() {
	s.critical.Lock()
	defer s.critical.Unlock()

	p := s.params
	cur, counter := unpack(s.progress.Load())
	req := State(s.requested.Load())
	resume := s.resume
	s.resume = false

	if counter > 0 && p.elapsed(counter) == p.Window {
		log.Printf("%v: active window elapsed; releasing relays", cur)
		counter = 0
	}
	if counter > 0 {
		counter = p.advance(counter)
	}

	switch {
	case req == cur && !resume:
	case req == cur:
		log.Printf("resuming %v after restart", cur)
		counter = p.start()
	case req == Stopped || (p.ReverseViaStop && cur != Stopped):
		log.Printf("%v -> %v: stopping", cur, req)
		cur, counter = Stopped, 0
	default:
		log.Printf("%v -> %v: starting", cur, req)
		cur, counter = req, p.start()
	}

	s.progress.Store(pack(cur, counter))
	s.drive(s.patternFor(cur, counter))
}

// patternFor derives the relay output from the committed state and counter.
// The counter is the value that will be read at the top of the next tick.
func (s *Sequencer) patternFor(cur State, counter int) relay.Pattern {
	if counter == 0 || cur == Stopped {
		return relay.Idle
	}
	if s.params.elapsed(counter) > s.params.Stagger {
		return relay.Full(cur.direction())
	}
	return relay.Lead(cur.direction())
}

// drive applies p, retrying on later ticks if the driver fails.
func (s *Sequencer) drive(p relay.Pattern) {
	if p == s.pattern && s.applied {
		return
	}
	s.pattern = p
	s.applied = false
	if err := s.driver.SetOutputs(p); err != nil {
		log.Printf("setting relays to %v: %v", p, err)
		return
	}
	s.applied = true
}
