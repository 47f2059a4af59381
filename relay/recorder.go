package relay

import "sync"

// Recorder is a Driver that only remembers what it was told.
type Recorder struct {
	mu      sync.Mutex
	current Pattern
	history []Pattern
	// Err, if set, is returned by SetOutputs and the pattern is not applied.
	Err error
}

func (r *Recorder) SetOutputs(p Pattern) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.current = p
	r.history = append(r.history, p)
	return nil
}

func (r *Recorder) Current() Pattern {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// History returns every pattern applied so far.
func (r *Recorder) History() []Pattern {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Pattern(nil), r.history...)
}
