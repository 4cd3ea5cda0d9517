package profiler

import "sync"

// Recorder is a Profiler that remembers every bracket in order. It is
// exported so that tests in other packages can assert on phase sequencing.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	open   []string
}

// Event is one Start or Stop observed by a Recorder.
type Event struct {
	Start bool
	Label string
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Start(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Start: true, Label: label})
	r.open = append(r.open, label)
}

func (r *Recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	label := ""
	if n := len(r.open); n > 0 {
		label = r.open[n-1]
		r.open = r.open[:n-1]
	}
	r.events = append(r.events, Event{Start: false, Label: label})
}

// Events returns a copy of all brackets observed so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Phases returns the labels of completed phases in the order they stopped.
func (r *Recorder) Phases() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if !e.Start {
			out = append(out, e.Label)
		}
	}
	return out
}

// Balanced reports whether every Start was matched by exactly one Stop.
func (r *Recorder) Balanced() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	depth := 0
	for _, e := range r.events {
		if e.Start {
			depth++
		} else {
			depth--
		}
		if depth < 0 {
			return false
		}
	}
	return depth == 0
}
