// Package profiler times the phases of a purge. It is observational only:
// nothing a sink does can change the outcome of the purge it measures.
package profiler

import (
	"fmt"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/dray-io/purger/internal/logging"
)

// Profiler brackets units of work. Stop ends the most recently started phase.
type Profiler interface {
	Start(label string)
	Stop()
}

// Sink receives finished phases.
type Sink interface {
	PhaseFinished(label string, d time.Duration)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(label string, d time.Duration)

// PhaseFinished calls f.
func (f SinkFunc) PhaseFinished(label string, d time.Duration) { f(label, d) }

// FailureRecorder counts sink failures. *metrics.PurgeMetrics satisfies it.
type FailureRecorder interface {
	RecordProfilerFailure()
}

type phase struct {
	label   string
	started time.Time
}

// PhaseProfiler is a Profiler that keeps a stack of open phases so brackets
// may nest, and reports each finished phase to its sinks. A panicking sink is
// recovered, logged and counted.
type PhaseProfiler struct {
	clock    clock.Clock
	sinks    []Sink
	logger   *logging.Logger
	failures FailureRecorder

	mu    sync.Mutex
	stack []phase
}

// Option configures a PhaseProfiler.
type Option func(*PhaseProfiler)

// WithClock sets the time source. The default is the wall clock.
func WithClock(c clock.Clock) Option {
	return func(p *PhaseProfiler) { p.clock = c }
}

// WithLogger sets the logger used to report sink failures.
func WithLogger(l *logging.Logger) Option {
	return func(p *PhaseProfiler) { p.logger = l }
}

// WithFailureRecorder counts isolated sink failures.
func WithFailureRecorder(r FailureRecorder) Option {
	return func(p *PhaseProfiler) { p.failures = r }
}

// New creates a PhaseProfiler reporting to sinks.
func New(sinks []Sink, opts ...Option) *PhaseProfiler {
	p := &PhaseProfiler{
		clock: clock.WallClock,
		sinks: sinks,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logging.Global()
	}
	return p
}

// Start opens a phase named label.
func (p *PhaseProfiler) Start(label string) {
	now := p.now()
	p.mu.Lock()
	p.stack = append(p.stack, phase{label: label, started: now})
	p.mu.Unlock()
}

// Stop closes the most recently started phase. A Stop without a matching
// Start is logged and otherwise ignored.
func (p *PhaseProfiler) Stop() {
	now := p.now()

	p.mu.Lock()
	if len(p.stack) == 0 {
		p.mu.Unlock()
		p.logger.Warn("profiler stop without open phase")
		return
	}
	top := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	p.mu.Unlock()

	d := now.Sub(top.started)
	for _, s := range p.sinks {
		p.report(s, top.label, d)
	}
}

// Open returns the number of phases started but not yet stopped.
func (p *PhaseProfiler) Open() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.stack)
}

func (p *PhaseProfiler) now() (t time.Time) {
	defer func() {
		if r := recover(); r != nil {
			p.fail("clock", r)
			t = time.Now()
		}
	}()
	return p.clock.Now()
}

func (p *PhaseProfiler) report(s Sink, label string, d time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			p.fail(label, r)
		}
	}()
	s.PhaseFinished(label, d)
}

func (p *PhaseProfiler) fail(label string, r any) {
	p.logger.Warnf("profiler sink failed", logging.Fields{
		"phase": label,
		"error": fmt.Sprint(r),
	})
	if p.failures != nil {
		p.failures.RecordProfilerFailure()
	}
}

type nop struct{}

func (nop) Start(string) {}
func (nop) Stop()        {}

// Nop returns a Profiler that records nothing.
func Nop() Profiler { return nop{} }

// Isolate wraps p so that a panic inside Start or Stop is logged and
// swallowed. Purge code wraps every injected profiler this way.
func Isolate(p Profiler, l *logging.Logger) Profiler {
	if p == nil {
		return Nop()
	}
	if l == nil {
		l = logging.Global()
	}
	return isolated{p: p, logger: l}
}

type isolated struct {
	p      Profiler
	logger *logging.Logger
}

func (i isolated) Start(label string) {
	defer i.catch("start", label)
	i.p.Start(label)
}

func (i isolated) Stop() {
	defer i.catch("stop", "")
	i.p.Stop()
}

func (i isolated) catch(op, label string) {
	if r := recover(); r != nil {
		i.logger.Warnf("profiler failed", logging.Fields{
			"op":    op,
			"phase": label,
			"error": fmt.Sprint(r),
		})
	}
}
