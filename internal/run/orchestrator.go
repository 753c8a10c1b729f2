// Package run coordinates one rate-table test: motion setup, the operator
// confirmation gate, the concurrent sampling loop, and shutdown.
package run

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/relabs-tech/rate_table/internal/motion"
	"github.com/relabs-tech/rate_table/internal/sampling"
)

// State is the test lifecycle position. Aborted is terminal and reachable
// from any state on unrecoverable failure or operator cancellation.
type State int

const (
	Disconnected State = iota
	Connected
	Initialized
	Armed
	Running
	Completed
	Aborted
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connected:
		return "Connected"
	case Initialized:
		return "Initialized"
	case Armed:
		return "Armed"
	case Running:
		return "Running"
	case Completed:
		return "Completed"
	case Aborted:
		return "Aborted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Orchestrator owns one test session end to end. It is constructed around
// an already-open link (wrapped by Motion and Sampler); there are no
// package-level globals, and the context passed to Run is the only
// cancellation signal.
type Orchestrator struct {
	Motion  *motion.Controller
	Sampler *sampling.Sampler

	// Confirm blocks between Initialized and Armed until the operator
	// signals readiness (the IMU logger must be started by hand first).
	Confirm func(ctx context.Context) error

	// Notify observes every state transition. Optional.
	Notify func(State)

	// Motion profile sent during initialization.
	AmplitudeDeg float64
	FrequencyHz  float64
	NumCycles    int

	// Duration is the motion phase; StopMargin is waited on top of it
	// before the stop command. SettleDelay gives the sampler a head
	// start before motion begins. JoinTimeout bounds the wait for the
	// sampler to flush and exit, since it may be mid-exchange.
	Duration    time.Duration
	SettleDelay time.Duration
	StopMargin  time.Duration
	JoinTimeout time.Duration

	// CountdownFrom counts seconds down to motion start. Zero skips it.
	CountdownFrom int

	// InitPause follows the initial quiet stop, letting the table absorb
	// it before homing.
	InitPause time.Duration

	state State
}

// New returns an orchestrator with the rig's standard timings.
func New(m *motion.Controller, s *sampling.Sampler) *Orchestrator {
	return &Orchestrator{
		Motion:        m,
		Sampler:       s,
		SettleDelay:   2 * time.Second,
		StopMargin:    5 * time.Second,
		JoinTimeout:   10 * time.Second,
		CountdownFrom: 3,
		InitPause:     time.Second,
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State { return o.state }

type samplerResult struct {
	stats sampling.Stats
	err   error
}

// Run executes the full test lifecycle and returns the sampling statistics.
// On any failure or cancellation it issues a best-effort stop and lands in
// Aborted; transport close stays with the caller that opened the link.
func (o *Orchestrator) Run(ctx context.Context) (sampling.Stats, error) {
	var stats sampling.Stats

	o.setState(Connected)

	// Quiet any leftover motion, then give the table a moment.
	o.Motion.StopQuiet()
	if err := sleepCtx(ctx, o.InitPause); err != nil {
		return stats, o.abort(err)
	}

	log.Println("run: homing...")
	if err := o.Motion.Home(ctx); err != nil {
		return stats, o.abort(fmt.Errorf("initialization failed: %w", err))
	}

	if c := o.Motion.ZeroPosition(); c != motion.Supported {
		log.Printf("run: zero position counter %s", c)
	}

	log.Println("run: setting parameters...")
	if err := o.Motion.Configure(o.AmplitudeDeg, o.FrequencyHz, o.NumCycles); err != nil {
		// Firmware variance: surfaced, not fatal.
		log.Printf("run: parameter warnings: %v", err)
	}

	if c := o.Motion.SetBipolarMode(); c != motion.Supported {
		log.Printf("run: bipolar mode %s", c)
	}
	o.setState(Initialized)

	if o.Confirm != nil {
		if err := o.Confirm(ctx); err != nil {
			return stats, o.abort(fmt.Errorf("operator confirmation: %w", err))
		}
	}
	o.setState(Armed)

	sampCtx, cancelSampler := context.WithCancel(context.Background())
	defer cancelSampler()
	done := make(chan samplerResult, 1)
	go func() {
		st, err := o.Sampler.Run(sampCtx)
		done <- samplerResult{st, err}
	}()

	// Let the sampler log a few baseline records before motion starts.
	if err := sleepCtx(ctx, o.SettleDelay); err != nil {
		cancelSampler()
		stats, _ = o.join(done)
		return stats, o.abort(err)
	}

	for i := o.CountdownFrom; i > 0; i-- {
		log.Printf("run: starting motion in %d...", i)
		if err := sleepCtx(ctx, time.Second); err != nil {
			cancelSampler()
			stats, _ = o.join(done)
			return stats, o.abort(err)
		}
	}

	o.Motion.Start()
	o.setState(Running)
	log.Printf("run: running for %s...", o.Duration)

	if err := sleepCtx(ctx, o.Duration+o.StopMargin); err != nil {
		// Interrupted mid-run: stop the table even though the sampler
		// may not have seen the cancellation yet.
		cancelSampler()
		stats, _ = o.join(done)
		return stats, o.abort(err)
	}

	o.Motion.Stop()
	cancelSampler()

	var sampErr error
	stats, sampErr = o.join(done)
	o.setState(Completed)
	if sampErr != nil {
		return stats, fmt.Errorf("sampler: %w", sampErr)
	}
	return stats, nil
}

func (o *Orchestrator) abort(err error) error {
	o.Motion.StopQuiet()
	o.setState(Aborted)
	return err
}

// join waits for the sampler goroutine, bounded: it may be blocked in a
// serial exchange and cannot stop instantly.
func (o *Orchestrator) join(done <-chan samplerResult) (sampling.Stats, error) {
	select {
	case r := <-done:
		return r.stats, r.err
	case <-time.After(o.JoinTimeout):
		log.Printf("run: sampler did not exit within %s", o.JoinTimeout)
		return sampling.Stats{}, nil
	}
}

func (o *Orchestrator) setState(s State) {
	o.state = s
	log.Printf("run: state %s", s)
	if o.Notify != nil {
		o.Notify(s)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
