package run

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/rate_table/internal/motion"
	"github.com/relabs-tech/rate_table/internal/poslog"
	"github.com/relabs-tech/rate_table/internal/sampling"
	"github.com/relabs-tech/rate_table/internal/transport"
)

// tableSim answers like the table firmware: motion-status queries report
// moving for a few polls and then stopped, position queries return a slow
// ramp, everything else is accepted with a bare prompt.
type tableSim struct {
	mu          sync.Mutex
	statusPolls int
	pollsToStop int
	homeBroken  bool
	position    float64
}

func (s *tableSim) respond(cmd string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case cmd == "MCO5":
		s.statusPolls++
		if s.homeBroken || s.statusPolls <= s.pollsToStop {
			return "1\r\n>"
		}
		return "0\r\n>"
	case cmd == "PPO":
		s.position += 0.5
		return fmt.Sprintf("PPO %.4f\r\n>", s.position)
	default:
		return ">"
	}
}

func lastIndex(cmds []string, want string) int {
	last := -1
	for i, c := range cmds {
		if c == want {
			last = i
		}
	}
	return last
}

type harness struct {
	orch *Orchestrator
	port *transport.MockPort
	mem  *poslog.Memory
}

func newHarness(t *testing.T, sim *tableSim) *harness {
	t.Helper()

	port := &transport.MockPort{Respond: sim.respond}
	link := transport.NewLink(port)

	m := motion.New(link)
	m.PollInterval = 5 * time.Millisecond
	m.HomeTimeout = 100 * time.Millisecond

	mem := &poslog.Memory{}
	s := &sampling.Sampler{
		Query:    link,
		Filter:   &sampling.Filter{MinPos: -30, MaxPos: 50, MaxJump: 30},
		Sink:     mem,
		Interval: 10 * time.Millisecond,
	}

	o := New(m, s)
	o.AmplitudeDeg = 20
	o.FrequencyHz = 0.3
	o.NumCycles = 54
	o.Duration = 80 * time.Millisecond
	o.SettleDelay = 20 * time.Millisecond
	o.StopMargin = 20 * time.Millisecond
	o.JoinTimeout = time.Second
	o.CountdownFrom = 0
	o.InitPause = 5 * time.Millisecond
	o.Confirm = func(context.Context) error { return nil }

	return &harness{orch: o, port: port, mem: mem}
}

func TestRunHappyPath(t *testing.T) {
	h := newHarness(t, &tableSim{pollsToStop: 3})

	var states []State
	h.orch.Notify = func(s State) { states = append(states, s) }

	stats, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Completed, h.orch.State())
	assert.Equal(t,
		[]State{Connected, Initialized, Armed, Running, Completed}, states)

	assert.Greater(t, stats.Samples, 0)
	assert.Len(t, h.mem.Records, stats.Samples)
	for i := 1; i < len(h.mem.Records); i++ {
		assert.GreaterOrEqual(t,
			h.mem.Records[i].Relative, h.mem.Records[i-1].Relative)
	}

	// Setup commands went out in order, and motion was started and then
	// stopped again after the duration elapsed.
	cmds := h.port.WrittenCommands()
	joined := strings.Join(cmds, " ")
	assert.Equal(t, "STO", cmds[0])
	assert.Contains(t, joined, "HOM")
	assert.Contains(t, joined, "AMP20 FRQ0.3 CYC54")
	assert.Greater(t, lastIndex(cmds, "STO"), lastIndex(cmds, "SGO"))
}

func TestRunAbortsWhenHomingFails(t *testing.T) {
	h := newHarness(t, &tableSim{homeBroken: true})

	_, err := h.orch.Run(context.Background())

	require.ErrorIs(t, err, motion.ErrHomeTimeout)
	assert.Equal(t, Aborted, h.orch.State())

	// The abort path still issues a best-effort stop.
	cmds := h.port.WrittenCommands()
	assert.Equal(t, "STO", cmds[len(cmds)-1])
	// And the sampler never ran.
	assert.Empty(t, h.mem.Records)
}

func TestRunAbortsOnOperatorCancel(t *testing.T) {
	h := newHarness(t, &tableSim{pollsToStop: 1})
	h.orch.Duration = 10 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	h.orch.Notify = func(s State) {
		if s == Running {
			close(started)
		}
	}
	go func() {
		<-started
		cancel()
	}()

	_, err := h.orch.Run(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Aborted, h.orch.State())
	cmds := h.port.WrittenCommands()
	assert.Equal(t, "STO", cmds[len(cmds)-1])
}

func TestRunAbortsWhenConfirmationRefused(t *testing.T) {
	h := newHarness(t, &tableSim{pollsToStop: 1})
	h.orch.Confirm = func(context.Context) error {
		return context.Canceled
	}

	_, err := h.orch.Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, Aborted, h.orch.State())
	assert.Empty(t, h.mem.Records)
}
