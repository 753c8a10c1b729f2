package motion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/rate_table/internal/transport"
)

// tableSim scripts the firmware side of the link. Motion-status queries
// walk through statusReplies; everything else answers from replies or a
// plain prompt.
type tableSim struct {
	statusReplies []string
	statusPolls   int
	replies       map[string]string
}

func (s *tableSim) respond(cmd string) string {
	if cmd == "MCO5" {
		reply := s.statusReplies[len(s.statusReplies)-1]
		if s.statusPolls < len(s.statusReplies) {
			reply = s.statusReplies[s.statusPolls]
		}
		s.statusPolls++
		return reply + "\r\n>"
	}
	if r, ok := s.replies[cmd]; ok {
		return r
	}
	return ">"
}

func newTestController(sim *tableSim) (*Controller, *transport.MockPort) {
	port := &transport.MockPort{Respond: sim.respond}
	c := New(transport.NewLink(port))
	c.PollInterval = 5 * time.Millisecond
	c.HomeTimeout = 250 * time.Millisecond
	return c, port
}

func TestHomeSucceedsOnNthPoll(t *testing.T) {
	sim := &tableSim{statusReplies: []string{"1", "1", "1", "0"}}
	c, port := newTestController(sim)

	err := c.Home(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 4, sim.statusPolls)
	assert.Equal(t, "HOM", port.WrittenCommands()[0])
}

func TestHomeTimesOutWhenNeverStopped(t *testing.T) {
	sim := &tableSim{statusReplies: []string{"1"}}
	c, _ := newTestController(sim)

	err := c.Home(context.Background())

	require.ErrorIs(t, err, ErrHomeTimeout)
	assert.Greater(t, sim.statusPolls, 1)
}

func TestHomeStopsOnContextCancel(t *testing.T) {
	sim := &tableSim{statusReplies: []string{"1"}}
	c, _ := newTestController(sim)
	c.HomeTimeout = 10 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := c.Home(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrHomeTimeout)
}

func TestConfigureSendsParametersInOrder(t *testing.T) {
	sim := &tableSim{}
	c, port := newTestController(sim)

	err := c.Configure(20, 0.3, 54)

	require.NoError(t, err)
	assert.Equal(t, []string{"AMP20", "FRQ0.3", "CYC54"}, port.WrittenCommands())
}

func TestConfigureSurfacesRejectionsWithoutAborting(t *testing.T) {
	sim := &tableSim{replies: map[string]string{"FRQ0.3": "?\r\n>"}}
	c, port := newTestController(sim)

	err := c.Configure(20, 0.3, 54)

	require.Error(t, err)
	// The cycle count still goes out after the rejected frequency.
	assert.Contains(t, port.WrittenCommands(), "CYC54")
}

func TestBestEffortCapabilities(t *testing.T) {
	t.Run("supported", func(t *testing.T) {
		c, _ := newTestController(&tableSim{})
		assert.Equal(t, Supported, c.ZeroPosition())
	})

	t.Run("unsupported", func(t *testing.T) {
		c, _ := newTestController(&tableSim{replies: map[string]string{"PZR": "?\r\n>", "SOS-1": "?\r\n>"}})
		assert.Equal(t, Unsupported, c.SetBipolarMode())
	})

	t.Run("failed", func(t *testing.T) {
		port := &transport.MockPort{} // never answers: exchange times out
		link := transport.NewLink(port)
		c := New(link)
		// Keep the test fast: the default exchange timeout applies, so
		// use a port that errors instead.
		port.WriteError = assert.AnError
		assert.Equal(t, Failed, c.ZeroPosition())
	})
}

func TestStopAndStart(t *testing.T) {
	sim := &tableSim{}
	c, port := newTestController(sim)

	c.StopQuiet()
	res := c.Start()
	require.True(t, res.OK)

	final := c.Stop()
	require.True(t, final.OK)
	assert.Equal(t, []string{"STO", "SGO", "STO"}, port.WrittenCommands())
}
