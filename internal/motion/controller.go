// Package motion sequences the rate table through its setup and run
// commands: stop, home, zero, sinusoid parameters, bipolar mode, go.
package motion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/relabs-tech/rate_table/internal/transport"
)

// Console command set of the table firmware.
const (
	cmdStop         = "STO"
	cmdHome         = "HOM"
	cmdMotionStatus = "MCO5"
	cmdZeroPosition = "PZR"
	cmdBipolarMode  = "SOS-1"
	cmdStart        = "SGO"

	// statusStopped is the motion-status value reported once the table
	// has come to rest.
	statusStopped = "0"
)

// ErrHomeTimeout is returned when the table never reports stopped within
// the homing window. Initialization cannot continue past it.
var ErrHomeTimeout = errors.New("motion: homing did not complete in time")

// Exchanger is the slice of the transport the controller needs.
type Exchanger interface {
	Exchange(cmd transport.Command) transport.Result
}

// Capability classifies the outcome of a best-effort command on firmware
// that may or may not implement it.
type Capability int

const (
	// Supported: the firmware accepted the command.
	Supported Capability = iota
	// Unsupported: the firmware answered with its error marker.
	Unsupported
	// Failed: the exchange itself failed (timeout, link error).
	Failed
)

func (c Capability) String() string {
	switch c {
	case Supported:
		return "supported"
	case Unsupported:
		return "unsupported"
	default:
		return "failed"
	}
}

// Controller drives the table's motion setup over a serialized link.
type Controller struct {
	link Exchanger

	// PollInterval and HomeTimeout govern the motion-status poll during
	// homing. Exposed so tests can run the poll loop quickly.
	PollInterval time.Duration
	HomeTimeout  time.Duration
}

func New(link Exchanger) *Controller {
	return &Controller{
		link:         link,
		PollInterval: 500 * time.Millisecond,
		HomeTimeout:  60 * time.Second,
	}
}

// StopQuiet halts any motion without echoing to the operator. Best effort:
// the response is ignored so a cold table cannot fail startup or shutdown.
func (c *Controller) StopQuiet() {
	c.link.Exchange(transport.Command{Text: cmdStop, Silent: true})
}

// Stop halts motion at the end of a test and reports the response.
func (c *Controller) Stop() transport.Result {
	return c.link.Exchange(transport.Command{Text: cmdStop})
}

// Home commands the table to its reference position and polls the motion
// status until it reports stopped. Exceeding HomeTimeout is fatal to
// initialization; the caller aborts.
func (c *Controller) Home(ctx context.Context) error {
	c.link.Exchange(transport.Command{Text: cmdHome})

	deadline := time.NewTimer(c.HomeTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(c.PollInterval)
	defer tick.Stop()

	for {
		res := c.link.Exchange(transport.Command{Text: cmdMotionStatus, Silent: true})
		if res.OK && res.Text == statusStopped {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("motion: homing interrupted: %w", ctx.Err())
		case <-deadline.C:
			return ErrHomeTimeout
		case <-tick.C:
		}
	}
}

// ZeroPosition tries to reset the position counter. Not all firmware
// revisions have the command, so absence is tolerated.
func (c *Controller) ZeroPosition() Capability {
	return c.bestEffort(cmdZeroPosition)
}

// SetBipolarMode tries to enable symmetric oscillation about zero.
func (c *Controller) SetBipolarMode() Capability {
	return c.bestEffort(cmdBipolarMode)
}

func (c *Controller) bestEffort(text string) Capability {
	res := c.link.Exchange(transport.Command{Text: text, Silent: true})
	switch {
	case res.OK:
		return Supported
	case strings.Contains(res.Text, "?"):
		return Unsupported
	default:
		return Failed
	}
}

// Configure sends the sinusoid parameters. Each command is echoed to the
// operator; a rejected parameter is surfaced but does not abort, since
// command-set variance between firmware revisions is expected.
func (c *Controller) Configure(amplitudeDeg, frequencyHz float64, cycles int) error {
	var errs []error
	for _, text := range []string{
		fmt.Sprintf("AMP%g", amplitudeDeg),
		fmt.Sprintf("FRQ%g", frequencyHz),
		fmt.Sprintf("CYC%d", cycles),
	} {
		if res := c.link.Exchange(transport.Command{Text: text}); !res.OK {
			log.Printf("motion: %s rejected: %q", text, res.Text)
			errs = append(errs, fmt.Errorf("command %s rejected: %q", text, res.Text))
		}
	}
	return errors.Join(errs...)
}

// Start begins the configured sinusoidal motion.
func (c *Controller) Start() transport.Result {
	return c.link.Exchange(transport.Command{Text: cmdStart})
}
