// Package transport owns the serial connection to the rate table and frames
// the table's prompt-delimited ASCII console protocol: commands go out with a
// trailing carriage return, responses accumulate until the '>' prompt appears
// or the exchange times out, and a '?' anywhere in the response marks a
// firmware error.
package transport

import (
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	promptTerminator = ">"
	errorMarker      = "?"

	// DefaultTimeout bounds a normal command/response exchange.
	DefaultTimeout = 2 * time.Second

	// positionCommand is the fast-path encoder position query.
	positionCommand = "PPO"
	queryTimeout    = 500 * time.Millisecond

	// readPause is the idle wait between reads while accumulating a response.
	readPause = 10 * time.Millisecond
)

// Command is one outbound console command.
type Command struct {
	Text    string
	Timeout time.Duration // zero means DefaultTimeout
	Silent  bool          // suppress the operator echo on success
}

// Result is the outcome of one exchange. OK is false when the response
// carried the error marker or the prompt never arrived within the timeout.
type Result struct {
	OK   bool
	Text string
}

// Link is the single owner of the serial port. Both the orchestration side
// and the sampling side talk to the table through the same Link; the mutex
// keeps their command/response frames from interleaving.
type Link struct {
	mu     sync.Mutex
	port   Porter
	closed bool
}

// NewLink wraps an already-open port.
func NewLink(port Porter) *Link {
	return &Link{port: port}
}

// Exchange writes one command and collects the response up to the prompt.
func (l *Link) Exchange(cmd Command) Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.exchange(cmd)
}

func (l *Link) exchange(cmd Command) Result {
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	l.drain()

	if _, err := l.port.Write([]byte(cmd.Text + "\r")); err != nil {
		return Result{OK: false, Text: err.Error()}
	}

	raw, sawPrompt := l.collect(timeout)

	text := strings.ReplaceAll(raw, promptTerminator, "")
	text = strings.ReplaceAll(text, "\r", "")
	text = strings.ReplaceAll(text, "\n", "")
	text = strings.TrimSpace(text)

	if strings.Contains(text, errorMarker) {
		return Result{OK: false, Text: text}
	}
	if !sawPrompt {
		return Result{OK: false, Text: text}
	}

	if !cmd.Silent {
		if text == "" {
			log.Printf("  %s: OK", cmd.Text)
		} else {
			log.Printf("  %s: %s", cmd.Text, text)
		}
	}
	return Result{OK: true, Text: text}
}

// collect reads until the prompt terminator shows up in the accumulated
// response or the deadline passes.
func (l *Link) collect(timeout time.Duration) (raw string, sawPrompt bool) {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 256)
	var response []byte

	for time.Now().Before(deadline) {
		n, err := l.port.Read(buf)
		if n > 0 {
			response = append(response, buf[:n]...)
			if strings.Contains(string(response), promptTerminator) {
				return string(response), true
			}
		}
		if err != nil && err != io.EOF {
			break
		}
		if n == 0 {
			time.Sleep(readPause)
		}
	}
	return string(response), false
}

// drain discards anything left in the receive buffer from a previous
// exchange that timed out mid-response.
func (l *Link) drain() {
	buf := make([]byte, 256)
	for {
		n, err := l.port.Read(buf)
		if n == 0 || err != nil {
			return
		}
	}
}

// QueryPosition reads the current encoder position in degrees. It is tuned
// for high-frequency polling: short fixed timeout, always silent, and every
// failure mode (timeout, error marker, garbled text) reduces to ok=false.
func (l *Link) QueryPosition() (pos float64, ok bool) {
	l.mu.Lock()
	res := l.exchange(Command{Text: positionCommand, Timeout: queryTimeout, Silent: true})
	l.mu.Unlock()

	text := res.Text
	// The firmware echoes the command name ahead of the value.
	if strings.HasPrefix(text, positionCommand) {
		text = strings.TrimSpace(strings.TrimPrefix(text, positionCommand))
	}
	if !res.OK || text == "" {
		return 0, false
	}

	val, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false
	}
	return val, true
}

// Close shuts the port down. Safe to call twice, or on a Link that was
// never opened.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.port == nil {
		return nil
	}
	l.closed = true
	return l.port.Close()
}
