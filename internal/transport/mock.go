package transport

import (
	"io"
	"strings"
	"sync"
	"time"
)

// MockPort implements Porter for testing. Reads serve from ReadData and
// return io.EOF when it is empty, mirroring a real port with nothing
// buffered. When Respond is set, each written command (CR stripped) queues
// the scripted reply for the next reads.
type MockPort struct {
	mu sync.Mutex

	ReadData []byte
	Writes   []string // commands seen, carriage return stripped
	raw      []byte   // every byte written, verbatim

	Respond func(cmd string) string

	ReadError  error
	WriteError error
	CloseError error
	Closed     bool
	ReadDelay  time.Duration
}

func (m *MockPort) Read(p []byte) (int, error) {
	if m.ReadDelay > 0 {
		time.Sleep(m.ReadDelay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ReadError != nil {
		return 0, m.ReadError
	}
	if len(m.ReadData) == 0 {
		return 0, io.EOF
	}

	n := copy(p, m.ReadData)
	m.ReadData = m.ReadData[n:]
	return n, nil
}

func (m *MockPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.WriteError != nil {
		return 0, m.WriteError
	}

	m.raw = append(m.raw, p...)
	cmd := strings.TrimSuffix(string(p), "\r")
	m.Writes = append(m.Writes, cmd)

	if m.Respond != nil {
		m.ReadData = append(m.ReadData, []byte(m.Respond(cmd))...)
	}
	return len(p), nil
}

func (m *MockPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return m.CloseError
}

// WrittenBytes returns everything written to the port so far.
func (m *MockPort) WrittenBytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.raw...)
}

// WrittenCommands returns the commands written so far, CR stripped.
func (m *MockPort) WrittenCommands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Writes...)
}
