package poslog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.csv")
	start := time.Date(2026, 8, 26, 10, 30, 0, 0, time.Local)

	w, err := Create(path, 20, 0.3, start)
	require.NoError(t, err)

	require.NoError(t, w.Append(Record{
		Timestamp: start.Add(200 * time.Millisecond),
		Relative:  0.2,
		Position:  12.34567,
	}))
	require.NoError(t, w.Append(Record{
		Timestamp: start.Add(400 * time.Millisecond),
		Relative:  0.4,
		Position:  -5.5,
	}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")

	require.Len(t, lines, 6)
	assert.Equal(t, "# Rate Table Test - 2026-08-26 10:30:00.000", lines[0])
	assert.Equal(t, "# Amplitude: 20 deg, Freq: 0.3 Hz", lines[1])
	assert.Equal(t, "# ---", lines[2])
	assert.Equal(t, "Timestamp,Time_Relative_sec,Position_deg", lines[3])
	assert.Equal(t, "2026-08-26 10:30:00.200,0.200000,12.3457", lines[4])
	assert.Equal(t, "2026-08-26 10:30:00.400,0.400000,-5.5000", lines[5])
}

func TestMultiFansOut(t *testing.T) {
	a, b := &Memory{}, &Memory{}
	sink := Multi(a, b)

	rec := Record{Relative: 1.5, Position: 3}
	require.NoError(t, sink.Append(rec))
	require.NoError(t, sink.Flush())

	assert.Equal(t, []Record{rec}, a.Records)
	assert.Equal(t, []Record{rec}, b.Records)
}
