package poslog

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"
)

// timestampLayout matches the wall-clock format the downstream analysis
// tool already parses: millisecond precision, no timezone.
const timestampLayout = "2006-01-02 15:04:05.000"

// Writer persists records as CSV with a comment preamble carrying the test
// metadata. Records are written in emission order and never rewritten.
type Writer struct {
	f *os.File
	w *csv.Writer
}

// Create opens the log file and writes the metadata preamble and header row.
func Create(path string, amplitudeDeg, frequencyHz float64, start time.Time) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}

	preamble := fmt.Sprintf("# Rate Table Test - %s\n# Amplitude: %g deg, Freq: %g Hz\n# ---\n",
		start.Format(timestampLayout), amplitudeDeg, frequencyHz)
	if _, err := f.WriteString(preamble); err != nil {
		f.Close()
		return nil, fmt.Errorf("write log preamble: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{"Timestamp", "Time_Relative_sec", "Position_deg"}); err != nil {
		f.Close()
		return nil, fmt.Errorf("write log header: %w", err)
	}

	return &Writer{f: f, w: w}, nil
}

func (wr *Writer) Append(r Record) error {
	return wr.w.Write([]string{
		r.Timestamp.Format(timestampLayout),
		fmt.Sprintf("%.6f", r.Relative),
		fmt.Sprintf("%.4f", r.Position),
	})
}

// Flush pushes buffered rows to the OS and syncs them to disk, so records
// written before a crash survive it.
func (wr *Writer) Flush() error {
	wr.w.Flush()
	if err := wr.w.Error(); err != nil {
		return err
	}
	return wr.f.Sync()
}

func (wr *Writer) Close() error {
	wr.w.Flush()
	if err := wr.w.Error(); err != nil {
		wr.f.Close()
		return err
	}
	return wr.f.Close()
}
