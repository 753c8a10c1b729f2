// Package poslog defines the encoder position record and the append-only
// sinks it is written to.
package poslog

import "time"

// Record is one timestamped encoder position, emitted once per accepted
// sampling tick.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Relative  float64   `json:"t_rel_sec"`    // seconds since sampling started
	Position  float64   `json:"position_deg"` // degrees
}

// Sink is an ordered, append-only record store.
type Sink interface {
	Append(Record) error
	Flush() error
}

// Memory is a Sink that keeps records in a slice. Used for tests and to
// tee records into the run archive.
type Memory struct {
	Records []Record
}

func (m *Memory) Append(r Record) error {
	m.Records = append(m.Records, r)
	return nil
}

func (m *Memory) Flush() error { return nil }

// Multi fans records out to several sinks in order.
func Multi(sinks ...Sink) Sink { return multiSink(sinks) }

type multiSink []Sink

func (s multiSink) Append(r Record) error {
	for _, sink := range s {
		if err := sink.Append(r); err != nil {
			return err
		}
	}
	return nil
}

func (s multiSink) Flush() error {
	for _, sink := range s {
		if err := sink.Flush(); err != nil {
			return err
		}
	}
	return nil
}
