package sampling

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/relabs-tech/rate_table/internal/poslog"
)

// gatePause is the granularity of the rate-limiting wait. Cancellation
// latency is roughly one such interval.
const gatePause = 10 * time.Millisecond

// PositionQuerier is the fast-path encoder read the sampler polls.
type PositionQuerier interface {
	QueryPosition() (float64, bool)
}

// Stats summarizes one sampling session.
type Stats struct {
	Samples     int           // records emitted
	Substituted int           // records where the raw reading was rejected
	Elapsed     time.Duration // wall time from session start to loop exit
}

// Sampler polls the encoder at a target rate, filters the readings, and
// appends one record per accepted tick to the sink. It runs as its own
// goroutine for the duration of the motion phase; the context is its only
// stop signal.
type Sampler struct {
	Query  PositionQuerier
	Filter *Filter
	Sink   poslog.Sink

	// Interval is the minimum spacing between emitted records
	// (1 / target sample rate).
	Interval time.Duration

	// Publish, when set, is called with every emitted record.
	Publish func(poslog.Record)

	// ProgressEvery triggers an operator progress line and a durability
	// flush after that many records. Zero disables it.
	ProgressEvery int
}

// Run executes the sampling loop until ctx is cancelled. Records carry a
// relative time measured from the moment Run starts, so they are strictly
// ordered by construction: one sequential loop, one writer.
func (s *Sampler) Run(ctx context.Context) (Stats, error) {
	start := time.Now()
	var stats Stats
	var lastSample time.Time

	tick := time.NewTicker(gatePause)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			stats.Elapsed = time.Since(start)
			if err := s.Sink.Flush(); err != nil {
				return stats, fmt.Errorf("sampling: final flush: %w", err)
			}
			return stats, nil
		case <-tick.C:
		}

		if !lastSample.IsZero() && time.Since(lastSample) < s.Interval {
			continue
		}

		raw, ok := s.Query.QueryPosition()
		if !ok {
			// Garbled or timed-out query: skip the tick, no record.
			continue
		}

		pos, accepted := s.Filter.Apply(raw)
		if !accepted {
			stats.Substituted++
		}

		now := time.Now()
		rec := poslog.Record{
			Timestamp: now,
			Relative:  now.Sub(start).Seconds(),
			Position:  pos,
		}
		if err := s.Sink.Append(rec); err != nil {
			stats.Elapsed = time.Since(start)
			return stats, fmt.Errorf("sampling: append record: %w", err)
		}
		if s.Publish != nil {
			s.Publish(rec)
		}

		stats.Samples++
		lastSample = now

		if s.ProgressEvery > 0 && stats.Samples%s.ProgressEvery == 0 {
			log.Printf("sampling: %d samples | %.0fs | %.1f deg",
				stats.Samples, rec.Relative, pos)
			if err := s.Sink.Flush(); err != nil {
				log.Printf("sampling: flush error: %v", err)
			}
		}
	}
}
