// Package sampling runs the concurrent encoder polling loop and the
// outlier policy applied to its raw readings.
package sampling

import "math"

// Filter rejects implausible encoder readings. The table occasionally
// reports spurious excursions; a rejected reading is substituted with the
// last accepted value so the log keeps a fixed-rate time series for
// correlation against the independently logged IMU. No tick is ever
// dropped for being out of range.
type Filter struct {
	MinPos  float64
	MaxPos  float64
	MaxJump float64

	lastValid float64
	samples   int
}

// Apply decides what to record for one raw reading. A reading outside
// [MinPos, MaxPos], or further than MaxJump from the last accepted value,
// yields the last accepted value instead; the jump check is skipped for
// the very first sample. accepted reports whether the raw reading itself
// was recorded.
func (f *Filter) Apply(raw float64) (emit float64, accepted bool) {
	first := f.samples == 0
	f.samples++

	if raw < f.MinPos || raw > f.MaxPos {
		return f.lastValid, false
	}
	if !first && math.Abs(raw-f.lastValid) > f.MaxJump {
		return f.lastValid, false
	}

	f.lastValid = raw
	return raw, true
}
