package sample

import (
	"time"
)

// Sample is one accepted latency measurement from a successful trial.
// CapturedAt is the moment the accepted request was issued.
type Sample struct {
	CapturedAt time.Time
	Latency    time.Duration
}

// Seconds returns the latency in seconds, the unit used on disk.
func (s Sample) Seconds() float64 {
	return s.Latency.Seconds()
}

// FromSeconds builds a Sample from an on-disk record.
func FromSeconds(capturedAt time.Time, seconds float64) Sample {
	return Sample{
		CapturedAt: capturedAt,
		Latency:    time.Duration(seconds * float64(time.Second)),
	}
}
