package stats

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"coldbench/internal/sample"
)

// Summary holds descriptive statistics for one sample set, in milliseconds.
type Summary struct {
	Count    int     `json:"count"`
	MeanMs   float64 `json:"mean_ms"`
	MedianMs float64 `json:"median_ms"`
	P95Ms    float64 `json:"p95_ms"`
	P99Ms    float64 `json:"p99_ms"`
	MinMs    float64 `json:"min_ms"`
	MaxMs    float64 `json:"max_ms"`
}

// newHistogram tracks 1µs to 10min at 3 significant figures.
func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(1, int64(10*time.Minute/time.Microsecond), 3)
}

// Summarize computes descriptive statistics over a sample set.
func Summarize(samples []sample.Sample) Summary {
	if len(samples) == 0 {
		return Summary{}
	}

	h := newHistogram()
	for _, s := range samples {
		h.RecordValue(s.Latency.Microseconds())
	}

	return Summary{
		Count:    len(samples),
		MeanMs:   h.Mean() / 1000.0,
		MedianMs: float64(h.ValueAtQuantile(50)) / 1000.0,
		P95Ms:    float64(h.ValueAtQuantile(95)) / 1000.0,
		P99Ms:    float64(h.ValueAtQuantile(99)) / 1000.0,
		MinMs:    float64(h.Min()) / 1000.0,
		MaxMs:    float64(h.Max()) / 1000.0,
	}
}
