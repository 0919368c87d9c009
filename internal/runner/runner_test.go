package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coldbench/internal/sample"
	"coldbench/internal/stats"
)

type fakeSender struct {
	latencies []time.Duration
	calls     int
	cold      []bool
	err       error
}

func (f *fakeSender) Send(ctx context.Context, url string, forceColdStart bool) (sample.Sample, error) {
	if f.err != nil {
		return sample.Sample{}, f.err
	}
	i := f.calls
	f.calls++
	f.cold = append(f.cold, forceColdStart)

	lat := 50 * time.Millisecond
	if i < len(f.latencies) {
		lat = f.latencies[i]
	}
	return sample.Sample{CapturedAt: time.Unix(1700000000+int64(i), 0), Latency: lat}, nil
}

type fakeSleeper struct {
	slept []time.Duration
}

func (f *fakeSleeper) sleep(ctx context.Context, d time.Duration) error {
	f.slept = append(f.slept, d)
	return ctx.Err()
}

func newTestRunner(t *testing.T, sender Sender, cfg Config, strategy sample.Strategy) (*Runner, *sample.FileStore, *fakeSleeper) {
	t.Helper()
	store := sample.NewFileStore(t.TempDir(), strategy)
	r := New(sender, store, cfg)
	sl := &fakeSleeper{}
	r.sleep = sl.sleep
	return r, store, sl
}

func TestColdStartRunWritesLog(t *testing.T) {
	sender := &fakeSender{latencies: []time.Duration{
		400 * time.Millisecond,
		500 * time.Millisecond,
		450 * time.Millisecond,
	}}
	r, store, _ := newTestRunner(t, sender, Config{Mode: Idempotent}, sample.AppendLog)

	target := Target{Name: "my-func-graalvm", URL: "https://graalvm.example.com"}
	samples, err := r.RunColdStart(context.Background(), target, 3, "g.txt")
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, []bool{true, true, true}, sender.cold)

	persisted, err := store.LoadAll("g.txt")
	require.NoError(t, err)
	require.Len(t, persisted, 3)

	summary := stats.Summarize(persisted)
	assert.InDelta(t, 450.0, summary.MeanMs, 2.0)
}

func TestColdStartSleepsBetweenTrials(t *testing.T) {
	sender := &fakeSender{}
	r, _, sl := newTestRunner(t, sender, Config{Mode: Idempotent, ColdDelay: 5 * time.Second}, sample.AppendLog)

	_, err := r.RunColdStart(context.Background(), Target{Name: "f", URL: "https://f"}, 3, "c.txt")
	require.NoError(t, err)

	// Between trials only: two pauses for three trials.
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, sl.slept)
}

func TestWarmRunHasNoDelay(t *testing.T) {
	sender := &fakeSender{}
	r, _, sl := newTestRunner(t, sender, Config{Mode: Idempotent}, sample.AppendLog)

	samples, err := r.RunWarm(context.Background(), Target{Name: "f", URL: "https://f"}, 4, "w.txt")
	require.NoError(t, err)
	assert.Len(t, samples, 4)
	assert.Empty(t, sl.slept)
	assert.Equal(t, []bool{false, false, false, false}, sender.cold)
}

func TestIdempotentRunSkipsCompleteLog(t *testing.T) {
	sender := &fakeSender{}
	r, store, _ := newTestRunner(t, sender, Config{Mode: Idempotent}, sample.AppendLog)

	existing := []sample.Sample{
		sample.FromSeconds(time.Unix(1700000000, 0), 0.4),
		sample.FromSeconds(time.Unix(1700000001, 0), 0.5),
		sample.FromSeconds(time.Unix(1700000002, 0), 0.45),
	}
	require.NoError(t, store.Append("done.txt", existing))

	samples, err := r.RunColdStart(context.Background(), Target{Name: "f", URL: "https://f"}, 3, "done.txt")
	require.NoError(t, err)

	assert.Zero(t, sender.calls, "a complete log must cause zero network calls")
	require.Len(t, samples, 3)
	for i := range existing {
		assert.Equal(t, existing[i].CapturedAt.Unix(), samples[i].CapturedAt.Unix())
		assert.InDelta(t, existing[i].Seconds(), samples[i].Seconds(), 0.001)
	}
}

func TestIdempotentRunResumesPartialLog(t *testing.T) {
	sender := &fakeSender{}
	r, store, _ := newTestRunner(t, sender, Config{Mode: Idempotent}, sample.AppendLog)

	require.NoError(t, store.Append("part.txt", []sample.Sample{
		sample.FromSeconds(time.Unix(1700000000, 0), 0.4),
		sample.FromSeconds(time.Unix(1700000001, 0), 0.5),
	}))

	samples, err := r.RunWarm(context.Background(), Target{Name: "f", URL: "https://f"}, 5, "part.txt")
	require.NoError(t, err)

	assert.Equal(t, 3, sender.calls, "only the missing trials run")
	assert.Len(t, samples, 5)

	persisted, err := store.LoadAll("part.txt")
	require.NoError(t, err)
	assert.Len(t, persisted, 5)
}

func TestCumulativeRunsGrowTheLog(t *testing.T) {
	sender := &fakeSender{}
	r, store, _ := newTestRunner(t, sender, Config{Mode: Cumulative}, sample.AppendLog)

	target := Target{Name: "f", URL: "https://f"}
	_, err := r.RunWarm(context.Background(), target, 3, "bulk.txt")
	require.NoError(t, err)
	_, err = r.RunWarm(context.Background(), target, 3, "bulk.txt")
	require.NoError(t, err)

	assert.Equal(t, 6, sender.calls)

	persisted, err := store.LoadAll("bulk.txt")
	require.NoError(t, err)
	require.Len(t, persisted, 6)

	// Call order is preserved across invocations.
	for i := 1; i < len(persisted); i++ {
		assert.False(t, persisted[i].CapturedAt.Before(persisted[i-1].CapturedAt))
	}
}

func TestCumulativeFlushesInBatches(t *testing.T) {
	sender := &fakeSender{}
	r, store, _ := newTestRunner(t, sender, Config{Mode: Cumulative, FlushEvery: 2}, sample.AppendLog)

	_, err := r.RunWarm(context.Background(), Target{Name: "f", URL: "https://f"}, 5, "batch.txt")
	require.NoError(t, err)

	persisted, err := store.LoadAll("batch.txt")
	require.NoError(t, err)
	assert.Len(t, persisted, 5)
}

func TestRunStopsOnSenderError(t *testing.T) {
	sender := &fakeSender{err: context.Canceled}
	r, _, _ := newTestRunner(t, sender, Config{Mode: Idempotent}, sample.AppendLog)

	_, err := r.RunWarm(context.Background(), Target{Name: "f", URL: "https://f"}, 3, "x.txt")
	require.ErrorIs(t, err, context.Canceled)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("cumulative")
	require.NoError(t, err)
	assert.Equal(t, Cumulative, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, Idempotent, m)

	_, err = ParseMode("bogus")
	assert.Error(t, err)
}
