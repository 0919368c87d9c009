package runner

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"coldbench/internal/sample"
	"coldbench/internal/stats"
	"coldbench/internal/storage"
)

// Sender issues one trial and returns the accepted latency. The production
// implementation is client.Client; tests substitute a fake.
type Sender interface {
	Send(ctx context.Context, url string, forceColdStart bool) (sample.Sample, error)
}

// Target maps a logical function name to its base URL. The mapping is
// immutable for the duration of an experiment.
type Target struct {
	Name string
	URL  string
}

// Mode selects how runs interact with an existing sample log.
type Mode int

const (
	// Idempotent skips collection when the log already holds the desired
	// count and persists once at completion. With an append-log store a
	// partial log is resumed; with a snapshot store it is recollected.
	Idempotent Mode = iota
	// Cumulative always collects and appends, growing the log across
	// repeated invocations. Samples are flushed in small batches so an
	// interruption loses at most one unflushed batch.
	Cumulative
)

func (m Mode) String() string {
	if m == Cumulative {
		return "cumulative"
	}
	return "idempotent"
}

// ParseMode maps a config string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "idempotent", "":
		return Idempotent, nil
	case "cumulative":
		return Cumulative, nil
	}
	return Idempotent, errors.Errorf("unknown run mode %q", s)
}

type Config struct {
	Mode Mode
	// ColdDelay is the pause between forced-cold-start trials, giving the
	// remote instance time to terminate. Skipping it risks measuring a
	// still-warm instance and labeling the result cold.
	ColdDelay time.Duration
	// FlushEvery is the cumulative-mode batch size.
	FlushEvery int
}

// Runner drives sequential trials against one target and persists the
// accepted samples. Exactly one request is in flight at any time; the
// deployment under test runs a single instance and a concurrent request
// could be served by the instance a cold-start trial is terminating.
type Runner struct {
	Client  Sender
	Store   *sample.FileStore
	History *storage.Store // optional
	Cfg     Config

	sleep func(ctx context.Context, d time.Duration) error
	log   *logrus.Entry
}

func New(client Sender, store *sample.FileStore, cfg Config) *Runner {
	if cfg.ColdDelay == 0 {
		cfg.ColdDelay = 5 * time.Second
	}
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = 25
	}
	return &Runner{
		Client: client,
		Store:  store,
		Cfg:    cfg,
		sleep:  sleepCtx,
		log:    logrus.WithField("component", "runner"),
	}
}

// RunColdStart performs count forced-cold-start trials against the target,
// pausing ColdDelay between trials.
func (r *Runner) RunColdStart(ctx context.Context, target Target, count int, logName string) ([]sample.Sample, error) {
	return r.run(ctx, target, count, logName, true)
}

// RunWarm performs count back-to-back trials against the already-warm
// target with no inter-trial delay.
func (r *Runner) RunWarm(ctx context.Context, target Target, count int, logName string) ([]sample.Sample, error) {
	return r.run(ctx, target, count, logName, false)
}

func (r *Runner) run(ctx context.Context, target Target, count int, logName string, cold bool) ([]sample.Sample, error) {
	label := "warm"
	if cold {
		label = "cold"
	}
	log := r.log.WithFields(logrus.Fields{
		"target": target.Name,
		"label":  label,
		"log":    logName,
	})

	var existing []sample.Sample
	need := count

	if r.Cfg.Mode == Idempotent {
		state, loaded, err := r.Store.State(logName, count)
		if err != nil {
			return nil, err
		}
		switch state {
		case sample.Complete:
			log.WithField("samples", len(loaded)).Info("log already complete, skipping collection")
			return loaded, nil
		case sample.Partial:
			if r.Store.Strategy == sample.AppendLog {
				existing = loaded
				need = count - len(loaded)
				log.WithFields(logrus.Fields{"have": len(loaded), "need": need}).
					Info("resuming partial log")
			} else {
				log.WithField("have", len(loaded)).Warn("partial snapshot log, recollecting")
			}
		}
	}

	startedAt := time.Now()
	log.WithField("trials", need).Info("collecting")

	collected, runErr := r.trials(ctx, target, need, cold, logName, log)

	if r.Cfg.Mode == Idempotent && len(collected) > 0 {
		if err := r.Store.Append(logName, collected); err != nil {
			return nil, errors.Wrapf(err, "persisting %d samples", len(collected))
		}
	}

	all := append(existing, collected...)
	if len(collected) > 0 {
		r.recordHistory(startedAt, target, label, count, all, logName, log)
	}
	if runErr != nil {
		return all, runErr
	}

	log.WithField("samples", len(all)).Info("run complete")
	return all, nil
}

// trials performs the sequential trial loop. Trial failures never surface
// here when the client's retry policy is unbounded; the error paths are
// context cancellation, a bounded policy running out of attempts, and
// cumulative-mode flush failures.
func (r *Runner) trials(ctx context.Context, target Target, count int, cold bool, logName string, log *logrus.Entry) (collected []sample.Sample, err error) {
	pending := 0
	if r.Cfg.Mode == Cumulative {
		// Flush whatever was collected on every exit path.
		defer func() {
			if pending == 0 {
				return
			}
			batch := collected[len(collected)-pending:]
			if ferr := r.Store.Append(logName, batch); ferr != nil && err == nil {
				err = errors.Wrapf(ferr, "flushing %d samples", len(batch))
			}
		}()
	}

	for i := 0; i < count; i++ {
		s, serr := r.Client.Send(ctx, target.URL, cold)
		if serr != nil {
			return collected, serr
		}
		collected = append(collected, s)
		pending++
		log.WithFields(logrus.Fields{"trial": i + 1, "latency": s.Latency}).Debug("trial accepted")

		if r.Cfg.Mode == Cumulative && pending >= r.Cfg.FlushEvery {
			batch := collected[len(collected)-pending:]
			if ferr := r.Store.Append(logName, batch); ferr != nil {
				pending = 0
				return collected, errors.Wrapf(ferr, "flushing %d samples", len(batch))
			}
			pending = 0
		}

		if cold && i < count-1 {
			if serr := r.sleep(ctx, r.Cfg.ColdDelay); serr != nil {
				return collected, serr
			}
		}
	}
	return collected, nil
}

func (r *Runner) recordHistory(startedAt time.Time, target Target, label string, requested int, all []sample.Sample, logName string, log *logrus.Entry) {
	if r.History == nil {
		return
	}
	rec := storage.RunRecord{
		ID:        uuid.New().String(),
		StartedAt: startedAt,
		Target:    target.Name,
		Label:     label,
		Mode:      r.Cfg.Mode.String(),
		Requested: requested,
		Collected: len(all),
		LogPath:   r.Store.Path(logName),
		Summary:   stats.Summarize(all),
	}
	if err := r.History.Save(rec); err != nil {
		log.WithError(err).Warn("recording run history")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
