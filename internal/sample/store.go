package sample

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Strategy selects how a log file is written.
type Strategy int

const (
	// AppendLog appends newline-delimited "<unix-ts>,<latency-seconds>"
	// records, preserving history across runs.
	AppendLog Strategy = iota
	// Snapshot rewrites the file as a single line of comma-joined latency
	// seconds; the current run fully replaces any previous content.
	Snapshot
)

func (s Strategy) String() string {
	if s == Snapshot {
		return "snapshot"
	}
	return "append"
}

// ParseStrategy maps a config string to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "append", "append-log", "":
		return AppendLog, nil
	case "snapshot":
		return Snapshot, nil
	}
	return AppendLog, errors.Errorf("unknown store strategy %q", s)
}

// LogState classifies a log against an expected record count.
type LogState int

const (
	Empty LogState = iota
	Partial
	Complete
)

func (s LogState) String() string {
	switch s {
	case Partial:
		return "partial"
	case Complete:
		return "complete"
	}
	return "empty"
}

// FileStore persists samples as plain text files under Dir, one file per
// log name. Samples are append-only; the store never mutates or removes
// records it has written.
type FileStore struct {
	Dir      string
	Strategy Strategy

	log *logrus.Entry
}

func NewFileStore(dir string, strategy Strategy) *FileStore {
	return &FileStore{
		Dir:      dir,
		Strategy: strategy,
		log:      logrus.WithField("component", "store"),
	}
}

// Path returns the on-disk path for a log name.
func (s *FileStore) Path(logName string) string {
	return filepath.Join(s.Dir, logName)
}

// Append persists a batch of samples to the named log. With AppendLog the
// batch is appended after any existing records; with Snapshot the file is
// rewritten to contain exactly this batch.
func (s *FileStore) Append(logName string, samples []Sample) error {
	if len(samples) == 0 {
		return nil
	}
	if s.Dir != "" {
		if err := os.MkdirAll(s.Dir, 0755); err != nil {
			return errors.Wrap(err, "creating log dir")
		}
	}

	if s.Strategy == Snapshot {
		vals := make([]string, len(samples))
		for i, smp := range samples {
			vals[i] = fmt.Sprintf("%.3f", smp.Seconds())
		}
		line := strings.Join(vals, ",") + "\n"
		if err := os.WriteFile(s.Path(logName), []byte(line), 0644); err != nil {
			return errors.Wrapf(err, "writing snapshot %s", logName)
		}
		return nil
	}

	f, err := os.OpenFile(s.Path(logName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, "opening log %s", logName)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, smp := range samples {
		fmt.Fprintf(w, "%d,%.6f\n", smp.CapturedAt.Unix(), smp.Seconds())
	}
	if err := w.Flush(); err != nil {
		return errors.Wrapf(err, "appending to log %s", logName)
	}
	return nil
}

// LoadAll reads every sample from the named log, in record order. Both
// layouts are recognized per line: "<unix-ts>,<latency>" records and
// comma-joined latency-only snapshot lines (which carry a zero capture
// time). Malformed values are skipped and counted, not fatal. A missing
// file yields an empty result.
func (s *FileStore) LoadAll(logName string) ([]Sample, error) {
	data, err := os.ReadFile(s.Path(logName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading log %s", logName)
	}

	var samples []Sample
	skipped := 0
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")

		if len(fields) == 2 {
			if ts, err := strconv.ParseInt(fields[0], 10, 64); err == nil {
				lat, err := strconv.ParseFloat(fields[1], 64)
				if err != nil {
					skipped++
					continue
				}
				samples = append(samples, FromSeconds(time.Unix(ts, 0), lat))
				continue
			}
		}

		// Snapshot layout: every field is a latency.
		for _, field := range fields {
			lat, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				skipped++
				continue
			}
			samples = append(samples, FromSeconds(time.Time{}, lat))
		}
	}
	if skipped > 0 {
		s.log.WithFields(logrus.Fields{"log": logName, "skipped": skipped}).
			Warn("skipped malformed records")
	}
	return samples, nil
}

// State classifies the named log against the expected record count and
// returns the records it holds, so callers judging completeness do not
// read the file twice.
func (s *FileStore) State(logName string, expected int) (LogState, []Sample, error) {
	samples, err := s.LoadAll(logName)
	if err != nil {
		return Empty, nil, err
	}
	switch {
	case len(samples) == 0:
		return Empty, nil, nil
	case len(samples) >= expected:
		return Complete, samples, nil
	}
	return Partial, samples, nil
}
