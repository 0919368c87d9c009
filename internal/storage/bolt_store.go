package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"coldbench/internal/stats"
)

const bucketRuns = "runs"

// RunRecord summarizes one completed experiment run. The raw samples live
// in the plain-text log at LogPath; the record only carries metadata and
// the computed statistics.
type RunRecord struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	Target    string        `json:"target"`
	Label     string        `json:"label"` // cold or warm
	Mode      string        `json:"mode"`
	Requested int           `json:"requested"`
	Collected int           `json:"collected"`
	LogPath   string        `json:"log_path"`
	Summary   stats.Summary `json:"summary"`
}

// Store keeps run history in a bbolt database.
type Store struct {
	db *bbolt.DB
}

func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrap(err, "creating history dir")
		}
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketRuns))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Save(rec RunRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketRuns))

		// Zero-padded nanos keep keys byte-ordered by start time.
		key := []byte(fmt.Sprintf("%020d-%s", rec.StartedAt.UnixNano(), rec.ID))
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

// List returns all records, newest first.
func (s *Store) List() ([]RunRecord, error) {
	var records []RunRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketRuns))
		c := b.Cursor()

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var rec RunRecord
			if err := json.Unmarshal(v, &rec); err == nil {
				records = append(records, rec)
			}
		}
		return nil
	})
	return records, err
}

func (s *Store) Get(id string) (*RunRecord, error) {
	var found *RunRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketRuns))
		c := b.Cursor()

		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec RunRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			if rec.ID == id {
				found = &rec
				return nil
			}
		}
		return errors.Errorf("run %s not found", id)
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}
