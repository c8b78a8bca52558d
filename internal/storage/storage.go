package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Run records are keyed by "run:<id>".
const runKeyPrefix = "run:"

// RunRecord is the persisted outcome of one benchmark invocation.
type RunRecord struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	HashMB    int           `json:"hash_mb"`
	Threads   int           `json:"threads"`
	Rounds    int           `json:"rounds"`
	Positions uint64        `json:"positions"`
	Ops       uint64        `json:"ops"`
	OpsPerSec float64       `json:"ops_per_sec"`
	HitRate   float64       `json:"hit_rate"`
	HashFull  int           `json:"hashfull"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Storage wraps BadgerDB for persistent run records.
type Storage struct {
	db *badger.DB
}

// Open opens (or creates) the run database in dir.
func Open(dir string) (*Storage, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // Disable logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Storage{db: db}, nil
}

// NewStorage opens the run database in the platform data directory.
func NewStorage() (*Storage, error) {
	dbDir, err := GetDatabaseDir()
	if err != nil {
		return nil, err
	}
	return Open(dbDir)
}

// Close closes the database.
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveRun stores one run record.
func (s *Storage) SaveRun(rec *RunRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("run record has no id")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(runKeyPrefix+rec.ID), data)
	})
}

// LoadRun fetches a run record by id. Returns badger.ErrKeyNotFound if the
// id is unknown.
func (s *Storage) LoadRun(id string) (*RunRecord, error) {
	rec := &RunRecord{}

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(runKeyPrefix + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, rec)
		})
	})
	if err != nil {
		return nil, err
	}

	return rec, nil
}

// ListRuns returns every stored run record, most recent first.
func (s *Storage) ListRuns() ([]*RunRecord, error) {
	var runs []*RunRecord

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(runKeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			rec := &RunRecord{}
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, rec)
			})
			if err != nil {
				return err
			}
			runs = append(runs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})
	return runs, nil
}
