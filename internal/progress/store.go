// Package progress records transformed segments so an interrupted run can
// resume where it stopped. Entries are keyed by segment key and only ever
// added or overwritten.
package progress

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/simp-lee/epubtrans/internal/logging"
	"github.com/simp-lee/epubtrans/segment"
)

const (
	segPrefix  = "seg/"
	failPrefix = "fail/"
	runKey     = "meta/run"
)

// ErrRunMismatch is returned by BindRun when the store already belongs to a
// different extraction.
var ErrRunMismatch = errors.New("progress: store belongs to a different extraction")

// Store is a badger-backed progress record. It is safe for concurrent use.
type Store struct {
	db  *badger.DB
	log *logrus.Logger
}

// Open opens or creates the store in dir. A nil log discards output.
func Open(dir string, log *logrus.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	opts.ValueLogFileSize = 64 << 20
	return open(opts, log)
}

// OpenInMemory returns a store that lives only as long as the process.
func OpenInMemory(log *logrus.Logger) (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts, log)
}

func open(opts badger.Options, log *logrus.Logger) (*Store, error) {
	if log == nil {
		log = logging.Discard()
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("progress: open store: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// Close flushes and closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// BindRun ties the store to the extraction identified by runID. The first
// call records it; later calls with another id return ErrRunMismatch, since
// segment keys of a different extraction may cover different text.
func (s *Store) BindRun(runID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(runKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return txn.Set([]byte(runKey), []byte(runID))
		}
		if err != nil {
			return err
		}
		bound, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if string(bound) != runID {
			return fmt.Errorf("%w: bound to %s, got %s", ErrRunMismatch, bound, runID)
		}
		return nil
	})
}

// Put records the transformed text of key and clears any failure recorded
// for it.
func (s *Store) Put(key segment.Key, text string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(segPrefix+key.String()), []byte(text)); err != nil {
			return err
		}
		return txn.Delete([]byte(failPrefix + key.String()))
	})
	if err != nil {
		return fmt.Errorf("progress: put %s: %w", key, err)
	}
	return nil
}

// Get returns the transformed text of key.
func (s *Store) Get(key segment.Key) (string, bool, error) {
	var text []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(segPrefix + key.String()))
		if err != nil {
			return err
		}
		text, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("progress: get %s: %w", key, err)
	}
	return string(text), true, nil
}

// Has reports whether key has transformed text.
func (s *Store) Has(key segment.Key) (bool, error) {
	_, ok, err := s.Get(key)
	return ok, err
}

// MarkFailed records the last error of a segment that could not be
// transformed.
func (s *Store) MarkFailed(key segment.Key, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(failPrefix+key.String()), []byte(msg))
	})
	if err != nil {
		return fmt.Errorf("progress: mark %s failed: %w", key, err)
	}
	return nil
}

// Transformed returns every recorded segment text.
func (s *Store) Transformed() (map[segment.Key]string, error) {
	return s.scan(segPrefix)
}

// Failures returns the last error message of every failed segment that has
// not succeeded since.
func (s *Store) Failures() (map[segment.Key]string, error) {
	return s.scan(failPrefix)
}

func (s *Store) scan(prefix string) (map[segment.Key]string, error) {
	out := make(map[segment.Key]string)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			raw := string(item.Key()[len(prefix):])
			key, err := segment.ParseKey(raw)
			if err != nil {
				s.log.WithFields(logrus.Fields{"key": raw}).Warn("skipping malformed progress entry")
				continue
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out[key] = string(val)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("progress: scan %s: %w", prefix, err)
	}
	return out, nil
}
