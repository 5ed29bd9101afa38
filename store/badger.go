package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/RyanBlaney/sonido-emotion/logging"
)

const keyPrefix = "rec"

// BadgerOptions configures the BadgerDB recorder.
type BadgerOptions struct {
	// Dir holds the data files. Required unless InMemory.
	Dir string

	// InMemory keeps everything in memory, for tests.
	InMemory bool
}

// Badger is a Recorder backed by BadgerDB. Keys are
// rec/<user>/<created-at nanos>/<id> so a prefix scan returns one user's
// records in creation order.
type Badger struct {
	db     *badger.DB
	logger logging.Logger
}

// NewBadger opens the database.
func NewBadger(opts BadgerOptions) (*Badger, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("store: BadgerOptions.Dir is required for on-disk mode")
	}

	logger := logging.WithFields(logging.Fields{
		"component": "badger_store",
		"dir":       opts.Dir,
	})

	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	dbOpts = dbOpts.WithLogger(badgerLogger{logger: logger})

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &Badger{db: db, logger: logger}, nil
}

func userPrefix(userID string) []byte {
	return []byte(keyPrefix + "/" + userID + "/")
}

func recordKey(rec *Record) []byte {
	key := userPrefix(rec.UserID)
	key = binary.BigEndian.AppendUint64(key, uint64(rec.CreatedAt.UnixNano()))
	key = append(key, '/')
	return append(key, rec.ID...)
}

// Save stores rec.
func (b *Badger) Save(ctx context.Context, rec *Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if rec == nil || rec.UserID == "" {
		return "", ErrInvalidRecord
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	value, err := msgpack.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to encode record: %w", err)
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec), value)
	})
	if err != nil {
		return "", fmt.Errorf("failed to save record: %w", err)
	}

	b.logger.Debug("Record saved", logging.Fields{"id": rec.ID, "user_id": rec.UserID})
	return rec.ID, nil
}

// List scans the user's prefix, applies the filter and pages the matches.
func (b *Badger) List(ctx context.Context, q Query) ([]Record, error) {
	if q.UserID == "" {
		return nil, ErrInvalidRecord
	}

	prefix := userPrefix(q.UserID)
	limit := q.limit()
	skipped := 0
	records := []Record{}

	err := b.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("failed to decode record %q: %w", it.Item().Key(), err)
			}

			if !q.matches(&rec) {
				continue
			}
			if skipped < q.Skip {
				skipped++
				continue
			}
			records = append(records, rec)
			if len(records) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Close closes the database.
func (b *Badger) Close() error {
	return b.db.Close()
}

// badgerLogger routes badger warnings and errors into our logger.
type badgerLogger struct {
	logger logging.Logger
}

func (l badgerLogger) Errorf(f string, v ...any) {
	l.logger.Error(fmt.Errorf(f, v...), "badger error")
}

func (l badgerLogger) Warningf(f string, v ...any) {
	l.logger.Warn(fmt.Sprintf(f, v...))
}

func (badgerLogger) Infof(string, ...any)  {}
func (badgerLogger) Debugf(string, ...any) {}
