package checkpoint

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// badgerKeyPrefix scopes checkpoint keys inside a shared Badger database.
const badgerKeyPrefix = "checkpoint/"

// badgerHeaderSize is the fixed header before the checkpoint bytes:
// 8 bytes sequence, 8 bytes unix-nano timestamp.
const badgerHeaderSize = 16

// BadgerConfig configures a BadgerStore.
type BadgerConfig struct {
	// Path is the directory for BadgerDB files.
	// Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal logs. Nil disables them.
	Logger *slog.Logger
}

// BadgerStore persists checkpoints in an embedded BadgerDB.
// Saves run inside a read-write transaction, so the sequence check and
// the write commit together or not at all.
type BadgerStore struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// NewBadgerStore opens a Badger-backed checkpoint store.
func NewBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger path is required for persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func badgerKey(threadID string) []byte {
	return []byte(badgerKeyPrefix + threadID)
}

func encodeBadgerValue(seq int, ts time.Time, data []byte) []byte {
	buf := make([]byte, badgerHeaderSize+len(data))
	binary.BigEndian.PutUint64(buf[0:8], uint64(seq))
	binary.BigEndian.PutUint64(buf[8:16], uint64(ts.UnixNano()))
	copy(buf[badgerHeaderSize:], data)
	return buf
}

func decodeBadgerValue(threadID string, val []byte) (Record, error) {
	if len(val) < badgerHeaderSize {
		return Record{}, fmt.Errorf("checkpoint value for %s truncated (%d bytes)", threadID, len(val))
	}
	return Record{
		ThreadID:  threadID,
		Sequence:  int(binary.BigEndian.Uint64(val[0:8])),
		UpdatedAt: time.Unix(0, int64(binary.BigEndian.Uint64(val[8:16]))).UTC(),
		Data:      cloneBytes(val[badgerHeaderSize:]),
	}, nil
}

// Load implements Store.
func (b *BadgerStore) Load(_ context.Context, threadID string) (Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return Record{}, ErrStoreClosed
	}

	var rec Record
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(threadID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var derr error
			rec, derr = decodeBadgerValue(threadID, val)
			return derr
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load checkpoint: %w", err)
	}
	return rec, nil
}

// Save implements Store.
func (b *BadgerStore) Save(_ context.Context, threadID string, expectedSeq int, data []byte) (Record, error) {
	if threadID == "" {
		return Record{}, ErrEmptyThreadID
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return Record{}, ErrStoreClosed
	}

	now := time.Now().UTC()
	err := b.db.Update(func(txn *badger.Txn) error {
		current := 0
		item, err := txn.Get(badgerKey(threadID))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			if err := item.Value(func(val []byte) error {
				rec, derr := decodeBadgerValue(threadID, val)
				current = rec.Sequence
				return derr
			}); err != nil {
				return err
			}
		}
		if current != expectedSeq {
			return ErrConflict
		}
		return txn.Set(badgerKey(threadID), encodeBadgerValue(expectedSeq+1, now, data))
	})
	if errors.Is(err, ErrConflict) || errors.Is(err, badger.ErrConflict) {
		return Record{}, ErrConflict
	}
	if err != nil {
		return Record{}, fmt.Errorf("save checkpoint: %w", err)
	}

	return Record{
		ThreadID:  threadID,
		Sequence:  expectedSeq + 1,
		Data:      cloneBytes(data),
		UpdatedAt: now,
	}, nil
}

// List implements Store.
func (b *BadgerStore) List(_ context.Context) ([]Info, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrStoreClosed
	}

	infos := []Info{}
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			threadID := string(item.Key()[len(badgerKeyPrefix):])
			if err := item.Value(func(val []byte) error {
				rec, err := decodeBadgerValue(threadID, val)
				if err != nil {
					return err
				}
				infos = append(infos, Info{
					ThreadID:  threadID,
					Sequence:  rec.Sequence,
					Timestamp: rec.UpdatedAt,
					Size:      int64(len(rec.Data)),
				})
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	return infos, nil
}

// Delete implements Store.
func (b *BadgerStore) Delete(_ context.Context, threadID string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrStoreClosed
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerKey(threadID))
	})
	if err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// Close implements Store.
func (b *BadgerStore) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	return b.db.Close()
}
