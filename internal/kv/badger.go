package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// BadgerConfig holds configuration for a Badger-backed store.
type BadgerConfig struct {
	// Path is the directory for database files. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM. Useful for testing.
	InMemory bool

	// SyncWrites fsyncs every write. When false, Flush forces the sync.
	SyncWrites bool

	// Logger receives badger's internal logs. Nil disables them.
	Logger *slog.Logger
}

// DefaultBadgerConfig returns durable defaults for path.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{Path: path, SyncWrites: true}
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
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

// Badger is a Store backed by BadgerDB. Every Set is its own transaction.
type Badger struct {
	db *badger.DB
}

// OpenBadger opens (creating if needed) a badger database.
func OpenBadger(cfg BadgerConfig) (*Badger, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
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
	return &Badger{db: db}, nil
}

func (b *Badger) Get(_ context.Context, key string) (string, bool, error) {
	var value string
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapBadger("get", key, err)
	}
	return value, true, nil
}

func (b *Badger) Set(_ context.Context, key, value string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	if err != nil {
		return wrapBadger("set", key, err)
	}
	return nil
}

func (b *Badger) Delete(_ context.Context, key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return wrapBadger("delete", key, err)
	}
	return nil
}

// Flush syncs the value log and memtables to disk.
func (b *Badger) Flush(context.Context) error {
	if err := b.db.Sync(); err != nil {
		return wrapBadger("flush", "", err)
	}
	return nil
}

func (b *Badger) Close() error {
	if b.db.IsClosed() {
		return nil
	}
	return b.db.Close()
}

func wrapBadger(op, key string, err error) error {
	if errors.Is(err, badger.ErrDBClosed) {
		err = ErrClosed
	}
	if key == "" {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s %q: %w", op, key, err)
}
