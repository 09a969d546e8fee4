// Package badger implements kv.Store on top of BadgerDB.
//
// The database directory is created on Open if it does not exist. Badger
// serialises concurrent writers internally; Store adds no locking of its
// own beyond guarding Close. Value-log garbage collection runs on a cron
// schedule for the lifetime of the store.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/atlasfs/internal/logger"
	"github.com/marmos91/atlasfs/pkg/store/kv"
	"github.com/robfig/cron/v3"
)

// Config contains configuration for a BadgerDB store.
type Config struct {
	// DBPath is the directory where BadgerDB keeps its files.
	DBPath string `mapstructure:"db_path" validate:"required"`

	// SyncWrites makes every write durable before Put returns.
	SyncWrites bool `mapstructure:"sync_writes"`

	// GCSchedule is a cron spec (e.g. "@every 10m") for value-log GC.
	// Empty disables GC.
	GCSchedule string `mapstructure:"gc_schedule"`

	// GCDiscardRatio is passed to RunValueLogGC.
	GCDiscardRatio float64 `mapstructure:"gc_discard_ratio" validate:"omitempty,gt=0,lt=1"`

	// ReadOnly opens an existing database without write access. The
	// directory must already exist.
	ReadOnly bool `mapstructure:"-"`
}

// Store is a kv.Store backed by BadgerDB.
type Store struct {
	db     *badger.DB
	cfg    Config
	log    *logger.Logger
	cron   *cron.Cron
	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the database described by cfg.
//
// Context Cancellation:
// ctx is checked before the database is opened; Badger's own startup is not
// interruptible.
func Open(ctx context.Context, cfg Config, log *logger.Logger) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.DBPath == "" {
		return nil, errors.New("badger: db path is required")
	}
	if log == nil {
		log = logger.Default()
	}

	if cfg.ReadOnly {
		info, err := os.Stat(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("badger: open %s: %w", cfg.DBPath, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("badger: %s is not a directory", cfg.DBPath)
		}
	} else if err := os.MkdirAll(cfg.DBPath, 0o755); err != nil {
		return nil, fmt.Errorf("badger: create %s: %w", cfg.DBPath, err)
	}

	opts := badger.DefaultOptions(cfg.DBPath).
		WithLogger(badgerLogger{log}).
		WithLoggingLevel(badger.WARNING).
		WithSyncWrites(cfg.SyncWrites).
		WithReadOnly(cfg.ReadOnly)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.DBPath, err)
	}

	s := &Store{db: db, cfg: cfg, log: log}

	if cfg.GCSchedule != "" && !cfg.ReadOnly {
		if err := s.startGC(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	log.Debug("badger: opened %s (sync_writes=%v read_only=%v)", cfg.DBPath, cfg.SyncWrites, cfg.ReadOnly)
	return s, nil
}

func (s *Store) Put(ctx context.Context, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return kv.ErrClosed
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (s *Store) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, kv.ErrClosed
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *Store) Delete(ctx context.Context, key []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return kv.ErrClosed
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// Scan iterates keys under prefix in order, checking ctx every 1000 entries.
func (s *Store) Scan(ctx context.Context, prefix []byte, fn kv.ScanFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return kv.ErrClosed
	}

	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		count := 0
		for it.Rewind(); it.Valid(); it.Next() {
			count++
			if count%1000 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}

			item := it.Item()
			err := item.Value(func(val []byte) error {
				return fn(item.Key(), val)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Close stops GC and closes the database, flushing pending writes.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return kv.ErrClosed
	}
	s.closed = true

	if s.cron != nil {
		<-s.cron.Stop().Done()
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close BadgerDB: %w", err)
	}
	return nil
}
