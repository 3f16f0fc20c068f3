// Package store keeps recorded ETags in an embedded Badger database, for
// clients that want their tokens to outlive the process without SQLite.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

const keyPrefix = "etag/"

type Config struct {
	Path     string
	InMemory bool
	Logger   *zap.Logger
	Now      func() time.Time
}

// InMemoryConfig returns a configuration that never touches disk.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

type badgerLogger struct {
	log *zap.SugaredLogger
}

func (l badgerLogger) Errorf(format string, args ...interface{})   { l.log.Errorf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...interface{}) { l.log.Warnf(format, args...) }
func (l badgerLogger) Infof(format string, args ...interface{})    { l.log.Debugf(format, args...) }
func (l badgerLogger) Debugf(format string, args ...interface{})   { l.log.Debugf(format, args...) }

// record is the value stored under each key.
type record struct {
	ETag      string    `bson:"etag"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// Tokens is an adminsdk.TokenStore backed by Badger.
type Tokens struct {
	db  *badger.DB
	now func() time.Time
}

func Open(cfg Config) (*Tokens, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent token store")
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create token store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(badgerLogger{log: cfg.Logger.Sugar()})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger token store: %w", err)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Tokens{db: db, now: now}, nil
}

func (t *Tokens) Close() error { return t.db.Close() }

func tokenKey(family, id string) []byte { return []byte(keyPrefix + family + "/" + id) }

func (t *Tokens) Get(_ context.Context, family, id string) (string, bool, error) {
	var rec record
	err := t.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(tokenKey(family, id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return bson.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read token %s/%s: %w", family, id, err)
	}
	return rec.ETag, true, nil
}

func (t *Tokens) Put(_ context.Context, family, id, etag string) error {
	val, err := bson.Marshal(record{ETag: etag, UpdatedAt: t.now().UTC()})
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	return t.db.Update(func(txn *badger.Txn) error {
		return txn.Set(tokenKey(family, id), val)
	})
}

func (t *Tokens) Delete(_ context.Context, family, id string) error {
	return t.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(tokenKey(family, id))
	})
}

// Count returns the number of recorded tokens of family, or of all families
// when family is empty.
func (t *Tokens) Count(family string) (int, error) {
	prefix := []byte(keyPrefix)
	if family != "" {
		prefix = []byte(keyPrefix + family + "/")
	}
	n := 0
	err := t.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}
