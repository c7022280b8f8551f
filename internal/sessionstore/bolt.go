package sessionstore

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var sessionsBucket = []byte("sessions")

// BoltStore keeps sessions in a bbolt file, one JSON envelope per key.
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, connErr("mkdir", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, connErr("open bolt", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) EnsureSchema(ctx context.Context) error {
	return connErr("create bucket", s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionsBucket)
		return err
	}))
}

func (s *BoltStore) Put(ctx context.Context, key string, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(fileEntry{Data: blob, UpdatedAt: time.Now()})
	if err != nil {
		return errors.Wrap(err, "sessionstore: encode")
	}
	return connErr("put", s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(sessionsBucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), raw)
	}))
}

func (s *BoltStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionsBucket)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, connErr("get", err)
	}
	if raw == nil {
		return nil, false, nil
	}
	var e fileEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		zap.L().Warn("sessionstore: corrupt bolt entry removed",
			zap.String("key", key), zap.Error(errors.Wrap(ErrCorrupt, err.Error())))
		if derr := s.Delete(ctx, key); derr != nil {
			return nil, false, derr
		}
		return nil, false, nil
	}
	return e.Data, true, nil
}

func (s *BoltStore) Delete(ctx context.Context, key string) error {
	return connErr("delete", s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionsBucket)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	}))
}

func (s *BoltStore) Exists(ctx context.Context, key string) (bool, error) {
	_, found, err := s.Get(ctx, key)
	return found, err
}

func (s *BoltStore) HealthCheck(ctx context.Context) bool {
	return safeHealth(func() bool {
		return s.db.View(func(tx *bolt.Tx) error { return nil }) == nil
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
