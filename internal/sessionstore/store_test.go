package sessionstore

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkincode/wagate/config"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.EnsureSchema(ctx))
	require.NoError(t, s.EnsureSchema(ctx), "schema setup must be idempotent")

	ok, err := s.Exists(ctx, "main")
	require.NoError(t, err)
	assert.False(t, ok)

	_, found, err := s.Get(ctx, "main")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Put(ctx, "main", []byte("first-archive")))
	require.NoError(t, s.Put(ctx, "main", []byte("second")))
	require.NoError(t, s.Put(ctx, "other", []byte{0x00, 0xff, 0x10}))

	blob, found, err := s.Get(ctx, "main")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("second"), blob)

	blob, found, err = s.Get(ctx, "other")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte{0x00, 0xff, 0x10}, blob)

	ok, err = s.Exists(ctx, "main")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, "main"))
	require.NoError(t, s.Delete(ctx, "main"))
	_, found, err = s.Get(ctx, "main")
	require.NoError(t, err)
	assert.False(t, found)

	assert.True(t, s.HealthCheck(ctx))
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestGormStore(t *testing.T) {
	exerciseStore(t, NewGormStore(newTestDB(t)))
}

func TestFileStore(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "data", "sessions.json"))
	exerciseStore(t, s)
}

func TestFileStoreCorruptDocument(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "sessions.json")
	require.NoError(t, os.WriteFile(p, []byte("{not json"), 0o600))

	s := NewFileStore(p)
	ctx := context.Background()
	_, found, err := s.Get(ctx, "main")
	require.NoError(t, err)
	assert.False(t, found)

	matches, err := filepath.Glob(p + ".corrupt-*")
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	// the store recovers on the next write
	require.NoError(t, s.Put(ctx, "main", []byte("ok")))
	blob, found, err := s.Get(ctx, "main")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("ok"), blob)
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(filepath.Join(dir, "sessions.json"))
	require.NoError(t, s.Put(context.Background(), "main", []byte("abc")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "sessions.json", entries[0].Name())
}

func TestFileStoreConcurrentPutGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	ctx := context.Background()
	writer := NewFileStore(path)
	// a second instance shares the file but not the mutex, like another process
	reader := NewFileStore(path)

	blobA := bytes.Repeat([]byte("a"), 64<<10)
	blobB := bytes.Repeat([]byte("b"), 64<<10)
	require.NoError(t, writer.Put(ctx, "main", blobA))

	var g errgroup.Group
	g.Go(func() error {
		for i := 0; i < 50; i++ {
			blob := blobA
			if i%2 == 1 {
				blob = blobB
			}
			if err := writer.Put(ctx, "main", blob); err != nil {
				return err
			}
		}
		return nil
	})
	for r := 0; r < 4; r++ {
		g.Go(func() error {
			for i := 0; i < 50; i++ {
				got, found, err := reader.Get(ctx, "main")
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("read %d: key missing", i)
				}
				if !bytes.Equal(got, blobA) && !bytes.Equal(got, blobB) {
					return fmt.Errorf("read %d: partial value of %d bytes", i, len(got))
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	matches, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestBoltStore(t *testing.T) {
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "sessions.bolt"))
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestBoltStoreCorruptEnvelope(t *testing.T) {
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "sessions.bolt"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.EnsureSchema(ctx))

	require.NoError(t, s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Put([]byte("main"), []byte("garbage"))
	}))

	_, found, err := s.Get(ctx, "main")
	require.NoError(t, err)
	assert.False(t, found)

	ok, err := s.Exists(ctx, "main")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("WAGATE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("WAGATE_TEST_REDIS_URL not set")
	}
	s, err := NewRedisStore(context.Background(), url)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()
	_ = s.Delete(ctx, "main")
	_ = s.Delete(ctx, "other")
	exerciseStore(t, s)
}

func TestMySQLStore(t *testing.T) {
	dsn := os.Getenv("WAGATE_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("WAGATE_TEST_MYSQL_DSN not set")
	}
	s, err := NewMySQLStore(dsn)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.EnsureSchema(ctx))
	_ = s.Delete(ctx, "main")
	_ = s.Delete(ctx, "other")
	exerciseStore(t, s)
}

func TestRedisStoreUnreachable(t *testing.T) {
	_, err := NewRedisStore(context.Background(), "redis://127.0.0.1:1/0")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnection)
}

func TestNewSelectsBackend(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.AppConfig{}
	cfg.Session.Store = "file"
	cfg.Session.FilePath = filepath.Join(dir, "s.json")
	s, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	cfg.Session.Store = "database"
	_, err = New(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, ErrUnknownBackend)

	s, err = New(context.Background(), cfg, newTestDB(t))
	require.NoError(t, err)
	assert.IsType(t, &GormStore{}, s)

	cfg.Session.Store = "etcd"
	_, err = New(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, ErrUnknownBackend)
}
