package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkincode/wagate/internal/sessionstore"
)

type brokenStore struct {
	sessionstore.Store
	puts int
}

func (b *brokenStore) Put(context.Context, string, []byte) error {
	b.puts++
	return &brokenErr{}
}

type brokenErr struct{}

func (*brokenErr) Error() string { return "connection refused" }
func (*brokenErr) Is(target error) bool {
	return target == sessionstore.ErrConnection
}

func fastOptions(workDir, authDir string) Options {
	return Options{
		WorkDir:      workDir,
		AuthDir:      authDir,
		WaitTimeout:  150 * time.Millisecond,
		PollInterval: 20 * time.Millisecond,
		Retry:        RetryPolicy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, Multiplier: 2},
	}
}

func newFileAdapter(t *testing.T, opts Options) (*Adapter, sessionstore.Store) {
	t.Helper()
	store := sessionstore.NewFileStore(filepath.Join(t.TempDir(), "sessions.json"))
	require.NoError(t, store.EnsureSchema(context.Background()))
	return NewAdapter(store, opts), store
}

func TestSaveArchiveAppearsLater(t *testing.T) {
	work, auth := t.TempDir(), t.TempDir()
	a, store := newFileAdapter(t, fastOptions(work, auth))
	payload := []byte("zip-bytes-0123456789")

	go func() {
		time.Sleep(60 * time.Millisecond)
		_ = os.WriteFile(filepath.Join(auth, "main.zip"), payload, 0o600)
	}()

	require.NoError(t, a.Save(context.Background(), "main"))
	blob, found, err := store.Get(context.Background(), "main")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, payload, blob)
	assert.FileExists(t, filepath.Join(auth, "main.zip"))
}

func TestSaveArchiveNeverAppears(t *testing.T) {
	a, store := newFileAdapter(t, fastOptions(t.TempDir(), t.TempDir()))

	err := a.Save(context.Background(), "main")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	var se *SaveError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "main", se.Session)
	assert.Equal(t, 3, se.Attempts)
	assert.Equal(t, 1, strings.Count(err.Error(), "attempt(s)"), err.Error())

	ok, err := store.Exists(context.Background(), "main")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveWaitsForGrowingArchive(t *testing.T) {
	work := t.TempDir()
	opts := fastOptions(work, "")
	opts.WaitTimeout = 2 * time.Second
	opts.PollInterval = 100 * time.Millisecond
	a, store := newFileAdapter(t, opts)

	p := filepath.Join(work, "main.zip")
	require.NoError(t, os.WriteFile(p, []byte("01"), 0o600))
	go func() {
		f, err := os.OpenFile(p, os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return
		}
		defer f.Close()
		for _, chunk := range []string{"23", "45", "67", "89"} {
			time.Sleep(10 * time.Millisecond)
			_, _ = f.Write([]byte(chunk))
		}
	}()

	require.NoError(t, a.Save(context.Background(), "main"))
	blob, found, err := store.Get(context.Background(), "main")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("0123456789"), blob)
}

func TestSaveStoreFailureIsNotRetried(t *testing.T) {
	work := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(work, "main.zip"), []byte("data"), 0o600))
	store := &brokenStore{}
	a := NewAdapter(store, fastOptions(work, ""))

	err := a.Save(context.Background(), "main")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnection)
	assert.Equal(t, 1, store.puts)
}

func TestSaveFileStoreFailureIsNotRetried(t *testing.T) {
	work := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(work, "main.zip"), []byte("data"), 0o600))
	// the store's directory does not exist, so every write fails with ENOENT
	store := sessionstore.NewFileStore(filepath.Join(t.TempDir(), "missing", "sessions.json"))
	a := NewAdapter(store, fastOptions(work, ""))

	err := a.Save(context.Background(), "main")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnection)
	var se *SaveError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 1, se.Attempts)
}

func TestSaveCleanupArchive(t *testing.T) {
	work := t.TempDir()
	opts := fastOptions(work, "")
	opts.CleanupArchive = true
	a, _ := newFileAdapter(t, opts)
	p := filepath.Join(work, "main.zip")
	require.NoError(t, os.WriteFile(p, []byte("data"), 0o600))

	require.NoError(t, a.Save(context.Background(), "main"))
	assert.NoFileExists(t, p)
}

func TestExtract(t *testing.T) {
	a, store := newFileAdapter(t, fastOptions(t.TempDir(), ""))
	ctx := context.Background()
	dest := filepath.Join(t.TempDir(), "nested", "dir", "main.zip")

	err := a.Extract(ctx, "main", dest)
	assert.ErrorIs(t, err, ErrNoSession)
	assert.NoFileExists(t, dest)

	require.NoError(t, store.Put(ctx, "main", []byte("restored")))
	require.NoError(t, a.Extract(ctx, "main", dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "restored", string(data))

	ok, err := a.Exists(ctx, "main")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, a.Delete(ctx, "main"))
	require.NoError(t, a.Delete(ctx, "main"))
	ok, err = a.Exists(ctx, "main")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCandidatesOrder(t *testing.T) {
	a := NewAdapter(nil, Options{WorkDir: "/w", AuthDir: "/a"})
	assert.Equal(t, []string{filepath.Join("/w", "main.zip"), filepath.Join("/a", "main.zip")}, a.Candidates("main"))
}
