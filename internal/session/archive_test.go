package session

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveRoundTrip(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "device.db"), []byte("sqlite bytes"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "keys"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(src, "keys", "id"), []byte("k"), 0o600))

	dst := filepath.Join(t.TempDir(), "main.zip")
	require.NoError(t, Archive(src, dst))

	out := filepath.Join(t.TempDir(), "restored")
	require.NoError(t, Unarchive(dst, out))

	data, err := os.ReadFile(filepath.Join(out, "device.db"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite bytes", string(data))
	data, err = os.ReadFile(filepath.Join(out, "keys", "id"))
	require.NoError(t, err)
	assert.Equal(t, "k", string(data))

	leftovers, err := filepath.Glob(dst + ".part-*")
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestUnarchiveRejectsTraversal(t *testing.T) {
	p := filepath.Join(t.TempDir(), "evil.zip")
	f, err := os.Create(p)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("../outside")
	require.NoError(t, err)
	_, err = w.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	assert.Error(t, Unarchive(p, filepath.Join(t.TempDir(), "dest")))
}

func TestArchiveWhileSourceChanges(t *testing.T) {
	src := t.TempDir()
	db := filepath.Join(src, "device.db")
	journal := filepath.Join(src, "device.db-journal")
	require.NoError(t, os.WriteFile(db, []byte("page"), 0o600))

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		f, err := os.OpenFile(db, os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return
		}
		defer f.Close()
		for {
			select {
			case <-stop:
				return
			default:
			}
			_, _ = f.Write([]byte("page"))
			_ = os.WriteFile(journal, []byte("rollback"), 0o600)
			_ = os.Remove(journal)
		}
	}()

	dst := filepath.Join(t.TempDir(), "main.zip")
	for i := 0; i < 30; i++ {
		require.NoError(t, Archive(src, dst))
	}
	close(stop)
	<-done

	out := filepath.Join(t.TempDir(), "restored")
	require.NoError(t, Unarchive(dst, out))
	assert.FileExists(t, filepath.Join(out, "device.db"))
}
