package whatsapp

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotSQLiteWhileWriting(t *testing.T) {
	dir := t.TempDir()
	db, err := sql.Open("sqlite3", "file:"+filepath.Join(dir, "device.db")+"?_busy_timeout=5000")
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`CREATE TABLE keys (id INTEGER PRIMARY KEY, v BLOB)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO keys (v) VALUES (randomblob(512))`)
	require.NoError(t, err)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			_, _ = db.Exec(`INSERT INTO keys (v) VALUES (randomblob(512))`)
		}
	}()

	dst := filepath.Join(t.TempDir(), "device.db")
	for i := 0; i < 5; i++ {
		require.NoError(t, snapshotSQLite(context.Background(), db, dst))
	}
	close(stop)
	<-done

	snap, err := sql.Open("sqlite3", "file:"+dst+"?mode=ro")
	require.NoError(t, err)
	defer snap.Close()
	var check string
	require.NoError(t, snap.QueryRow(`PRAGMA integrity_check`).Scan(&check))
	assert.Equal(t, "ok", check)
	var n int
	require.NoError(t, snap.QueryRow(`SELECT count(*) FROM keys`).Scan(&n))
	assert.GreaterOrEqual(t, n, 1)
}
