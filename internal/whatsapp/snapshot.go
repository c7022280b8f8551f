package whatsapp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// snapshotSQLite writes a transactionally consistent copy of db to dst
// with VACUUM INTO. The source stays open and writable meanwhile.
func snapshotSQLite(ctx context.Context, db *sql.DB, dst string) error {
	// VACUUM INTO refuses to overwrite
	if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	quoted := strings.ReplaceAll(dst, "'", "''")
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`VACUUM INTO '%s'`, quoted)); err != nil {
		return fmt.Errorf("vacuum into %s: %w", dst, err)
	}
	return nil
}
