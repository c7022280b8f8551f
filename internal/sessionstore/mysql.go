package sessionstore

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
)

// MySQLStore keeps sessions in a MySQL table using plain database/sql.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore opens dsn with the go-sql-driver/mysql driver.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, connErr("open mysql", err)
	}
	db.SetMaxOpenConns(4)
	return &MySQLStore{db: db}, nil
}

func (s *MySQLStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS wa_session (
			session_key VARCHAR(255) COLLATE utf8mb4_bin PRIMARY KEY,
			data LONGBLOB NOT NULL,
			updated_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)
		)`)
	if err != nil {
		return connErr("create table", err)
	}
	return nil
}

func (s *MySQLStore) Put(ctx context.Context, key string, blob []byte) error {
	stmt := "INSERT INTO wa_session(session_key, data, updated_at) VALUES (?, ?, UTC_TIMESTAMP(6)) ON DUPLICATE KEY UPDATE data = VALUES(data), updated_at = VALUES(updated_at)"
	_, err := s.db.ExecContext(ctx, stmt, key, blob)
	return connErr("put", err)
}

func (s *MySQLStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM wa_session WHERE session_key = ?", key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, connErr("get", err)
	}
	return data, true, nil
}

func (s *MySQLStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM wa_session WHERE session_key = ?", key)
	return connErr("delete", err)
}

func (s *MySQLStore) Exists(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM wa_session WHERE session_key = ?", key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, connErr("exists", err)
	}
	return true, nil
}

func (s *MySQLStore) HealthCheck(ctx context.Context) bool {
	return safeHealth(func() bool { return s.db.PingContext(ctx) == nil })
}

func (s *MySQLStore) Close() error {
	return s.db.Close()
}
