package sessionstore

import (
	"context"
	"fmt"

	"github.com/talkincode/wagate/config"
	"gorm.io/gorm"
)

// New builds the backend named by cfg.Session.Store. db is the application
// database and is only used by the "database" backend.
func New(ctx context.Context, cfg *config.AppConfig, db *gorm.DB) (Store, error) {
	switch cfg.Session.Store {
	case "", "database", "postgres", "sqlite":
		if db == nil {
			return nil, fmt.Errorf("%w: database backend without a database", ErrUnknownBackend)
		}
		return NewGormStore(db), nil
	case "mysql":
		return NewMySQLStore(cfg.Session.MysqlDSN)
	case "file":
		return NewFileStore(cfg.Session.FilePath), nil
	case "bolt":
		return NewBoltStore(cfg.Session.BoltPath)
	case "redis":
		return NewRedisStore(ctx, cfg.Session.RedisURL)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Session.Store)
	}
}
