package app

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/talkincode/wagate/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// getDatabase opens the application database. sqlite names are resolved
// relative to dataDir unless absolute.
func getDatabase(cfg config.DBConfig, dataDir string) (*gorm.DB, error) {
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	if cfg.Debug {
		gcfg.Logger = logger.Default.LogMode(logger.Info)
	}

	var dialector gorm.Dialector
	switch strings.ToLower(cfg.Type) {
	case "postgres", "postgresql":
		dialector = postgres.Open(postgresDSN(cfg))
	case "sqlite", "sqlite3", "":
		name := cfg.Name
		if name == "" {
			name = "wagate.db"
		}
		if name != ":memory:" && !filepath.IsAbs(name) {
			name = filepath.Join(dataDir, name)
		}
		dialector = sqlite.Open(name + "?_foreign_keys=on&_busy_timeout=5000")
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}

	db, err := gorm.Open(dialector, gcfg)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxConn > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxConn)
	}
	if cfg.IdleConn > 0 {
		sqlDB.SetMaxIdleConns(cfg.IdleConn)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)
	return db, nil
}

func postgresDSN(cfg config.DBConfig) string {
	if strings.HasPrefix(cfg.Name, "postgres://") || strings.HasPrefix(cfg.Name, "postgresql://") {
		return cfg.Name
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
		cfg.Host, cfg.Port, cfg.User, cfg.Passwd, cfg.Name)
}
