package app

import (
	"github.com/robfig/cron/v3"
	"github.com/talkincode/wagate/config"
	"github.com/talkincode/wagate/internal/session"
	"gorm.io/gorm"
)

// DBProvider provides database access
type DBProvider interface {
	DB() *gorm.DB
}

// ConfigProvider provides application configuration
type ConfigProvider interface {
	Config() *config.AppConfig
}

// SettingsProvider provides system settings access backed by sys_config
type SettingsProvider interface {
	GetSettingsStringValue(category, key string) string
	SaveSetting(category, key, value string) error
}

// SchedulerProvider provides task scheduling capability
type SchedulerProvider interface {
	Scheduler() *cron.Cron
	Jobs() []JobInfo
	RunJobNow(name string) error
}

// SessionProvider exposes the session archive adapter and store health
type SessionProvider interface {
	Sessions() *session.Adapter
	StoreHealthy() bool
}

// AppContext combines all provider interfaces for full application context
// Services should depend on specific providers or this combined interface
type AppContext interface {
	DBProvider
	ConfigProvider
	SettingsProvider
	SchedulerProvider
	SessionProvider

	MigrateDB(track bool) error
}
