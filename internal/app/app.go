package app

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"github.com/talkincode/wagate/config"
	"github.com/talkincode/wagate/internal/domain"
	"github.com/talkincode/wagate/internal/session"
	"github.com/talkincode/wagate/internal/sessionstore"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"
)

type Application struct {
	appConfig   *config.AppConfig
	gormDB      *gorm.DB
	sched       *cron.Cron
	store       sessionstore.Store
	sessions    *session.Adapter
	storeHealth atomic.Bool

	jobsMu sync.Mutex
	jobs   map[string]*intervalJob
}

// Ensure Application implements all interfaces
var (
	_ DBProvider        = (*Application)(nil)
	_ ConfigProvider    = (*Application)(nil)
	_ SettingsProvider  = (*Application)(nil)
	_ SchedulerProvider = (*Application)(nil)
	_ SessionProvider   = (*Application)(nil)
	_ AppContext        = (*Application)(nil)
)

func NewApplication(appConfig *config.AppConfig) *Application {
	return &Application{appConfig: appConfig}
}

func (a *Application) Config() *config.AppConfig {
	return a.appConfig
}

func (a *Application) DB() *gorm.DB {
	return a.gormDB
}

// OverrideDB replaces the application's database handle (used in tests).
func (a *Application) OverrideDB(db *gorm.DB) {
	a.gormDB = db
}

// Sessions returns the session archive adapter.
func (a *Application) Sessions() *session.Adapter {
	return a.sessions
}

// OverrideSessions replaces the session store and adapter (used in tests).
func (a *Application) OverrideSessions(store sessionstore.Store) {
	a.store = store
	a.sessions = newAdapter(a.appConfig, store)
	a.storeHealth.Store(true)
}

// StoreHealthy reports the result of the last store health probe.
func (a *Application) StoreHealthy() bool {
	return a.storeHealth.Load()
}

// Init sets up logging, the application database and the session store.
// A session store that cannot be prepared is fatal.
func (a *Application) Init(cfg *config.AppConfig) error {
	loc, err := time.LoadLocation(cfg.System.Location)
	if err != nil {
		zap.S().Error("timezone config error")
	} else {
		time.Local = loc
	}

	initLogger(cfg)

	if cfg.Database.Type == "" {
		cfg.Database.Type = "sqlite"
	}
	a.gormDB, err = getDatabase(cfg.Database, cfg.GetDataDir())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	zap.S().Infof("Database connection successful, type: %s", cfg.Database.Type)

	if err := a.MigrateDB(false); err != nil {
		zap.S().Errorf("database migration failed: %v", err)
	}
	a.checkSettings()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	store, err := sessionstore.New(ctx, cfg, a.gormDB)
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("session store schema: %w", err)
	}
	a.store = store
	a.sessions = newAdapter(cfg, store)
	a.storeHealth.Store(store.HealthCheck(ctx))
	zap.L().Info("session store ready",
		zap.String("backend", cfg.Session.Store),
		zap.String("session", cfg.Session.Name))

	a.initJob()
	return nil
}

func initLogger(cfg *config.AppConfig) {
	var zapConfig zap.Config
	if cfg.Logger.Mode == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.OutputPaths = []string{"stdout"}

	var logger *zap.Logger
	if cfg.Logger.FileEnable {
		lumberJackLogger := &lumberjack.Logger{
			Filename:   cfg.Logger.Filename,
			MaxSize:    64,
			MaxBackups: 7,
			MaxAge:     7,
			Compress:   false,
		}

		core := zapcore.NewTee(
			zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.AddSync(lumberJackLogger),
				zapConfig.Level,
			),
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.AddSync(os.Stdout),
				zapConfig.Level,
			),
		)
		logger = zap.New(core, zap.AddCaller())
	} else {
		var err error
		logger, err = zapConfig.Build(zap.AddCaller())
		if err != nil {
			panic(err)
		}
	}

	zap.ReplaceGlobals(logger)
}

func newAdapter(cfg *config.AppConfig, store sessionstore.Store) *session.Adapter {
	return session.NewAdapter(store, session.Options{
		WorkDir:      cfg.System.Workdir,
		AuthDir:      cfg.GetAuthDir(),
		WaitTimeout:  cfg.Session.WaitTimeout,
		PollInterval: cfg.Session.PollInterval,
		Retry: session.RetryPolicy{
			MaxAttempts: cfg.Session.MaxAttempts,
			BaseDelay:   cfg.Session.BaseDelay,
			Multiplier:  2,
		},
		CleanupArchive: cfg.Session.CleanupArchive,
	})
}

func (a *Application) MigrateDB(track bool) (err error) {
	defer func() {
		if err1 := recover(); err1 != nil {
			if os.Getenv("GO_DEGUB_TRACE") != "" {
				debug.PrintStack()
			}
			err2, ok := err1.(error)
			if ok {
				err = err2
				zap.S().Error(err2.Error())
			}
		}
	}()
	db := a.gormDB
	if track {
		db = db.Debug()
	}
	return db.Migrator().AutoMigrate(domain.Tables...)
}

// Scheduler returns the cron scheduler
func (a *Application) Scheduler() *cron.Cron {
	return a.sched
}

// Release releases application resources
func (a *Application) Release() {
	if a.sched != nil {
		<-a.sched.Stop().Done()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			zap.L().Warn("session store close failed", zap.Error(err))
		}
	}
	if a.gormDB != nil {
		if sqlDB, err := a.gormDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	_ = zap.L().Sync()
}
