package config

import (
	"os"
	"path"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// DBConfig Database config
type DBConfig struct {
	Type     string `yaml:"type"` // postgres | sqlite
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Passwd   string `yaml:"passwd"`
	MaxConn  int    `yaml:"max_conn"`
	IdleConn int    `yaml:"idle_conn"`
	Debug    bool   `yaml:"debug"`
}

// SysConfig System config
type SysConfig struct {
	Appid    string `yaml:"appid"`
	Location string `yaml:"location"`
	Workdir  string `yaml:"workdir"`
	Debug    bool   `yaml:"debug"`
}

// WebConfig api server config
type WebConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	JwtSecret string `yaml:"jwt_secret"`
}

// LogConfig logger config
type LogConfig struct {
	Mode       string `yaml:"mode"`
	FileEnable bool   `yaml:"file_enable"`
	Filename   string `yaml:"filename"`
}

// SessionConfig controls where the exported session archive is looked for
// and which backend persists it.
type SessionConfig struct {
	Name           string        `yaml:"name"`
	Store          string        `yaml:"store"` // database | file | bolt | redis | mysql
	FilePath       string        `yaml:"file_path"`
	BoltPath       string        `yaml:"bolt_path"`
	RedisURL       string        `yaml:"redis_url"`
	MysqlDSN       string        `yaml:"mysql_dsn"`
	AuthDir        string        `yaml:"auth_dir"`
	WaitTimeout    time.Duration `yaml:"wait_timeout"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	MaxAttempts    int           `yaml:"max_attempts"`
	BaseDelay      time.Duration `yaml:"base_delay"`
	CleanupArchive bool          `yaml:"cleanup_archive"`
	BackupInterval time.Duration `yaml:"backup_interval"`
}

// WebhookConfig incoming message forwarding
type WebhookConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
	Workers int           `yaml:"workers"`
}

type AppConfig struct {
	System   SysConfig     `yaml:"system"`
	Web      WebConfig     `yaml:"web"`
	Database DBConfig      `yaml:"database"`
	Logger   LogConfig     `yaml:"logger"`
	Session  SessionConfig `yaml:"session"`
	Webhook  WebhookConfig `yaml:"webhook"`
}

func (c *AppConfig) GetLogDir() string {
	return path.Join(c.System.Workdir, "logs")
}

func (c *AppConfig) GetDataDir() string {
	return path.Join(c.System.Workdir, "data")
}

// GetAuthDir returns the directory holding the client's on-disk session data.
func (c *AppConfig) GetAuthDir() string {
	if c.Session.AuthDir != "" {
		return c.Session.AuthDir
	}
	return path.Join(c.System.Workdir, ".wwebjs_auth")
}

func (c *AppConfig) initDirs() {
	_ = os.MkdirAll(c.GetLogDir(), 0o755)
	_ = os.MkdirAll(c.GetDataDir(), 0o755)
	_ = os.MkdirAll(c.GetAuthDir(), 0o700)
}

var DefaultAppConfig = &AppConfig{
	System: SysConfig{
		Appid:    "wagate",
		Location: "Asia/Jakarta",
		Workdir:  "/var/wagate",
		Debug:    true,
	},
	Web: WebConfig{
		Host: "0.0.0.0",
		Port: 3000,
	},
	Database: DBConfig{
		Type:     "sqlite",
		Host:     "127.0.0.1",
		Port:     5432,
		Name:     "wagate.db",
		User:     "postgres",
		Passwd:   "",
		MaxConn:  20,
		IdleConn: 5,
	},
	Logger: LogConfig{
		Mode:       "development",
		FileEnable: false,
		Filename:   "/var/wagate/logs/wagate.log",
	},
	Session: SessionConfig{
		Name:           "main",
		Store:          "database",
		WaitTimeout:    30 * time.Second,
		PollInterval:   500 * time.Millisecond,
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		BackupInterval: 10 * time.Minute,
	},
	Webhook: WebhookConfig{
		Timeout: 10 * time.Second,
		Workers: 8,
	},
}

// LoadConfig reads the yaml file (when present), applies .env and WAGATE_*
// environment overrides, and fills zero values from DefaultAppConfig.
func LoadConfig(cfile string) (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := new(AppConfig)
	*cfg = *DefaultAppConfig
	if cfile != "" {
		data, err := os.ReadFile(cfile)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	cfg.fillDefaults()
	cfg.initDirs()
	return cfg, nil
}

func (c *AppConfig) fillDefaults() {
	d := DefaultAppConfig
	if c.System.Workdir == "" {
		c.System.Workdir = d.System.Workdir
	}
	if c.Web.Port == 0 {
		c.Web.Port = d.Web.Port
	}
	if c.Database.Type == "" {
		c.Database.Type = d.Database.Type
	}
	if c.Session.Name == "" {
		c.Session.Name = d.Session.Name
	}
	if c.Session.Store == "" {
		c.Session.Store = d.Session.Store
	}
	if c.Session.WaitTimeout <= 0 {
		c.Session.WaitTimeout = d.Session.WaitTimeout
	}
	if c.Session.PollInterval <= 0 {
		c.Session.PollInterval = d.Session.PollInterval
	}
	if c.Session.MaxAttempts <= 0 {
		c.Session.MaxAttempts = d.Session.MaxAttempts
	}
	if c.Session.BaseDelay <= 0 {
		c.Session.BaseDelay = d.Session.BaseDelay
	}
	if c.Session.FilePath == "" {
		c.Session.FilePath = path.Join(c.GetDataDir(), "sessions.json")
	}
	if c.Session.BoltPath == "" {
		c.Session.BoltPath = path.Join(c.GetDataDir(), "sessions.bolt")
	}
	if c.Webhook.Timeout <= 0 {
		c.Webhook.Timeout = d.Webhook.Timeout
	}
	if c.Webhook.Workers <= 0 {
		c.Webhook.Workers = d.Webhook.Workers
	}
}

func setEnvValue(name string, val *string) {
	if v := os.Getenv(name); v != "" {
		*val = v
	}
}

func setEnvBoolValue(name string, val *bool) {
	if v := os.Getenv(name); v != "" {
		*val = cast.ToBool(strings.TrimSpace(v))
	}
}

func setEnvIntValue(name string, val *int) {
	if v := os.Getenv(name); v != "" {
		*val = cast.ToInt(strings.TrimSpace(v))
	}
}

func setEnvDurationValue(name string, val *time.Duration) {
	if v := os.Getenv(name); v != "" {
		*val = cast.ToDuration(strings.TrimSpace(v))
	}
}

func applyEnv(cfg *AppConfig) {
	setEnvValue("WAGATE_SYSTEM_WORKER_DIR", &cfg.System.Workdir)
	setEnvValue("WAGATE_SYSTEM_LOCATION", &cfg.System.Location)
	setEnvBoolValue("WAGATE_SYSTEM_DEBUG", &cfg.System.Debug)

	setEnvValue("WAGATE_WEB_HOST", &cfg.Web.Host)
	setEnvIntValue("WAGATE_WEB_PORT", &cfg.Web.Port)
	setEnvValue("WAGATE_WEB_JWT_SECRET", &cfg.Web.JwtSecret)

	setEnvValue("WAGATE_DB_TYPE", &cfg.Database.Type)
	setEnvValue("WAGATE_DB_HOST", &cfg.Database.Host)
	setEnvIntValue("WAGATE_DB_PORT", &cfg.Database.Port)
	setEnvValue("WAGATE_DB_NAME", &cfg.Database.Name)
	setEnvValue("WAGATE_DB_USER", &cfg.Database.User)
	setEnvValue("WAGATE_DB_PWD", &cfg.Database.Passwd)
	setEnvBoolValue("WAGATE_DB_DEBUG", &cfg.Database.Debug)

	setEnvValue("WAGATE_LOGGER_MODE", &cfg.Logger.Mode)
	setEnvBoolValue("WAGATE_LOGGER_FILE_ENABLE", &cfg.Logger.FileEnable)
	setEnvValue("WAGATE_LOGGER_FILENAME", &cfg.Logger.Filename)

	setEnvValue("WAGATE_SESSION_NAME", &cfg.Session.Name)
	setEnvValue("WAGATE_SESSION_STORE", &cfg.Session.Store)
	setEnvValue("WAGATE_SESSION_FILE_PATH", &cfg.Session.FilePath)
	setEnvValue("WAGATE_SESSION_BOLT_PATH", &cfg.Session.BoltPath)
	setEnvValue("WAGATE_SESSION_REDIS_URL", &cfg.Session.RedisURL)
	setEnvValue("WAGATE_SESSION_MYSQL_DSN", &cfg.Session.MysqlDSN)
	setEnvValue("WAGATE_SESSION_AUTH_DIR", &cfg.Session.AuthDir)
	setEnvDurationValue("WAGATE_SESSION_WAIT_TIMEOUT", &cfg.Session.WaitTimeout)
	setEnvDurationValue("WAGATE_SESSION_POLL_INTERVAL", &cfg.Session.PollInterval)
	setEnvIntValue("WAGATE_SESSION_MAX_ATTEMPTS", &cfg.Session.MaxAttempts)
	setEnvDurationValue("WAGATE_SESSION_BASE_DELAY", &cfg.Session.BaseDelay)
	setEnvBoolValue("WAGATE_SESSION_CLEANUP_ARCHIVE", &cfg.Session.CleanupArchive)
	setEnvDurationValue("WAGATE_SESSION_BACKUP_INTERVAL", &cfg.Session.BackupInterval)

	setEnvValue("WAGATE_WEBHOOK_URL", &cfg.Webhook.URL)
	setEnvDurationValue("WAGATE_WEBHOOK_TIMEOUT", &cfg.Webhook.Timeout)
	setEnvIntValue("WAGATE_WEBHOOK_WORKERS", &cfg.Webhook.Workers)

	// DATABASE_URL is honoured the way the hosted variants expect it.
	if v := os.Getenv("DATABASE_URL"); v != "" && cfg.Database.Type == "postgres" {
		cfg.Database.Name = v
	}
}
