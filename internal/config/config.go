package config

import (
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Cache     CacheConfig
	Engine    EngineConfig
	Lock      LockConfig
	Scheduler SchedulerConfig
	Export    ExportConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	// Driver is a database/sql driver name: "pgx" or "postgres".
	Driver          string
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	// MaxConcurrentTx bounds transactions in flight across goroutines.
	MaxConcurrentTx int64
}

type CacheConfig struct {
	Enabled       bool
	RedisURL      string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	TTLSeconds    int
}

// EngineConfig controls how an analysis run is executed. Thresholds that
// shape recommendations live in the settings table, not here.
type EngineConfig struct {
	WorkerCount   int
	RetryAttempts int
	RetryBackoff  time.Duration
}

type LockConfig struct {
	// Backend is "postgres" (sentinel row) or "redis".
	Backend string
	TTL     time.Duration
}

type SchedulerConfig struct {
	Enabled bool
	Sources []string
	// RunAt is the local wall-clock time (HH:MM) of the daily run.
	RunAt string
}

type ExportConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

type LogConfig struct {
	Level  string
	Format string
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		setDefaults(viper.GetViper())

		// Read from environment variables
		viper.AutomaticEnv()

		instance = fromViper(viper.GetViper())
	})

	return instance
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_MODE", "release")
	v.SetDefault("SERVER_READ_TIMEOUT", 15)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 120)
	v.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
	v.SetDefault("DB_DRIVER", "pgx")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "replenishment")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_MAX_CONCURRENT_TX", 10)
	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_HOST", "127.0.0.1")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_TTL_SECONDS", 60)
	v.SetDefault("ENGINE_WORKER_COUNT", 8)
	v.SetDefault("ENGINE_RETRY_ATTEMPTS", 3)
	v.SetDefault("ENGINE_RETRY_BACKOFF", "500ms")
	v.SetDefault("LOCK_BACKEND", "postgres")
	v.SetDefault("LOCK_TTL", "2h")
	v.SetDefault("SCHEDULER_ENABLED", false)
	v.SetDefault("SCHEDULER_SOURCES", []string{})
	v.SetDefault("SCHEDULER_RUN_AT", "02:00")
	v.SetDefault("EXPORT_ENABLED", false)
	v.SetDefault("EXPORT_REGION", "us-east-1")
	v.SetDefault("EXPORT_USE_SSL", true)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			Mode:           v.GetString("SERVER_MODE"),
			ReadTimeout:    v.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout:   v.GetInt("SERVER_WRITE_TIMEOUT"),
			AllowedOrigins: v.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("DB_DRIVER"),
			Host:            v.GetString("DB_HOST"),
			Port:            v.GetString("DB_PORT"),
			User:            v.GetString("DB_USER"),
			Password:        v.GetString("DB_PASSWORD"),
			DBName:          v.GetString("DB_NAME"),
			SSLMode:         v.GetString("DB_SSLMODE"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			MaxConcurrentTx: v.GetInt64("DB_MAX_CONCURRENT_TX"),
		},
		Cache: CacheConfig{
			Enabled:       v.GetBool("CACHE_ENABLED"),
			RedisURL:      v.GetString("REDIS_URL"),
			RedisHost:     v.GetString("REDIS_HOST"),
			RedisPort:     v.GetString("REDIS_PORT"),
			RedisPassword: v.GetString("REDIS_PASSWORD"),
			RedisDB:       v.GetInt("REDIS_DB"),
			TTLSeconds:    v.GetInt("CACHE_TTL_SECONDS"),
		},
		Engine: EngineConfig{
			WorkerCount:   v.GetInt("ENGINE_WORKER_COUNT"),
			RetryAttempts: v.GetInt("ENGINE_RETRY_ATTEMPTS"),
			RetryBackoff:  v.GetDuration("ENGINE_RETRY_BACKOFF"),
		},
		Lock: LockConfig{
			Backend: v.GetString("LOCK_BACKEND"),
			TTL:     v.GetDuration("LOCK_TTL"),
		},
		Scheduler: SchedulerConfig{
			Enabled: v.GetBool("SCHEDULER_ENABLED"),
			Sources: v.GetStringSlice("SCHEDULER_SOURCES"),
			RunAt:   v.GetString("SCHEDULER_RUN_AT"),
		},
		Export: ExportConfig{
			Enabled:   v.GetBool("EXPORT_ENABLED"),
			Endpoint:  v.GetString("EXPORT_ENDPOINT"),
			AccessKey: v.GetString("EXPORT_ACCESS_KEY"),
			SecretKey: v.GetString("EXPORT_SECRET_KEY"),
			Bucket:    v.GetString("EXPORT_BUCKET"),
			Region:    v.GetString("EXPORT_REGION"),
			UseSSL:    v.GetBool("EXPORT_USE_SSL"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
	}
}
