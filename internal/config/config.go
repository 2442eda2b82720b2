package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Cache      CacheConfig      `mapstructure:"cache"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Tasks      TasksConfig      `mapstructure:"tasks"`
	Feedback   FeedbackConfig   `mapstructure:"feedback"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"` // sqlite
	Host            string        `mapstructure:"host"` // postgres
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
	return c.Path
}

type StorageConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
}

type ClassifierConfig struct {
	Provider      string        `mapstructure:"provider"`
	Model         string        `mapstructure:"model"`
	APIKey        string        `mapstructure:"api_key"`
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerMinute int           `mapstructure:"rate_per_minute"`
}

type CacheConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	RecentWindow        int     `mapstructure:"recent_window"`
}

// RateLimitConfig holds all abuse-guard limits. Every field is
// env-overridable so limits can be tuned without a deploy; Enabled=false
// bypasses the guard entirely (internal testing).
type RateLimitConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	SustainedLimit  int           `mapstructure:"sustained_limit"`
	SustainedWindow time.Duration `mapstructure:"sustained_window"`
	BurstLimit      int           `mapstructure:"burst_limit"`
	BurstWindow     time.Duration `mapstructure:"burst_window"`
	BlockDuration   time.Duration `mapstructure:"block_duration"`
}

type MetricsConfig struct {
	// Timezone is the fixed reference timezone whose local midnight resets
	// the daily counters.
	Timezone string `mapstructure:"timezone"`
}

type TasksConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

type FeedbackConfig struct {
	RetryCount int `mapstructure:"retry_count"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/binsight.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.bucket", "binsight-thumbs")
	v.SetDefault("classifier.provider", "openai")
	v.SetDefault("classifier.model", "gpt-4o-mini")
	v.SetDefault("classifier.base_url", "https://api.openai.com/v1")
	v.SetDefault("classifier.timeout", 60*time.Second)
	v.SetDefault("classifier.rate_per_minute", 50)
	v.SetDefault("cache.similarity_threshold", 0.85)
	v.SetDefault("cache.recent_window", 1000)
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.sustained_limit", 20)
	v.SetDefault("rate_limit.sustained_window", 60*time.Minute)
	v.SetDefault("rate_limit.burst_limit", 5)
	v.SetDefault("rate_limit.burst_window", 10*time.Second)
	v.SetDefault("rate_limit.block_duration", 15*time.Minute)
	v.SetDefault("metrics.timezone", "UTC")
	v.SetDefault("tasks.workers", 2)
	v.SetDefault("tasks.queue_size", 256)
	v.SetDefault("feedback.retry_count", 3)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data and for the
	// limits that operations tune most often
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("classifier.api_key", "OPENAI_API_KEY")
	v.BindEnv("classifier.base_url", "OPENAI_BASE_URL")
	v.BindEnv("classifier.model", "CLASSIFIER_MODEL")
	v.BindEnv("rate_limit.enabled", "RATE_LIMIT_ENABLED")
	v.BindEnv("rate_limit.sustained_limit", "RATE_LIMIT_SUSTAINED_LIMIT")
	v.BindEnv("rate_limit.sustained_window", "RATE_LIMIT_SUSTAINED_WINDOW")
	v.BindEnv("rate_limit.burst_limit", "RATE_LIMIT_BURST_LIMIT")
	v.BindEnv("rate_limit.burst_window", "RATE_LIMIT_BURST_WINDOW")
	v.BindEnv("rate_limit.block_duration", "RATE_LIMIT_BLOCK_DURATION")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
