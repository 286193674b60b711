package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	NATS        NATSConfig        `mapstructure:"nats"`
	Valkey      ValkeyConfig      `mapstructure:"valkey"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	Log         LogConfig         `mapstructure:"log"`
	Detection   DetectionConfig   `mapstructure:"detection"`
	Preferences PreferencesConfig `mapstructure:"preferences"`
	Directory   DirectoryConfig   `mapstructure:"directory"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DetectionConfig tunes the detection orchestrator.
type DetectionConfig struct {
	SearchRadiusMeters        int           `mapstructure:"search_radius_meters"`
	ConfidenceFloor           int           `mapstructure:"confidence_floor"`
	ConfirmationSkipThreshold int           `mapstructure:"confirmation_skip_threshold"`
	GPSTimeout                time.Duration `mapstructure:"gps_timeout"`
	GPSRetryTimeout           time.Duration `mapstructure:"gps_retry_timeout"`
	DirectoryTimeout          time.Duration `mapstructure:"directory_timeout"`
	CacheStaleness            time.Duration `mapstructure:"cache_staleness"`
	WatchInterval             time.Duration `mapstructure:"watch_interval"`
	DistanceFilterMeters      float64       `mapstructure:"distance_filter_meters"`
	MaxSessions               int           `mapstructure:"max_sessions"`
	SessionIdleTTL            time.Duration `mapstructure:"session_idle_ttl"`
}

// PreferencesConfig selects where confirmation state is persisted.
type PreferencesConfig struct {
	Backend    string `mapstructure:"backend"` // memory | valkey | sqlite
	SQLitePath string `mapstructure:"sqlite_path"`
}

// DirectoryConfig selects the store directory implementation.
type DirectoryConfig struct {
	Backend  string `mapstructure:"backend"` // postgres | memory
	SeedFile string `mapstructure:"seed_file"`
	CacheTTL int    `mapstructure:"cache_ttl"` // seconds
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "storedetect")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "storedetect")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("detection.search_radius_meters", 150)
	v.SetDefault("detection.confidence_floor", 30)
	v.SetDefault("detection.confirmation_skip_threshold", 80)
	v.SetDefault("detection.gps_timeout", "15s")
	v.SetDefault("detection.gps_retry_timeout", "30s")
	v.SetDefault("detection.directory_timeout", "10s")
	v.SetDefault("detection.cache_staleness", "10m")
	v.SetDefault("detection.watch_interval", "10s")
	v.SetDefault("detection.distance_filter_meters", 50)
	v.SetDefault("detection.max_sessions", 10000)
	v.SetDefault("detection.session_idle_ttl", "30m")
	v.SetDefault("preferences.backend", "valkey")
	v.SetDefault("preferences.sqlite_path", "storedetect.db")
	v.SetDefault("directory.backend", "postgres")
	v.SetDefault("directory.seed_file", "")
	v.SetDefault("directory.cache_ttl", 300)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: STOREDETECT_DATABASE_HOST → database.host
	v.SetEnvPrefix("STOREDETECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}

	switch c.Directory.Backend {
	case "postgres":
		if c.Database.Host == "" {
			errs = append(errs, "database.host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.User == "" {
			errs = append(errs, "database.user is required")
		}
		if c.Database.DBName == "" {
			errs = append(errs, "database.dbname is required")
		}
	case "memory":
	default:
		errs = append(errs, fmt.Sprintf("directory.backend must be postgres or memory, got %q", c.Directory.Backend))
	}

	switch c.Preferences.Backend {
	case "valkey":
		if c.Valkey.Addr == "" {
			errs = append(errs, "valkey.addr is required for the valkey preference backend")
		}
	case "sqlite":
		if c.Preferences.SQLitePath == "" {
			errs = append(errs, "preferences.sqlite_path is required for the sqlite preference backend")
		}
	case "memory":
	default:
		errs = append(errs, fmt.Sprintf("preferences.backend must be memory, valkey or sqlite, got %q", c.Preferences.Backend))
	}

	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}

	d := c.Detection
	if d.SearchRadiusMeters <= 0 {
		errs = append(errs, "detection.search_radius_meters must be positive")
	}
	if d.ConfidenceFloor < 0 || d.ConfidenceFloor > 100 {
		errs = append(errs, fmt.Sprintf("detection.confidence_floor must be 0-100, got %d", d.ConfidenceFloor))
	}
	if d.ConfirmationSkipThreshold < 0 || d.ConfirmationSkipThreshold > 100 {
		errs = append(errs, fmt.Sprintf("detection.confirmation_skip_threshold must be 0-100, got %d", d.ConfirmationSkipThreshold))
	}
	if d.GPSTimeout <= 0 || d.GPSRetryTimeout <= 0 || d.DirectoryTimeout <= 0 {
		errs = append(errs, "detection timeouts must be positive")
	}
	if d.CacheStaleness <= 0 {
		errs = append(errs, "detection.cache_staleness must be positive")
	}
	if d.WatchInterval <= 0 {
		errs = append(errs, "detection.watch_interval must be positive")
	}
	if d.DistanceFilterMeters < 0 {
		errs = append(errs, "detection.distance_filter_meters must not be negative")
	}
	if d.MaxSessions <= 0 {
		errs = append(errs, "detection.max_sessions must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
