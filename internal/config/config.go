package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures the full configuration surface for the application.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Scylla    ScyllaConfig    `mapstructure:"scylla"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Dialer    DialerConfig    `mapstructure:"dialer"`
	Lease     LeaseConfig     `mapstructure:"lease"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`
	Version  string `mapstructure:"version"`
	LogLevel string `mapstructure:"log_level"`
}

// StorageConfig selects the persistence backend for dialer snapshots.
type StorageConfig struct {
	Backend     string        `mapstructure:"backend"`
	SQLitePath  string        `mapstructure:"sqlite_path"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
	SaveTimeout time.Duration `mapstructure:"save_timeout"`
}

type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// MySQLConfig configures the mysql snapshot backend.
type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ScyllaConfig configures the optional attempt history store. Empty Hosts
// disables it.
type ScyllaConfig struct {
	Hosts       []string      `mapstructure:"hosts"`
	Port        int           `mapstructure:"port"`
	Keyspace    string        `mapstructure:"keyspace"`
	Consistency string        `mapstructure:"consistency"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// KafkaConfig configures the optional dispatch event stream. Empty Brokers
// disables it.
type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	ClientID      string   `mapstructure:"client_id"`
	EventsTopic   string   `mapstructure:"events_topic"`
	Partitions    int      `mapstructure:"partitions"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
}

type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

type TelemetryConfig struct {
	Endpoint       string  `mapstructure:"endpoint"`
	ServiceVersion string  `mapstructure:"service_version"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
}

// DialerConfig holds runtime knobs for the dialer loop and the simulated
// outcome generator.
type DialerConfig struct {
	TimeZone      string        `mapstructure:"time_zone"`
	DispatchDelay time.Duration `mapstructure:"dispatch_delay"`
	SuccessRate   float64       `mapstructure:"success_rate"`
	MinDuration   time.Duration `mapstructure:"min_duration"`
	MaxDuration   time.Duration `mapstructure:"max_duration"`
	Seed          int64         `mapstructure:"seed"`
}

// LeaseConfig configures the redis run lease. Disabled unless Enabled is set
// and a redis address is configured.
type LeaseConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Name    string        `mapstructure:"name"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// Load reads configuration from file and environment variables. An empty
// path or a missing file falls back to defaults plus environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvPrefix("AUTODIALER")
	v.SetEnvKeyReplacer(NewEnvReplacer())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config: failed to read config file: %w", err)
			}
		}
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal config: %w", err)
	}

	if cfg.Dialer.SuccessRate < 0 || cfg.Dialer.SuccessRate > 1 {
		return nil, fmt.Errorf("config: dialer.success_rate must be within [0,1], got %v", cfg.Dialer.SuccessRate)
	}
	if cfg.Dialer.MaxDuration < cfg.Dialer.MinDuration {
		return nil, fmt.Errorf("config: dialer.max_duration must not be below dialer.min_duration")
	}

	return cfg, nil
}

// Location resolves the dialer time zone, defaulting to the host zone.
func (c DialerConfig) Location() (*time.Location, error) {
	if c.TimeZone == "" || c.TimeZone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("config: invalid dialer.time_zone %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// NewEnvReplacer standardizes environment variable names.
func NewEnvReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_", "-", "_")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "autodialer")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.version", "dev")

	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.sqlite_path", "autodialer.db")
	v.SetDefault("storage.key_prefix", "autodialer:")
	v.SetDefault("storage.save_timeout", 5*time.Second)

	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 4)

	v.SetDefault("mysql.max_open_conns", 4)
	v.SetDefault("mysql.max_idle_conns", 2)
	v.SetDefault("mysql.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("scylla.port", 9042)
	v.SetDefault("scylla.keyspace", "autodialer")
	v.SetDefault("scylla.consistency", "local_quorum")
	v.SetDefault("scylla.timeout", 5*time.Second)

	v.SetDefault("kafka.client_id", "autodialer")
	v.SetDefault("kafka.events_topic", "autodialer.dispatch")
	v.SetDefault("kafka.partitions", 6)
	v.SetDefault("kafka.consumer_group", "autodialer-events")

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.dial_timeout", 3*time.Second)
	v.SetDefault("redis.read_timeout", 2*time.Second)
	v.SetDefault("redis.write_timeout", 2*time.Second)
	v.SetDefault("redis.pool_size", 4)

	v.SetDefault("telemetry.sample_ratio", 1.0)

	v.SetDefault("dialer.time_zone", "Local")
	v.SetDefault("dialer.dispatch_delay", 5*time.Second)
	v.SetDefault("dialer.success_rate", 0.7)
	v.SetDefault("dialer.min_duration", 30*time.Second)
	v.SetDefault("dialer.max_duration", 330*time.Second)

	v.SetDefault("lease.name", "autodialer:run")
	v.SetDefault("lease.ttl", 2*time.Minute)
}
