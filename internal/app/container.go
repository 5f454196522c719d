package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/acme/autodialer/internal/clock"
	"github.com/acme/autodialer/internal/config"
	"github.com/acme/autodialer/internal/dialer"
	"github.com/acme/autodialer/internal/events"
	"github.com/acme/autodialer/internal/infra/db"
	"github.com/acme/autodialer/internal/infra/redis"
	"github.com/acme/autodialer/internal/lease"
	"github.com/acme/autodialer/internal/privacy"
	"github.com/acme/autodialer/internal/repository"
	"github.com/acme/autodialer/internal/repository/memory"
	mysqlrepo "github.com/acme/autodialer/internal/repository/mysql"
	pgrepo "github.com/acme/autodialer/internal/repository/postgres"
	redisrepo "github.com/acme/autodialer/internal/repository/redis"
	scyllarepo "github.com/acme/autodialer/internal/repository/scylla"
	sqliterepo "github.com/acme/autodialer/internal/repository/sqlite"
	"github.com/acme/autodialer/internal/telemetry"
	"github.com/acme/autodialer/internal/telephony/mock"
	apperrors "github.com/acme/autodialer/pkg/errors"
	"github.com/acme/autodialer/pkg/logger"
)

// Storage backends accepted by storage.backend.
const (
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMySQL    = "mysql"
	BackendMemory   = "memory"
)

// Container wires together shared infrastructure dependencies.
type Container struct {
	Config   *config.Config
	Logger   *logger.Logger
	Clock    clock.Clock
	Location *time.Location

	SQLite   *db.SQLite
	Postgres *db.Postgres
	MySQL    *db.MySQL
	Scylla   *db.Scylla
	Redis    *redis.Client
	Kafka    *events.Kafka

	KV        repository.KVStore
	Attempts  repository.AttemptLog
	Publisher *events.Publisher
	Lease     *lease.Lease

	shutdownTelemetry telemetry.ShutdownFunc

	// lazily initialised components
	components struct {
		mu      sync.Mutex
		dialer  *dialer.Service
		privacy *privacy.Registry
	}
}

// Build loads configuration and connects every configured backend. On
// failure anything already opened is closed again.
func Build(ctx context.Context, configPath string) (*Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		return nil, err
	}

	loc, err := cfg.Dialer.Location()
	if err != nil {
		return nil, err
	}

	c := &Container{
		Config:   cfg,
		Logger:   lg,
		Clock:    clock.Real(),
		Location: loc,
	}
	if err := c.bootstrap(ctx); err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	return c, nil
}

func (c *Container) bootstrap(ctx context.Context) error {
	cfg := c.Config

	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry, cfg.App.Name)
	if err != nil {
		return fmt.Errorf("bootstrap telemetry: %w", err)
	}
	c.shutdownTelemetry = shutdown

	if err := c.bootstrapStorage(ctx); err != nil {
		return err
	}

	if len(cfg.Scylla.Hosts) > 0 {
		scylla, err := db.NewScylla(cfg.Scylla)
		if err != nil {
			return fmt.Errorf("bootstrap scylla: %w", err)
		}
		c.Scylla = scylla
		store := scyllarepo.NewAttemptStore(scylla.Session())
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("bootstrap scylla schema: %w", err)
		}
		c.Attempts = store
	}

	if len(cfg.Kafka.Brokers) > 0 {
		k, err := events.NewKafka(cfg.Kafka)
		if err != nil {
			return fmt.Errorf("bootstrap kafka: %w", err)
		}
		if err := k.EnsureTopic(ctx, cfg.Kafka.EventsTopic); err != nil {
			return fmt.Errorf("bootstrap kafka topic: %w", err)
		}
		c.Kafka = k
		c.Publisher = events.NewPublisher(k, cfg.Kafka.EventsTopic)
	}

	if cfg.Lease.Enabled {
		client, err := c.redisClient(ctx)
		if err != nil {
			return err
		}
		c.Lease = lease.New(client.Inner(), cfg.Lease.Name, cfg.Lease.TTL)
	}

	c.Logger.Info("container ready",
		zap.String("backend", cfg.Storage.Backend),
		zap.Bool("attempt_history", c.Attempts != nil),
		zap.Bool("events", c.Publisher != nil),
		zap.Bool("lease", c.Lease != nil),
	)
	return nil
}

func (c *Container) bootstrapStorage(ctx context.Context) error {
	cfg := c.Config
	switch cfg.Storage.Backend {
	case "", BackendSQLite:
		database, err := db.NewSQLite(cfg.Storage.SQLitePath, sqliterepo.Schema)
		if err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
		c.SQLite = database
		store := sqliterepo.New(database)
		c.KV = store
		c.Attempts = store
	case BackendRedis:
		client, err := c.redisClient(ctx)
		if err != nil {
			return err
		}
		c.KV = redisrepo.NewKVStore(client.Inner(), cfg.Storage.KeyPrefix)
	case BackendPostgres:
		pg, err := db.NewPostgres(ctx, cfg.Postgres, cfg.App.Name)
		if err != nil {
			return fmt.Errorf("bootstrap postgres: %w", err)
		}
		c.Postgres = pg
		store := pgrepo.NewSnapshotStore(pg.DB())
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("bootstrap postgres schema: %w", err)
		}
		c.KV = store
	case BackendMySQL:
		conn, err := db.NewMySQL(ctx, cfg.MySQL)
		if err != nil {
			return fmt.Errorf("bootstrap mysql: %w", err)
		}
		c.MySQL = conn
		store := mysqlrepo.NewSnapshotStore(conn.DB())
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("bootstrap mysql schema: %w", err)
		}
		c.KV = store
	case BackendMemory:
		store := memory.New()
		c.KV = store
		c.Attempts = store
	default:
		return fmt.Errorf("%w: unknown storage.backend %q", apperrors.ErrValidation, cfg.Storage.Backend)
	}
	return nil
}

func (c *Container) redisClient(ctx context.Context) (*redis.Client, error) {
	if c.Redis != nil {
		return c.Redis, nil
	}
	client, err := redis.NewClient(ctx, c.Config.Redis)
	if err != nil {
		return nil, fmt.Errorf("bootstrap redis: %w", err)
	}
	c.Redis = client
	return client, nil
}

// Dialer returns the process-wide dialer service, building it on first use.
func (c *Container) Dialer(ctx context.Context, notifier dialer.Notifier) (*dialer.Service, error) {
	c.components.mu.Lock()
	defer c.components.mu.Unlock()
	if c.components.dialer != nil {
		return c.components.dialer, nil
	}

	opts := dialer.Options{
		KV:          c.KV,
		Provider:    mock.NewProvider(c.Config.Dialer, c.Clock),
		Clock:       c.Clock,
		Location:    c.Location,
		Logger:      c.Logger,
		Notifier:    notifier,
		Attempts:    c.Attempts,
		SaveTimeout: c.Config.Storage.SaveTimeout,
	}
	// Typed nils must not reach the interface fields.
	if c.Publisher != nil {
		opts.Publisher = c.Publisher
	}
	if c.Lease != nil {
		opts.Lease = c.Lease
	}

	svc, err := dialer.New(ctx, opts)
	if err != nil {
		return nil, err
	}
	c.components.dialer = svc
	return svc, nil
}

// Privacy returns the consent registry, building it on first use.
func (c *Container) Privacy(ctx context.Context) *privacy.Registry {
	c.components.mu.Lock()
	defer c.components.mu.Unlock()
	if c.components.privacy == nil {
		c.components.privacy = privacy.NewRegistry(ctx, c.KV, c.Clock, c.Logger)
	}
	return c.components.privacy
}

// Close releases all held resources.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if c.Publisher != nil {
		if err := c.Publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher close: %w", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if c.Scylla != nil {
		if err := c.Scylla.Close(); err != nil {
			errs = append(errs, fmt.Errorf("scylla close: %w", err))
		}
	}
	if c.Postgres != nil {
		if err := c.Postgres.Close(); err != nil {
			errs = append(errs, fmt.Errorf("postgres close: %w", err))
		}
	}
	if c.MySQL != nil {
		if err := c.MySQL.Close(); err != nil {
			errs = append(errs, fmt.Errorf("mysql close: %w", err))
		}
	}
	if c.SQLite != nil {
		if err := c.SQLite.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sqlite close: %w", err))
		}
	}
	if c.shutdownTelemetry != nil {
		if err := c.shutdownTelemetry(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
	}
	if c.Logger != nil {
		c.Logger.Sync()
	}
	return apperrors.Join(errs...)
}
