package db

import (
	"fmt"
	"regexp"

	"github.com/gocql/gocql"

	"github.com/acme/autodialer/internal/config"
)

var keyspaceName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{0,47}$`)

// Scylla wraps a gocql session bound to the attempt history keyspace.
type Scylla struct {
	session *gocql.Session
}

// NewScylla creates the keyspace when missing and opens a session on it.
func NewScylla(cfg config.ScyllaConfig) (*Scylla, error) {
	if len(cfg.Hosts) == 0 {
		return nil, fmt.Errorf("scylla: no hosts configured")
	}
	if !keyspaceName.MatchString(cfg.Keyspace) {
		return nil, fmt.Errorf("scylla: invalid keyspace name %q", cfg.Keyspace)
	}

	if err := ensureKeyspace(cfg); err != nil {
		return nil, err
	}

	cluster := newCluster(cfg)
	cluster.Keyspace = cfg.Keyspace
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("scylla: create session: %w", err)
	}

	return &Scylla{session: session}, nil
}

func newCluster(cfg config.ScyllaConfig) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Port = cfg.Port
	cluster.Consistency = parseConsistency(cfg.Consistency)
	cluster.Timeout = cfg.Timeout
	cluster.RetryPolicy = &gocql.SimpleRetryPolicy{NumRetries: 3}
	return cluster
}

func ensureKeyspace(cfg config.ScyllaConfig) error {
	session, err := newCluster(cfg).CreateSession()
	if err != nil {
		return fmt.Errorf("scylla: bootstrap session: %w", err)
	}
	defer session.Close()

	stmt := fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s
		WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1}`, cfg.Keyspace)
	if err := session.Query(stmt).Exec(); err != nil {
		return fmt.Errorf("scylla: create keyspace: %w", err)
	}
	return nil
}

// Session exposes the gocql session.
func (s *Scylla) Session() *gocql.Session {
	return s.session
}

// Close shuts down the session.
func (s *Scylla) Close() error {
	if s.session != nil {
		s.session.Close()
	}
	return nil
}

func parseConsistency(level string) gocql.Consistency {
	switch level {
	case "one":
		return gocql.One
	case "local_one":
		return gocql.LocalOne
	case "local_quorum":
		return gocql.LocalQuorum
	default:
		return gocql.Quorum
	}
}
