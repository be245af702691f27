// Package database opens the backing stores the server is configured for.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/gocql/gocql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"bazar_back_end/internal/cache"
	"bazar_back_end/internal/config"
)

type ScyllaKeyspaceConfig struct {
	Hosts       []string
	Keyspace    string
	Username    string
	Password    string
	SSLEnabled  bool
	CACertPath  string
	Timeout     time.Duration
	NumConns    int
	Consistency gocql.Consistency
}

// ScyllaManager keeps one session per keyspace. Each keyspace has its own
// role.
type ScyllaManager struct {
	mu       sync.Mutex
	sessions map[string]*gocql.Session
	configs  map[string]ScyllaKeyspaceConfig
	logger   *slog.Logger
}

func NewScyllaManager(configs []ScyllaKeyspaceConfig, logger *slog.Logger) *ScyllaManager {
	m := &ScyllaManager{
		sessions: make(map[string]*gocql.Session),
		configs:  make(map[string]ScyllaKeyspaceConfig, len(configs)),
		logger:   logger,
	}
	for _, c := range configs {
		m.configs[c.Keyspace] = c
	}
	return m
}

// ScyllaConfigs builds the orders and users keyspace settings. Keyspaces
// without a name are left out.
func ScyllaConfigs(cfg *config.Config) []ScyllaKeyspaceConfig {
	base := ScyllaKeyspaceConfig{
		Hosts:       cfg.ScyllaHosts,
		SSLEnabled:  cfg.ScyllaSSLEnabled,
		CACertPath:  cfg.ScyllaSSLCAPath,
		Timeout:     5 * time.Second,
		NumConns:    20,
		Consistency: gocql.Quorum,
	}
	var out []ScyllaKeyspaceConfig
	if cfg.ScyllaOrdersKS != "" {
		c := base
		c.Keyspace, c.Username, c.Password = cfg.ScyllaOrdersKS, cfg.ScyllaOrdersRole, cfg.ScyllaOrdersPass
		out = append(out, c)
	}
	if cfg.ScyllaUsersKS != "" {
		c := base
		c.Keyspace, c.Username, c.Password = cfg.ScyllaUsersKS, cfg.ScyllaUsersRole, cfg.ScyllaUsersPass
		out = append(out, c)
	}
	return out
}

func NewCluster(c ScyllaKeyspaceConfig) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(c.Hosts...)
	cluster.Keyspace = c.Keyspace
	cluster.Consistency = c.Consistency
	cluster.SerialConsistency = gocql.LocalSerial
	cluster.Timeout = c.Timeout
	cluster.NumConns = c.NumConns
	cluster.MaxWaitSchemaAgreement = 30 * time.Second
	cluster.ReconnectInterval = time.Second
	if c.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{Username: c.Username, Password: c.Password}
	}
	if c.SSLEnabled {
		cluster.SslOpts = &gocql.SslOptions{
			CaPath:                 c.CACertPath,
			EnableHostVerification: c.CACertPath != "",
		}
	}
	cluster.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(gocql.RoundRobinHostPolicy())
	return cluster
}

func (m *ScyllaManager) Session(keyspace string) (*gocql.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.configs[keyspace]
	if !ok {
		return nil, fmt.Errorf("keyspace %q not configured", keyspace)
	}
	if s, ok := m.sessions[keyspace]; ok && !s.Closed() {
		return s, nil
	}
	s, err := NewCluster(c).CreateSession()
	if err != nil {
		return nil, fmt.Errorf("scylla session for %s: %w", keyspace, err)
	}
	m.sessions[keyspace] = s
	m.logger.Info("scylla session opened", "keyspace", keyspace, "role", c.Username)
	return s, nil
}

func (m *ScyllaManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ks, s := range m.sessions {
		s.Close()
		m.logger.Info("scylla session closed", "keyspace", ks)
	}
	m.sessions = map[string]*gocql.Session{}
}

// OpenPostgres opens a pool on the pgx driver and pings it.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return db, nil
}

func OpenElastic(url, user, password string) (*elasticsearch.Client, error) {
	if url == "" {
		return nil, errors.New("ELASTIC_URL not configured")
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{url},
		Username:  user,
		Password:  password,
	})
	if err != nil {
		return nil, err
	}
	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("elasticsearch info: %w", err)
	}
	res.Body.Close()
	return client, nil
}

// Connections holds whatever stores came up. Optional stores are nil when
// unconfigured or unreachable; the server then falls back to in-process
// replacements.
type Connections struct {
	Scylla   *ScyllaManager
	Orders   *gocql.Session
	Users    *gocql.Session
	Postgres *sql.DB
	Redis    *redis.Client
	Elastic  *elasticsearch.Client
}

// Connect opens the stores. The order store selected by ORDER_STORE is
// required; Redis and Elasticsearch are optional.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Connections, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	conns := &Connections{}

	if len(cfg.ScyllaHosts) > 0 {
		conns.Scylla = NewScyllaManager(ScyllaConfigs(cfg), logger)
		if cfg.ScyllaUsersKS != "" {
			s, err := conns.Scylla.Session(cfg.ScyllaUsersKS)
			if err != nil {
				conns.Close()
				return nil, err
			}
			conns.Users = s
		}
	}

	switch cfg.OrderStore {
	case "scylla":
		if conns.Scylla == nil || cfg.ScyllaOrdersKS == "" {
			conns.Close()
			return nil, errors.New("ORDER_STORE=scylla needs SCYLLA_HOSTS and SCYLLA_KS_ORDERS_KEYSPACE")
		}
		s, err := conns.Scylla.Session(cfg.ScyllaOrdersKS)
		if err != nil {
			conns.Close()
			return nil, err
		}
		conns.Orders = s
	case "postgres":
		db, err := OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			conns.Close()
			return nil, err
		}
		conns.Postgres = db
		logger.Info("connected to postgres")
	}

	if cfg.RedisAddr != "" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logger.Warn("redis unavailable, using in-process cache", "error", err)
		} else {
			conns.Redis = client
			logger.Info("connected to redis")
		}
	}

	if cfg.ElasticURL != "" {
		client, err := OpenElastic(cfg.ElasticURL, cfg.ElasticUser, cfg.ElasticPassword)
		if err != nil {
			logger.Warn("elasticsearch unavailable, order search disabled", "error", err)
		} else {
			conns.Elastic = client
			logger.Info("connected to elasticsearch")
		}
	}
	return conns, nil
}

func (c *Connections) Close() {
	if c.Scylla != nil {
		c.Scylla.Close()
	}
	if c.Postgres != nil {
		c.Postgres.Close()
	}
	if c.Redis != nil {
		c.Redis.Close()
	}
}
