// Package database opens the connections to ScyllaDB, Redis, Elasticsearch
// and MinIO.
package database

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/gocql/gocql"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"

	"shoemart_back_end/internal/config"
)

// Connections is what main wires the stores from. Elastic and MinIO are nil
// when not configured.
type Connections struct {
	Scylla  *ScyllaManager
	Redis   *redis.Client
	Elastic *elasticsearch.Client
	MinIO   *minio.Client

	embedded *miniredis.Miniredis
}

// Connect opens every configured backend. Scylla is skipped for the memory
// backend, which also runs an in-process Redis when REDIS_HOST is empty.
func Connect(ctx context.Context, cfg config.Config) (*Connections, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	conns := &Connections{}
	var err error
	if cfg.Backend == "scylla" {
		if cfg.Scylla.Migrate {
			if err := Migrate(ctx, cfg.Scylla); err != nil {
				return nil, err
			}
		}
		conns.Scylla = NewScyllaManager(cfg.Scylla)
		for _, ks := range cfg.Scylla.Keyspaces() {
			if _, err := conns.Scylla.Session(ks); err != nil {
				conns.Close()
				return nil, err
			}
		}
	}
	if cfg.Redis.Addr == "" {
		if conns.embedded, err = miniredis.Run(); err != nil {
			conns.Close()
			return nil, fmt.Errorf("embedded redis: %w", err)
		}
		log.Println("⚠️ REDIS_HOST not set, using an in-process Redis")
		cfg.Redis.Addr = conns.embedded.Addr()
	}
	if conns.Redis, err = connectRedis(ctx, cfg.Redis); err != nil {
		conns.Close()
		return nil, err
	}
	if conns.Elastic, err = connectElastic(cfg.Elastic); err != nil {
		conns.Close()
		return nil, err
	}
	if conns.MinIO, err = connectMinIO(ctx, cfg.MinIO); err != nil {
		conns.Close()
		return nil, err
	}
	log.Println("✅ All backends connected")
	return conns, nil
}

func (c *Connections) Close() {
	if c.Scylla != nil {
		c.Scylla.Close()
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			log.Printf("⚠️ closing Redis: %v", err)
		}
	}
	if c.embedded != nil {
		c.embedded.Close()
	}
}

// =============================================
// SCYLLA DB (one session per keyspace)
// =============================================

type ScyllaManager struct {
	cfg      config.ScyllaConfig
	sessions map[string]*gocql.Session
	mu       sync.Mutex
}

func NewScyllaManager(cfg config.ScyllaConfig) *ScyllaManager {
	return &ScyllaManager{cfg: cfg, sessions: make(map[string]*gocql.Session)}
}

func newCluster(cfg config.ScyllaConfig, keyspace string) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.SerialConsistency = gocql.Serial
	cluster.Timeout = cfg.Timeout
	cluster.NumConns = cfg.NumConns
	cluster.MaxWaitSchemaAgreement = 30 * time.Second
	cluster.ReconnectInterval = time.Second
	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{Username: cfg.Username, Password: cfg.Password}
	}
	if cfg.CACertPath != "" {
		cluster.SslOpts = &gocql.SslOptions{CaPath: cfg.CACertPath, EnableHostVerification: true}
	}
	cluster.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(gocql.RoundRobinHostPolicy())
	return cluster
}

// Session returns the shared session of keyspace, reconnecting when the
// cached one stopped answering.
func (sm *ScyllaManager) Session(keyspace string) (*gocql.Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if session, ok := sm.sessions[keyspace]; ok {
		if !session.Closed() {
			return session, nil
		}
		delete(sm.sessions, keyspace)
	}
	session, err := newCluster(sm.cfg, keyspace).CreateSession()
	if err != nil {
		return nil, fmt.Errorf("scylla session for %s: %w", keyspace, err)
	}
	sm.sessions[keyspace] = session
	log.Printf("✅ ScyllaDB session for keyspace '%s'", keyspace)
	return session, nil
}

func (sm *ScyllaManager) Products() (*gocql.Session, error) { return sm.Session(sm.cfg.ProductsKeyspace) }

func (sm *ScyllaManager) Users() (*gocql.Session, error) { return sm.Session(sm.cfg.UsersKeyspace) }

func (sm *ScyllaManager) Orders() (*gocql.Session, error) { return sm.Session(sm.cfg.OrdersKeyspace) }

func (sm *ScyllaManager) Close() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for keyspace, session := range sm.sessions {
		session.Close()
		log.Printf("🔌 ScyllaDB session closed for '%s'", keyspace)
	}
	sm.sessions = make(map[string]*gocql.Session)
}

// =============================================
// REDIS
// =============================================

func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Addr, err)
	}
	log.Println("✅ Connected to Redis")
	return client, nil
}

// =============================================
// ELASTICSEARCH
// =============================================

func connectElastic(cfg config.ElasticConfig) (*elasticsearch.Client, error) {
	if cfg.URL == "" {
		log.Println("⚠️ ELASTIC_URL not set, order search disabled")
		return nil, nil
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}
	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("elasticsearch %s: %w", cfg.URL, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch %s: %s", cfg.URL, res.Status())
	}
	log.Println("✅ Connected to Elasticsearch")
	return client, nil
}

// =============================================
// MINIO
// =============================================

func connectMinIO(ctx context.Context, cfg config.MinIOConfig) (*minio.Client, error) {
	if cfg.Endpoint == "" {
		log.Println("⚠️ MINIO_ENDPOINT not set, ticket attachments kept in memory")
		return nil, nil
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("minio bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		log.Println("🪣 Bucket created:", cfg.Bucket)
	}
	log.Println("✅ Connected to MinIO:", cfg.Endpoint)
	return client, nil
}
