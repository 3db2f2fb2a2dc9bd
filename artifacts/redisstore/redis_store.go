// Package redisstore keeps auth artifacts in Redis so several processes on a
// host, or a kiosk fleet, share one persisted session.
package redisstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/jrsteele09/campus-auth/artifacts"
	apperrors "github.com/jrsteele09/campus-auth/internal/errors"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var _ artifacts.Store = (*Store)(nil)

const scanBatch = 100

// Config selects the Redis server and the key namespace.
type Config struct {
	Addr      string
	Password  string
	DB        int
	Namespace string        // Prefix applied to every key, e.g. "campusauth:"
	TTL       time.Duration // Zero keeps artifacts until removed
}

// Store is an artifacts.Store in a Redis keyspace.
type Store struct {
	client    redis.UniversalClient
	namespace string
	ttl       time.Duration
}

// NewClient connects to Redis and checks the connection.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "[redisstore.NewClient] ping")
	}
	return client, nil
}

// New wraps an existing client. The namespace is required: Keys and the
// pre-login cleanup only ever touch keys under it.
func New(client redis.UniversalClient, namespace string, ttl time.Duration) (*Store, error) {
	if client == nil {
		return nil, errors.New("[redisstore.New] client is required")
	}
	if strings.TrimSpace(namespace) == "" {
		return nil, errors.New("[redisstore.New] namespace is required")
	}
	return &Store{client: client, namespace: namespace, ttl: ttl}, nil
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, s.namespace+"*", scanBatch).Result()
		if err != nil {
			return nil, errors.Wrap(err, "[redisstore.Keys] scan")
		}
		for _, k := range batch {
			keys = append(keys, strings.TrimPrefix(k, s.namespace))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, s.namespace+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", apperrors.ErrArtifactNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "[redisstore.Get]")
	}
	return v, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	return errors.Wrap(s.client.Set(ctx, s.namespace+key, value, s.ttl).Err(), "[redisstore.Set]")
}

func (s *Store) Remove(ctx context.Context, key string) error {
	return errors.Wrap(s.client.Del(ctx, s.namespace+key).Err(), "[redisstore.Remove]")
}
