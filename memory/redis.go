package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openfleet/flowcore/types"
)

// RedisStore keeps per-agent context entries in a capped Redis list,
// for deployments where multiple engine instances share agent memory.
type RedisStore struct {
	client     *redis.Client
	keyPrefix  string
	maxEntries int64
	ttl        time.Duration
}

// RedisConfig configures the Redis-backed memory store.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	KeyPrefix  string
	MaxEntries int
	TTL        time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "flowcore:"
	}
	maxEntries := int64(cfg.MaxEntries)
	if maxEntries <= 0 {
		maxEntries = 100
	}
	return &RedisStore{
		client:     client,
		keyPrefix:  prefix + "mem:",
		maxEntries: maxEntries,
		ttl:        cfg.TTL,
	}, nil
}

// NewRedisStoreWithClient wraps an existing client; used by tests.
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string, maxEntries int) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "flowcore:"
	}
	if maxEntries <= 0 {
		maxEntries = 100
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix + "mem:", maxEntries: int64(maxEntries)}
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) agentKey(agentID string) string {
	return s.keyPrefix + agentID
}

// Context implements Store.
func (s *RedisStore) Context(ctx context.Context, agentID string, _ ExecutionContext) ([]Entry, error) {
	raw, err := s.client.LRange(ctx, s.agentKey(agentID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read agent context: %w", err)
	}
	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			continue // skip undecodable legacy entries
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// StoreExecution implements Store.
func (s *RedisStore) StoreExecution(ctx context.Context, stepExec *types.StepExecution, ec ExecutionContext) error {
	entry, err := executionEntry(stepExec, ec)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal context entry: %w", err)
	}

	key := s.agentKey(stepExec.AgentID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.LTrim(ctx, key, -s.maxEntries, -1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store agent context: %w", err)
	}
	return nil
}
