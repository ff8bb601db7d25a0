package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"phicontext/internal/models"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisSnapshotKey is the hash holding the snapshot (field = entry id)
const DefaultRedisSnapshotKey = "phicontext:entries"

// RedisSnapshotStore keeps the snapshot in one Redis hash, replaced atomically on save
type RedisSnapshotStore struct {
	client *redis.Client
	key    string
	codec  recordCodec
}

type redisSnapshotRecord struct {
	Position int    `json:"position"`
	Record   string `json:"record"`
}

// NewRedisSnapshotStore connects to redisURL and verifies the connection
func NewRedisSnapshotStore(ctx context.Context, redisURL string, opts ...StoreOption) (*RedisSnapshotStore, error) {
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Configure connection pool
	redisOpts.PoolSize = 10
	redisOpts.MinIdleConns = 2
	redisOpts.MaxRetries = 3
	redisOpts.DialTimeout = 5 * time.Second
	redisOpts.ReadTimeout = 3 * time.Second
	redisOpts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Println("✅ Redis snapshot store connected")
	return NewRedisSnapshotStoreWithClient(client, DefaultRedisSnapshotKey, opts...), nil
}

// NewRedisSnapshotStoreWithClient uses an existing client and hash key
func NewRedisSnapshotStoreWithClient(client *redis.Client, key string, opts ...StoreOption) *RedisSnapshotStore {
	if key == "" {
		key = DefaultRedisSnapshotKey
	}
	return &RedisSnapshotStore{client: client, key: key, codec: newRecordCodec(opts)}
}

// SaveEntries replaces the hash contents with entries in one MULTI/EXEC
func (s *RedisSnapshotStore) SaveEntries(ctx context.Context, entries []models.ContextEntry) error {
	fields := make(map[string]interface{}, len(entries))
	for i := range entries {
		record, err := s.codec.encode(&entries[i])
		if err != nil {
			return err
		}
		data, err := json.Marshal(redisSnapshotRecord{Position: i, Record: record})
		if err != nil {
			return fmt.Errorf("failed to encode entry %s: %w", entries[i].ID, err)
		}
		fields[entries[i].ID] = data
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(fields) > 0 {
			pipe.HSet(ctx, s.key, fields)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save snapshot to Redis: %w", err)
	}
	return nil
}

// LoadEntries returns the stored snapshot in save order
func (s *RedisSnapshotStore) LoadEntries(ctx context.Context) ([]models.ContextEntry, error) {
	values, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot from Redis: %w", err)
	}

	type positioned struct {
		position int
		entry    models.ContextEntry
	}
	loaded := make([]positioned, 0, len(values))
	for id, value := range values {
		var rec redisSnapshotRecord
		if err := json.Unmarshal([]byte(value), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot entry %s: %w", id, err)
		}
		e, err := s.codec.decode(id, rec.Record)
		if err != nil {
			return nil, err
		}
		loaded = append(loaded, positioned{position: rec.Position, entry: e})
	}
	sort.Slice(loaded, func(i, j int) bool { return loaded[i].position < loaded[j].position })

	entries := make([]models.ContextEntry, len(loaded))
	for i, p := range loaded {
		entries[i] = p.entry
	}
	return entries, nil
}

// Ping verifies the Redis connection
func (s *RedisSnapshotStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *RedisSnapshotStore) Close() error {
	return s.client.Close()
}
