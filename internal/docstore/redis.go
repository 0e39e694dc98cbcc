package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisDocPrefix     = "doc:"
	redisChannelPrefix = "docch:"
)

// RedisStore is a Store backed by Redis. Documents live under
// doc:<collection>:<key> as JSON strings; every write publishes the document
// key on docch:<collection>, which drives subscriptions across processes.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the Redis at redisURL.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func redisKey(collection, key string) string {
	return redisDocPrefix + collection + ":" + key
}

func redisChannel(collection string) string {
	return redisChannelPrefix + collection
}

func (s *RedisStore) Get(ctx context.Context, collection, key string) (Snapshot, error) {
	data, err := s.client.Get(ctx, redisKey(collection, key)).Result()
	if err == redis.Nil {
		return Snapshot{Key: key}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("get document %s/%s: %w", collection, key, err)
	}

	var doc Document
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return Snapshot{}, fmt.Errorf("decode document %s/%s: %w", collection, key, err)
	}
	return Snapshot{Key: key, Data: doc, Exists: true}, nil
}

func (s *RedisStore) Set(ctx context.Context, collection, key string, doc Document, merge bool) error {
	doc = Sanitize(doc)
	if merge {
		existing, err := s.Get(ctx, collection, key)
		if err != nil {
			return err
		}
		if existing.Exists {
			doc = Merge(existing.Data, doc)
		}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document %s/%s: %w", collection, key, err)
	}

	if err := s.client.Set(ctx, redisKey(collection, key), data, 0).Err(); err != nil {
		return fmt.Errorf("set document %s/%s: %w", collection, key, err)
	}

	s.client.Publish(ctx, redisChannel(collection), key)
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, collection, key string) error {
	if err := s.client.Del(ctx, redisKey(collection, key)).Err(); err != nil {
		return fmt.Errorf("delete document %s/%s: %w", collection, key, err)
	}

	s.client.Publish(ctx, redisChannel(collection), key)
	return nil
}

func (s *RedisStore) Subscribe(ctx context.Context, collection, key string, fn func(Snapshot)) (CancelFunc, error) {
	snap, err := s.Get(ctx, collection, key)
	if err != nil {
		return nil, err
	}

	pubsub := s.client.Subscribe(ctx, redisChannel(collection))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s/%s: %w", collection, key, err)
	}

	fn(snap)

	go func() {
		for msg := range pubsub.Channel() {
			if msg.Payload != key {
				continue
			}
			snap, err := s.Get(context.Background(), collection, key)
			if err != nil {
				continue
			}
			fn(snap)
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() { pubsub.Close() })
	}
	return cancel, nil
}

func (s *RedisStore) SubscribeCollection(ctx context.Context, collection string, fn func([]Snapshot)) (CancelFunc, error) {
	snaps, err := s.collectionSnapshots(ctx, collection)
	if err != nil {
		return nil, err
	}

	pubsub := s.client.Subscribe(ctx, redisChannel(collection))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe collection %s: %w", collection, err)
	}

	fn(snaps)

	go func() {
		for range pubsub.Channel() {
			snaps, err := s.collectionSnapshots(context.Background(), collection)
			if err != nil {
				continue
			}
			fn(snaps)
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() { pubsub.Close() })
	}
	return cancel, nil
}

func (s *RedisStore) collectionSnapshots(ctx context.Context, collection string) ([]Snapshot, error) {
	prefix := redisDocPrefix + collection + ":"
	var keys []string
	iter := s.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan collection %s: %w", collection, err)
	}
	sort.Strings(keys)

	var snaps []Snapshot
	for _, k := range keys {
		docKey := strings.TrimPrefix(k, prefix)
		snap, err := s.Get(ctx, collection, docKey)
		if err != nil {
			return nil, err
		}
		if snap.Exists {
			snaps = append(snaps, snap)
		}
	}
	return snaps, nil
}
