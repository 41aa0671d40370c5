package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"github.com/KiKaraage/eastyles-sub002/pkg/style"
)

// Redis key layout defaults.
const (
	// DefaultRedisPrefix namespaces style keys.
	DefaultRedisPrefix = "eastyles:style:"

	// DefaultRedisChannel carries update/remove notifications.
	DefaultRedisChannel = "eastyles:events"
)

// RedisConfig configures a Redis-backed store.
type RedisConfig struct {
	// Addr is the host:port of the Redis server.
	Addr string

	// Password is optional.
	Password string

	// DB selects the Redis database number.
	DB int

	// Prefix and Channel default to the package constants.
	Prefix  string
	Channel string

	// Logger defaults to the package default logger.
	Logger *log.Logger
}

// RedisStore is a Store over Redis: one JSON value per style under a
// key prefix, and pub/sub notifications on a shared channel so every
// connected page controller observes installs and removals.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	channel string
	logger  *log.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	channel := cfg.Channel
	if channel == "" {
		channel = DefaultRedisChannel
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &RedisStore{client: client, prefix: prefix, channel: channel, logger: logger}, nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

// Query returns every enabled document, ordered by installation time.
func (s *RedisStore) Query(ctx context.Context, url string) ([]style.Document, error) {
	docs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := docs[:0]
	for _, d := range docs {
		if d.Enabled {
			out = append(out, d)
		}
	}
	return out, nil
}

// Get returns the document with the given ID.
func (s *RedisStore) Get(ctx context.Context, id string) (*style.Document, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var doc style.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode style %s: %w", id, err)
	}
	return &doc, nil
}

// Put stores the document and publishes an update event.
func (s *RedisStore) Put(ctx context.Context, doc style.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(&doc)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(doc.ID), data, 0).Err(); err != nil {
		return err
	}
	return s.publish(ctx, Event{Type: EventUpdated, StyleID: doc.ID, Doc: &doc})
}

// Delete removes the document and publishes a remove event.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	return s.publish(ctx, Event{Type: EventRemoved, StyleID: id})
}

// List returns every document, enabled or not.
func (s *RedisStore) List(ctx context.Context) ([]style.Document, error) {
	var docs []style.Document
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // deleted between scan and get
		}
		if err != nil {
			return nil, err
		}
		var doc style.Document
		if err := json.Unmarshal(data, &doc); err != nil {
			s.logger.Warn("skipping undecodable style", "key", iter.Val(), "err", err)
			continue
		}
		docs = append(docs, doc)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sortByInstall(docs)
	return docs, nil
}

// Watch implements Watcher via Redis pub/sub.
func (s *RedisStore) Watch(ctx context.Context) (<-chan Event, error) {
	sub := s.client.Subscribe(ctx, s.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, err
	}

	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					s.logger.Warn("dropping undecodable registry event", "err", err)
					continue
				}
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

func (s *RedisStore) publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.channel, data).Err()
}
