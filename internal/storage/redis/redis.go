package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/netcafe-labs/postetrack/internal/config"
	"github.com/netcafe-labs/postetrack/internal/storage"
	"github.com/redis/go-redis/v9"
)

const (
	keyNotifications = "postetrack:notifications"
	keyTariffSet     = "postetrack:tariffs"
	keySessionSet    = "postetrack:sessions"
)

func tariffKey(id string) string {
	return "postetrack:tariff:" + id
}

func sessionKey(id string) string {
	return "postetrack:session:" + id
}

// Store implements the storage.Store interface using Redis.
type Store struct {
	client *redis.Client
}

// Open creates a new Redis-backed storage instance.
func Open(cfg config.RedisConfig) (*Store, error) {
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}

	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}

	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{client: client}, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Notifications returns the notification history store.
func (s *Store) Notifications() storage.NotificationStore { return &notificationStore{client: s.client} }

// Tariffs returns the tariff plan store.
func (s *Store) Tariffs() storage.TariffStore { return &tariffStore{client: s.client} }

// Sessions returns the session snapshot store.
func (s *Store) Sessions() storage.SessionStore { return &sessionStore{client: s.client} }

func marshal(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	return string(data), nil
}

func unmarshal(data string, out any) error {
	if err := json.Unmarshal([]byte(data), out); err != nil {
		return fmt.Errorf("unmarshal value: %w", err)
	}
	return nil
}
