package redis

import (
	"context"
	"errors"
	"time"

	"github.com/netcafe-labs/postetrack/internal/storage"
	"github.com/redis/go-redis/v9"
)

type notificationStore struct {
	client *redis.Client
}

func (s *notificationStore) SaveHistory(ctx context.Context, records []storage.NotificationRecord) error {
	if records == nil {
		records = []storage.NotificationRecord{}
	}
	data, err := marshal(records)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, keyNotifications, data, 0).Err()
}

func (s *notificationStore) LoadHistory(ctx context.Context) ([]storage.NotificationRecord, error) {
	data, err := s.client.Get(ctx, keyNotifications).Result()
	if errors.Is(err, redis.Nil) {
		return []storage.NotificationRecord{}, nil
	}
	if err != nil {
		return nil, err
	}

	var records []storage.NotificationRecord
	if err := unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *notificationStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	records, err := s.LoadHistory(ctx)
	if err != nil {
		return 0, err
	}

	kept := make([]storage.NotificationRecord, 0, len(records))
	for _, record := range records {
		if !record.Timestamp.Before(cutoff) {
			kept = append(kept, record)
		}
	}

	deleted := len(records) - len(kept)
	if deleted == 0 {
		return 0, nil
	}
	return deleted, s.SaveHistory(ctx, kept)
}
