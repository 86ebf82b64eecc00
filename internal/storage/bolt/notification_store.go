package bolt

import (
	"context"
	"time"

	"github.com/netcafe-labs/postetrack/internal/storage"
	"go.etcd.io/bbolt"
)

type notificationStore struct {
	db *bbolt.DB
}

func (s *notificationStore) SaveHistory(ctx context.Context, records []storage.NotificationRecord) error {
	if records == nil {
		records = []storage.NotificationRecord{}
	}
	return putBucketValue(ctx, s.db, bucketNotifications, keyNotificationHistory, records)
}

func (s *notificationStore) LoadHistory(ctx context.Context) ([]storage.NotificationRecord, error) {
	records, err := getBucketValue[[]storage.NotificationRecord](ctx, s.db, bucketNotifications, keyNotificationHistory)
	if err == storage.ErrNotFound {
		return []storage.NotificationRecord{}, nil
	}
	if err != nil {
		return nil, err
	}
	return *records, nil
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
