package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/netcafe-labs/postetrack/internal/storage"
	"github.com/redis/go-redis/v9"
)

type sessionStore struct {
	client *redis.Client
}

func (s *sessionStore) Upsert(ctx context.Context, snapshot storage.SessionSnapshot) error {
	id := strconv.FormatInt(snapshot.ID, 10)
	data, err := marshal(snapshot)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, sessionKey(id), data, 0).Err(); err != nil {
		return err
	}
	return s.client.SAdd(ctx, keySessionSet, id).Err()
}

func (s *sessionStore) Get(ctx context.Context, id int64) (*storage.SessionSnapshot, error) {
	data, err := s.client.Get(ctx, sessionKey(strconv.FormatInt(id, 10))).Result()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var snapshot storage.SessionSnapshot
	if err := unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (s *sessionStore) List(ctx context.Context) ([]storage.SessionSnapshot, error) {
	ids, err := s.client.SMembers(ctx, keySessionSet).Result()
	if err != nil {
		return nil, err
	}

	snapshots := make([]storage.SessionSnapshot, 0, len(ids))
	for _, id := range ids {
		parsed, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			continue
		}
		snapshot, err := s.Get(ctx, parsed)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *snapshot)
	}
	return snapshots, nil
}

func (s *sessionStore) Delete(ctx context.Context, id int64) error {
	key := strconv.FormatInt(id, 10)
	if err := s.client.Del(ctx, sessionKey(key)).Err(); err != nil {
		return err
	}
	return s.client.SRem(ctx, keySessionSet, key).Err()
}

func (s *sessionStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	snapshots, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, snapshot := range snapshots {
		if snapshot.Terminal() && snapshot.UpdatedAt.Before(cutoff) {
			if err := s.Delete(ctx, snapshot.ID); err != nil {
				return deleted, err
			}
			deleted++
		}
	}
	return deleted, nil
}
