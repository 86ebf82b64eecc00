package redis

import (
	"context"
	"errors"

	"github.com/netcafe-labs/postetrack/internal/storage"
	"github.com/redis/go-redis/v9"
)

type tariffStore struct {
	client *redis.Client
}

func (s *tariffStore) Get(ctx context.Context, id string) (*storage.TariffPlan, error) {
	data, err := s.client.Get(ctx, tariffKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var plan storage.TariffPlan
	if err := unmarshal(data, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (s *tariffStore) List(ctx context.Context) ([]storage.TariffPlan, error) {
	ids, err := s.client.SMembers(ctx, keyTariffSet).Result()
	if err != nil {
		return nil, err
	}

	plans := make([]storage.TariffPlan, 0, len(ids))
	for _, id := range ids {
		plan, err := s.Get(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		plans = append(plans, *plan)
	}
	return plans, nil
}

func (s *tariffStore) Upsert(ctx context.Context, plan storage.TariffPlan) error {
	data, err := marshal(plan)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, tariffKey(plan.ID), data, 0).Err(); err != nil {
		return err
	}
	return s.client.SAdd(ctx, keyTariffSet, plan.ID).Err()
}

func (s *tariffStore) Delete(ctx context.Context, id string) error {
	removed, err := s.client.Del(ctx, tariffKey(id)).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return storage.ErrNotFound
	}
	return s.client.SRem(ctx, keyTariffSet, id).Err()
}
