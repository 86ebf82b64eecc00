package bolt

import (
	"context"

	"github.com/netcafe-labs/postetrack/internal/storage"
	"go.etcd.io/bbolt"
)

type tariffStore struct {
	db *bbolt.DB
}

func (s *tariffStore) Get(ctx context.Context, id string) (*storage.TariffPlan, error) {
	return getBucketValue[storage.TariffPlan](ctx, s.db, bucketTariffs, id)
}

func (s *tariffStore) List(ctx context.Context) ([]storage.TariffPlan, error) {
	return listBucket[storage.TariffPlan](ctx, s.db, bucketTariffs)
}

func (s *tariffStore) Upsert(ctx context.Context, plan storage.TariffPlan) error {
	return putBucketValue(ctx, s.db, bucketTariffs, plan.ID, plan)
}

func (s *tariffStore) Delete(ctx context.Context, id string) error {
	return deleteBucketValue(ctx, s.db, bucketTariffs, id)
}
