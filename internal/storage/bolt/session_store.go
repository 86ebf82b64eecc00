package bolt

import (
	"context"
	"strconv"
	"time"

	"github.com/netcafe-labs/postetrack/internal/storage"
	"go.etcd.io/bbolt"
)

type sessionStore struct {
	db *bbolt.DB
}

func sessionKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

func (s *sessionStore) Upsert(ctx context.Context, snapshot storage.SessionSnapshot) error {
	return putBucketValue(ctx, s.db, bucketSessions, sessionKey(snapshot.ID), snapshot)
}

func (s *sessionStore) Get(ctx context.Context, id int64) (*storage.SessionSnapshot, error) {
	return getBucketValue[storage.SessionSnapshot](ctx, s.db, bucketSessions, sessionKey(id))
}

func (s *sessionStore) List(ctx context.Context) ([]storage.SessionSnapshot, error) {
	return listBucket[storage.SessionSnapshot](ctx, s.db, bucketSessions)
}

func (s *sessionStore) Delete(ctx context.Context, id int64) error {
	err := deleteBucketValue(ctx, s.db, bucketSessions, sessionKey(id))
	if err == storage.ErrNotFound {
		return nil
	}
	return err
}

func (s *sessionStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	deleted := 0
	return deleted, s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketSessions))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var snapshot storage.SessionSnapshot
			if err := unmarshal(v, &snapshot); err != nil {
				return err
			}
			if snapshot.Terminal() && snapshot.UpdatedAt.Before(cutoff) {
				if err := c.Delete(); err != nil {
					return err
				}
				deleted++
			}
		}
		return nil
	})
}
