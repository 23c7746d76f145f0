package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"

	"github.com/Domenick1991/charterbooking/internal/apperr"
)

// MigrationMutex serializes migration runs across processes.
type MigrationMutex struct {
	rs     *redsync.Redsync
	expiry time.Duration
}

func NewMigrationMutex(client *redis.Client, expiry time.Duration) *MigrationMutex {
	return &MigrationMutex{
		rs:     redsync.New(goredis.NewPool(client)),
		expiry: expiry,
	}
}

// Lock takes the named mutex without retrying. A mutex held elsewhere is a
// Conflict.
func (m *MigrationMutex) Lock(ctx context.Context, name string) (func(context.Context) error, error) {
	mu := m.rs.NewMutex("mutex:migration:"+name,
		redsync.WithExpiry(m.expiry),
		redsync.WithTries(1),
	)
	if err := mu.LockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
			return nil, apperr.Conflict("migration lock", "migration %s is already running", name)
		}
		return nil, err
	}
	return func(ctx context.Context) error {
		_, err := mu.UnlockContext(ctx)
		return err
	}, nil
}
