package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestLockerExclusive(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := NewLocker(client)
	ctx := context.Background()

	release, err := locker.Obtain(ctx, "ar:receivable:1:payment", time.Second)
	require.NoError(t, err)

	_, err = locker.Obtain(ctx, "ar:receivable:1:payment", time.Second)
	require.ErrorIs(t, err, ErrLockHeld)

	release()
	release2, err := locker.Obtain(ctx, "ar:receivable:1:payment", time.Second)
	require.NoError(t, err)
	release2()
}

func TestNilLockerIsNoop(t *testing.T) {
	var locker *Locker
	release, err := locker.Obtain(context.Background(), "k", time.Second)
	require.NoError(t, err)
	release()
}
