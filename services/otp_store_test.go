package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOTPStore(t *testing.T) *OTPStore {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewOTPStore(rdb)
}

func TestOTPStorePutGetDelete(t *testing.T) {
	store := newTestOTPStore(t)
	ctx := context.Background()

	rec := PendingRecord{
		OTP:      "123456",
		Purpose:  PendingPurposeRegister,
		Email:    "a@example.com",
		Username: "alpha",
		IssuedAt: time.Now(),
	}
	require.NoError(t, store.Put(ctx, rec))

	got, err := store.Get(ctx, PendingPurposeRegister, "a@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "123456", got.OTP)
	assert.Equal(t, "alpha", got.Username)

	require.NoError(t, store.Delete(ctx, PendingPurposeRegister, "a@example.com"))
	got, err = store.Get(ctx, PendingPurposeRegister, "a@example.com")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestOTPStoreMissingIsNil(t *testing.T) {
	store := newTestOTPStore(t)

	got, err := store.Get(context.Background(), PendingPurposeRegister, "ghost@example.com")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestOTPStorePurposesAreSeparate(t *testing.T) {
	store := newTestOTPStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, PendingRecord{
		OTP: "111111", Purpose: PendingPurposeRegister, Email: "a@example.com",
	}))
	require.NoError(t, store.Put(ctx, PendingRecord{
		OTP: "222222", Purpose: PendingPurposePasswordChange, Email: "a@example.com",
	}))

	reg, err := store.Get(ctx, PendingPurposeRegister, "a@example.com")
	require.NoError(t, err)
	pw, err := store.Get(ctx, PendingPurposePasswordChange, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "111111", reg.OTP)
	assert.Equal(t, "222222", pw.OTP)
}

func TestOTPStoreDropsAfterFiveFailures(t *testing.T) {
	store := newTestOTPStore(t)
	ctx := context.Background()

	rec := PendingRecord{OTP: "123456", Purpose: PendingPurposeRegister, Email: "a@example.com"}
	require.NoError(t, store.Put(ctx, rec))

	for i := 0; i < 4; i++ {
		got, err := store.Get(ctx, PendingPurposeRegister, "a@example.com")
		require.NoError(t, err)
		require.NotNil(t, got, "attempt %d", i)
		require.NoError(t, store.RecordFailedAttempt(ctx, got))
	}

	// Fourth failure left the record with attempts=4; the fifth drops it.
	got, err := store.Get(ctx, PendingPurposeRegister, "a@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 4, got.Attempts)
	require.NoError(t, store.RecordFailedAttempt(ctx, got))

	got, err = store.Get(ctx, PendingPurposeRegister, "a@example.com")
	require.NoError(t, err)
	assert.Nil(t, got)
}
