package service

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/mirror_server/internal/model"
	"github.com/qs3c/mirror_server/internal/repository"
	"github.com/qs3c/mirror_server/internal/testutil"
)

func TestAllowance(t *testing.T) {
	tests := []struct {
		name      string
		limit     int
		used      int
		unlimited bool
		ok        bool
		remaining int
	}{
		{"free unused", 1, 0, false, true, 1},
		{"free used", 1, 1, false, false, 0},
		{"essential partly used", 5, 3, false, true, 2},
		{"over limit after downgrade", 5, 9, false, false, 0},
		{"creator", 1, 40, true, true, -1},
		{"negative limit", -1, 3, false, true, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, remaining := Allowance(tt.limit, tt.used, tt.unlimited)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.remaining, remaining)
		})
	}
}

func TestQuotaService_FreeTierOnePerMonth(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	user := testutil.TestUser(t, env.db)

	month, err := env.quota.Reserve(user)
	require.NoError(t, err)
	assert.Equal(t, model.MonthKey(time.Now()), month)

	_, err = env.quota.Reserve(user)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	var qe *QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, 1, qe.Limit)
	assert.Equal(t, 1, qe.Used)
	assert.Equal(t, model.TierFree, qe.Tier)
}

func TestQuotaService_ReserveRollsMonth(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	user := testutil.TestUser(t, env.db, testutil.WithMonth("2020-01"), testutil.WithMonthlyCount(1))

	_, err := env.quota.Reserve(user)
	require.NoError(t, err)

	found, err := env.userRepo.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MonthKey(time.Now()), found.CurrentMonthYear)
	assert.Equal(t, 1, found.ReflectionCountThisMonth)
	assert.Equal(t, 2, found.TotalReflections)
}

func TestQuotaService_ConcurrentReserveNeverExceedsLimit(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	user := testutil.TestUser(t, env.db, testutil.WithTier(model.TierEssential))

	var wg sync.WaitGroup
	var granted int32
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.quota.Reserve(user); err == nil {
				atomic.AddInt32(&granted, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), granted)
	found, _ := env.userRepo.GetByID(user.ID)
	assert.Equal(t, 5, found.ReflectionCountThisMonth)
}

func TestQuotaService_UnlimitedCreator(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	user := testutil.TestUser(t, env.db, testutil.WithCreator())
	for i := 0; i < 15; i++ {
		_, err := env.quota.Reserve(user)
		require.NoError(t, err)
	}

	info, err := env.quota.GetQuotaInfo(user.ID)
	require.NoError(t, err)
	assert.True(t, info.Unlimited)
	assert.True(t, info.CanReflect)
	assert.Equal(t, -1, info.Remaining)
	assert.Equal(t, 15, info.Used)
}

func TestQuotaService_Refund(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	user := testutil.TestUser(t, env.db)
	month, err := env.quota.Reserve(user)
	require.NoError(t, err)

	require.NoError(t, env.quota.Refund(user.ID, month))

	info, err := env.quota.GetQuotaInfo(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, info.Used)
	assert.Equal(t, 1, info.Remaining)
	assert.True(t, info.CanReflect)
}

func TestQuotaService_GetQuotaInfo(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	env.quota.now = func() time.Time { return now }

	user := testutil.TestUser(t, env.db,
		testutil.WithTier(model.TierEssential),
		testutil.WithMonth("2025-03"),
		testutil.WithMonthlyCount(3))

	info, err := env.quota.GetQuotaInfo(user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TierEssential, info.Tier)
	assert.Equal(t, "2025-03", info.MonthYear)
	assert.Equal(t, 5, info.Limit)
	assert.Equal(t, 3, info.Used)
	assert.Equal(t, 2, info.Remaining)
	assert.False(t, info.Unlimited)
	assert.Equal(t, "2025-04-01T00:00:00Z", info.ResetAt)
}

func TestQuotaService_History(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	user := testutil.TestUser(t, env.db)
	env.quota.RecordUsage(user.ID, "2025-01", repository.UsageDelta{Reflections: 1, InputTokens: 10})
	env.quota.RecordUsage(user.ID, "2025-02", repository.UsageDelta{Reflections: 2})

	items, err := env.quota.History(user.ID, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "2025-02", items[0].MonthYear)
	assert.Equal(t, 2, items[0].ReflectionsCreated)
	assert.Equal(t, int64(10), items[1].InputTokens)
}
