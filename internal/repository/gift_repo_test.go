package repository

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/mirror_server/internal/model"
	"github.com/qs3c/mirror_server/internal/testutil"
)

// premiumFor 兑换回调：升级到高级套餐并记一条订阅
func premiumFor(months int) RedeemFunc {
	return func(user *model.User) (map[string]interface{}, *model.Subscription) {
		expires := time.Now().AddDate(0, months, 0)
		sub := &model.Subscription{
			UserID:    user.ID,
			Source:    model.SourceGift,
			Tier:      model.TierPremium,
			Status:    model.SubscriptionActive,
			StartedAt: time.Now(),
			ExpiresAt: &expires,
		}
		return map[string]interface{}{
			"subscription_tier":       model.TierPremium,
			"subscription_expires_at": expires,
		}, sub
	}
}

func TestGiftRepository_Redeem_AtMostOnce(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewGiftRepository(db)
	gift := testutil.TestGift(t, db, testutil.WithGiftCode("GIFT-ABCD-EFGH"))
	a := testutil.TestUser(t, db)
	b := testutil.TestUser(t, db)

	var wg sync.WaitGroup
	results := make([]bool, 2)
	for i, uid := range []int64{a.ID, b.ID} {
		wg.Add(1)
		go func(i int, uid int64) {
			defer wg.Done()
			ok, err := repo.Redeem(gift.Code, uid, time.Now(), premiumFor(1))
			assert.NoError(t, err)
			results[i] = ok
		}(i, uid)
	}
	wg.Wait()

	assert.True(t, results[0] != results[1], "exactly one redemption must succeed")

	found, err := repo.GetByCode(gift.Code)
	require.NoError(t, err)
	assert.True(t, found.IsRedeemed)
	require.NotNil(t, found.RedeemedBy)

	// 只有兑换成功的用户被升级，且只写一条订阅记录
	winner, loser := a.ID, b.ID
	if results[1] {
		winner, loser = b.ID, a.ID
	}
	assert.Equal(t, winner, *found.RedeemedBy)

	var u model.User
	require.NoError(t, db.First(&u, winner).Error)
	assert.Equal(t, model.TierPremium, u.SubscriptionTier)
	u = model.User{}
	require.NoError(t, db.First(&u, loser).Error)
	assert.Equal(t, model.TierFree, u.SubscriptionTier)

	var subs int64
	require.NoError(t, db.Model(&model.Subscription{}).Count(&subs).Error)
	assert.Equal(t, int64(1), subs)
}

func TestGiftRepository_Redeem_Expired(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewGiftRepository(db)
	gift := testutil.TestGift(t, db, testutil.WithGiftExpiresAt(time.Now().Add(-time.Hour)))
	user := testutil.TestUser(t, db)

	called := false
	ok, err := repo.Redeem(gift.Code, user.ID, time.Now(), func(u *model.User) (map[string]interface{}, *model.Subscription) {
		called = true
		return map[string]interface{}{"subscription_tier": model.TierPremium}, nil
	})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, called)

	found, err := repo.GetByCode(gift.Code)
	require.NoError(t, err)
	assert.False(t, found.IsRedeemed)

	count, err := repo.CountExpiredUnredeemed(time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestGiftRepository_ListByGiver(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewGiftRepository(db)
	giver := testutil.TestUser(t, db)
	uid := giver.ID

	testutil.TestGift(t, db, func(g *model.SubscriptionGift) { g.GiverUserID = &uid })
	testutil.TestGift(t, db)

	gifts, err := repo.ListByGiver(giver.ID)
	require.NoError(t, err)
	assert.Len(t, gifts, 1)

	exists, err := repo.ExistsByCode(gifts[0].Code)
	require.NoError(t, err)
	assert.True(t, exists)
}
