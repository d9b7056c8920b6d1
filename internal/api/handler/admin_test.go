package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/mirror_server/internal/model"
	"github.com/qs3c/mirror_server/internal/service"
	"github.com/qs3c/mirror_server/internal/testutil"
)

func TestAdminHandler_RunMaintenance(t *testing.T) {
	e := setupEnv(t)
	admin := testutil.TestUser(t, e.db, testutil.WithAdmin())
	lapsed := testutil.TestUser(t, e.db, testutil.WithTier(model.TierEssential), testutil.WithExpiry(time.Now().Add(-time.Hour)))
	testutil.TestUser(t, e.db, testutil.WithTier(model.TierPremium), testutil.WithExpiry(time.Now().AddDate(0, 1, 0)))
	testutil.TestGift(t, e.db, testutil.WithGiftExpiresAt(time.Now().Add(-time.Hour)))

	router := routerAs(admin.ID)
	router.POST("/admin/maintenance", e.admin.RunMaintenance)

	w := performRequest(router, "POST", "/admin/maintenance?dry_run=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report service.MaintenanceReport
	decodeData(t, w, &report)
	assert.True(t, report.DryRun)
	assert.Equal(t, int64(1), report.ExpiredSubscriptions)
	assert.Equal(t, int64(1), report.StaleGifts)
	assert.NotEmpty(t, report.UsageCutoff)

	var user model.User
	require.NoError(t, e.db.First(&user, lapsed.ID).Error)
	assert.Equal(t, model.TierEssential, user.SubscriptionTier, "dry run 不修改数据")

	w = performRequest(router, "POST", "/admin/maintenance?prune_months=0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	report = service.MaintenanceReport{}
	decodeData(t, w, &report)
	assert.False(t, report.DryRun)
	assert.Equal(t, int64(1), report.ExpiredSubscriptions)
	assert.Empty(t, report.UsageCutoff)

	require.NoError(t, e.db.First(&user, lapsed.ID).Error)
	assert.Equal(t, model.TierFree, user.SubscriptionTier)

	w = performRequest(router, "POST", "/admin/maintenance?prune_months=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
