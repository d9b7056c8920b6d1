package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qs3c/mirror_server/config"
	"github.com/qs3c/mirror_server/internal/model"
	"github.com/qs3c/mirror_server/internal/model/dto"
	"github.com/qs3c/mirror_server/internal/pkg/metrics"
	"github.com/qs3c/mirror_server/internal/pkg/response"
	"github.com/qs3c/mirror_server/internal/repository"
	"github.com/qs3c/mirror_server/internal/service"
	"github.com/qs3c/mirror_server/internal/testutil"
)

func TestQuotaCheck(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	quota := service.NewQuotaService(
		repository.NewUserRepository(db),
		repository.NewUsageRepository(db),
		&config.Config{},
		zap.NewNop(),
	)
	m := metrics.New()

	fresh := testutil.TestUser(t, db)
	spent := testutil.TestUser(t, db, testutil.WithMonthlyCount(1))
	lastMonth := testutil.TestUser(t, db, testutil.WithMonthlyCount(1), testutil.WithMonth("2020-01"))
	creator := testutil.TestUser(t, db, testutil.WithMonthlyCount(50), testutil.WithCreator())
	essential := testutil.TestUser(t, db, testutil.WithTier(model.TierEssential), testutil.WithMonthlyCount(3))

	router := gin.New()
	router.Use(func(c *gin.Context) {
		id, _ := strconv.ParseInt(c.GetHeader("X-Test-User"), 10, 64)
		c.Set(UserIDKey, id)
	}, QuotaCheck(quota, m))
	router.POST("/reflections", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	tests := []struct {
		name   string
		userID int64
		status int
	}{
		{"fresh free user", fresh.ID, http.StatusOK},
		{"free user spent", spent.ID, http.StatusForbidden},
		{"month rolled over", lastMonth.ID, http.StatusOK},
		{"creator never limited", creator.ID, http.StatusOK},
		{"essential with room", essential.ID, http.StatusOK},
		{"unknown user", 999999, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/reflections", nil)
			req.Header.Set("X-Test-User", strconv.FormatInt(tt.userID, 10))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}

	assert.Equal(t, float64(1), promtest.ToFloat64(m.QuotaRejections))
}

func TestQuotaCheck_RejectionCarriesUsage(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	quota := service.NewQuotaService(repository.NewUserRepository(db), repository.NewUsageRepository(db), &config.Config{}, zap.NewNop())
	user := testutil.TestUser(t, db, testutil.WithMonthlyCount(1))

	router := gin.New()
	router.Use(func(c *gin.Context) { c.Set(UserIDKey, user.ID) }, QuotaCheck(quota, nil))
	router.POST("/reflections", func(c *gin.Context) {
		t.Fatal("handler must not run")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/reflections", nil))

	require.Equal(t, http.StatusForbidden, w.Code)
	var resp struct {
		Code int           `json:"code"`
		Data dto.QuotaInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, response.CodeQuotaExceeded, resp.Code)
	assert.Equal(t, model.TierFree, resp.Data.Tier)
	assert.Equal(t, 1, resp.Data.Limit)
	assert.Equal(t, 1, resp.Data.Used)
	assert.Equal(t, 0, resp.Data.Remaining)
	assert.False(t, resp.Data.CanReflect)
}

func TestQuotaCheck_NoUser(t *testing.T) {
	router := gin.New()
	router.Use(QuotaCheck(nil, nil))
	router.POST("/reflections", func(c *gin.Context) {})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/reflections", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
