package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/mirror_server/config"
	"github.com/qs3c/mirror_server/internal/api/middleware"
	"github.com/qs3c/mirror_server/internal/pkg/codes"
	"github.com/qs3c/mirror_server/internal/pkg/email"
	"github.com/qs3c/mirror_server/internal/pkg/llm"
	"github.com/qs3c/mirror_server/internal/pkg/metrics"
	"github.com/qs3c/mirror_server/internal/pkg/oauth"
	"github.com/qs3c/mirror_server/internal/pkg/payment"
	"github.com/qs3c/mirror_server/internal/pkg/response"
	"github.com/qs3c/mirror_server/internal/repository"
	"github.com/qs3c/mirror_server/internal/service"
	"github.com/qs3c/mirror_server/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubLLM struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *stubLLM) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{Text: "Your dream is **already** moving.", Model: "test-model", InputTokens: 50, OutputTokens: 30}, nil
}

type stubMailer struct {
	mu   sync.Mutex
	sent []*email.Message
}

func (s *stubMailer) Send(ctx context.Context, msg *email.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

type stubProvider struct {
	event    *payment.Event
	parseErr error
}

func (s *stubProvider) EnsureCustomer(ctx context.Context, email, name string, userID int64) (string, error) {
	return fmt.Sprintf("cus_%d", userID), nil
}

func (s *stubProvider) CreateCheckoutSession(ctx context.Context, params *payment.CheckoutParams) (*payment.CheckoutSession, error) {
	return &payment.CheckoutSession{ID: "cs_1", URL: "https://checkout.test/cs_1"}, nil
}

func (s *stubProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	return "https://billing.test/" + customerID, nil
}

func (s *stubProvider) ParseWebhook(payload []byte, signature string) (*payment.Event, error) {
	if s.parseErr != nil {
		return nil, s.parseErr
	}
	if signature != "t=1,v1=ok" || s.event == nil {
		return nil, payment.ErrInvalidSignature
	}
	return s.event, nil
}

type stubGithub struct {
	user *oauth.GithubUser
}

func (s *stubGithub) AuthURL(state string) string {
	return "https://github.test/authorize?state=" + state
}

func (s *stubGithub) FetchUser(ctx context.Context, code string) (*oauth.GithubUser, error) {
	if s.user == nil {
		return nil, fmt.Errorf("github unavailable")
	}
	return s.user, nil
}

// env 处理器测试的依赖，外部服务全部替换为 stub
type env struct {
	db       *gorm.DB
	cfg      *config.Config
	metrics  *metrics.Metrics
	llm      *stubLLM
	mailer   *stubMailer
	provider *stubProvider
	github   *stubGithub

	auth        *AuthHandler
	user        *UserHandler
	dream       *DreamHandler
	reflection  *ReflectionHandler
	evolution   *EvolutionHandler
	gift        *GiftHandler
	payment     *PaymentHandler
	receipt     *ReceiptHandler
	admin       *AdminHandler
	quota       *service.QuotaService
	maintenance *service.MaintenanceService
}

func setupEnv(t *testing.T) *env {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })
	rdb, _ := testutil.SetupTestRedis(t)

	cfg := &config.Config{
		Server: config.ServerConfig{Mode: "test", FrontendURL: "https://mirror.test"},
		JWT:    config.JWTConfig{Secret: "handler-test-secret", ExpireHours: 24},
		LLM:    config.LLMConfig{MaxTokens: 4000, PremiumMaxTokens: 6000, ThinkingBudget: 5000},
		Stripe: config.StripeConfig{Prices: map[string]string{
			"essential_monthly": "price_ess_m",
			"gift_essential":    "price_gift_ess",
		}},
	}

	e := &env{
		db:       db,
		cfg:      cfg,
		metrics:  metrics.New(),
		llm:      &stubLLM{},
		mailer:   &stubMailer{},
		provider: &stubProvider{},
		github:   &stubGithub{},
	}
	log := zap.NewNop()

	userRepo := repository.NewUserRepository(db)
	dreamRepo := repository.NewDreamRepository(db)
	reflectionRepo := repository.NewReflectionRepository(db)
	giftRepo := repository.NewGiftRepository(db)
	usageRepo := repository.NewUsageRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)

	e.quota = service.NewQuotaService(userRepo, usageRepo, cfg, log)
	gifts := service.NewGiftService(giftRepo, userRepo, e.mailer, e.metrics, cfg, log)
	receipts := service.NewReceiptService(repository.NewReceiptRepository(db), userRepo, nil, e.mailer, cfg, log)
	payments := service.NewPaymentService(userRepo, subRepo, gifts, receipts, e.provider, e.mailer, e.metrics, cfg, log)
	e.maintenance = service.NewMaintenanceService(userRepo, subRepo, giftRepo, usageRepo, cfg, log)

	e.auth = NewAuthHandler(service.NewAuthService(userRepo, e.quota, codes.NewStore(rdb), e.mailer, e.github, cfg, log))
	e.user = NewUserHandler(service.NewUserService(userRepo, e.quota, cfg))
	e.dream = NewDreamHandler(service.NewDreamService(dreamRepo, userRepo, cfg))
	e.reflection = NewReflectionHandler(service.NewReflectionService(reflectionRepo, dreamRepo, userRepo, e.quota, e.llm, nil, e.metrics, cfg, log))
	e.evolution = NewEvolutionHandler(service.NewEvolutionService(reflectionRepo, repository.NewEvolutionRepository(db), dreamRepo, userRepo, e.quota, e.llm, nil, e.metrics, cfg, log))
	e.gift = NewGiftHandler(gifts, payments)
	e.payment = NewPaymentHandler(payments, log)
	e.receipt = NewReceiptHandler(receipts)
	e.admin = NewAdminHandler(e.maintenance, 24)
	return e
}

// mockAuth 模拟登录用户
func mockAuth(userID int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, userID)
		c.Next()
	}
}

// routerAs 以 userID 身份访问的路由，userID 为 0 表示未登录
func routerAs(userID int64) *gin.Engine {
	router := gin.New()
	if userID != 0 {
		router.Use(mockAuth(userID))
	}
	return router
}

func performRequest(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

// decodeData 把 data 字段解到 out
func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NoError(t, json.Unmarshal(resp.Data, out))
}

func daysFromNow(days int) string {
	return time.Now().AddDate(0, 0, days).Format("2006-01-02")
}
