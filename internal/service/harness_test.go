package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/mirror_server/config"
	"github.com/qs3c/mirror_server/internal/pkg/codes"
	"github.com/qs3c/mirror_server/internal/pkg/email"
	"github.com/qs3c/mirror_server/internal/pkg/llm"
	"github.com/qs3c/mirror_server/internal/pkg/metrics"
	"github.com/qs3c/mirror_server/internal/pkg/oauth"
	"github.com/qs3c/mirror_server/internal/pkg/payment"
	"github.com/qs3c/mirror_server/internal/pkg/pubsub"
	"github.com/qs3c/mirror_server/internal/repository"
	"github.com/qs3c/mirror_server/internal/testutil"
)

type fakeLLM struct {
	mu    sync.Mutex
	calls []*llm.Request
	text  string
	err   error
}

func (f *fakeLLM) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	text := f.text
	if text == "" {
		text = "You already **know** the way.\n\nTake the *first* step."
	}
	return &llm.Response{Text: text, Model: "test-model", InputTokens: 120, OutputTokens: 80}, nil
}

func (f *fakeLLM) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeLLM) Last() *llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []*email.Message
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, msg *email.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeMailer) ByTemplate(name string) []*email.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*email.Message
	for _, m := range f.sent {
		if m.Template == name {
			out = append(out, m)
		}
	}
	return out
}

var codeInURL = regexp.MustCompile(`code=([0-9a-f]{32})`)

// codeFrom 从邮件链接中取出访问码
func codeFrom(t *testing.T, msg *email.Message) string {
	t.Helper()
	m := codeInURL.FindStringSubmatch(msg.HTML)
	if len(m) != 2 {
		t.Fatalf("no code in email %q", msg.Subject)
	}
	return m[1]
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*pubsub.ProgressMessage
}

func (f *fakePublisher) PublishProgress(ctx context.Context, msg *pubsub.ProgressMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg.Fill()
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakePublisher) Steps() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	steps := make([]string, len(f.msgs))
	for i, m := range f.msgs {
		steps[i] = m.Step
	}
	return steps
}

type fakeProvider struct {
	mu        sync.Mutex
	customers int
	checkouts []*payment.CheckoutParams
	event     *payment.Event
	parseErr  error
}

func (f *fakeProvider) EnsureCustomer(ctx context.Context, email, name string, userID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customers++
	return fmt.Sprintf("cus_test_%d", userID), nil
}

func (f *fakeProvider) CreateCheckoutSession(ctx context.Context, params *payment.CheckoutParams) (*payment.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkouts = append(f.checkouts, params)
	return &payment.CheckoutSession{ID: "cs_test", URL: "https://checkout.test/cs_test"}, nil
}

func (f *fakeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	return "https://billing.test/" + customerID, nil
}

func (f *fakeProvider) ParseWebhook(payload []byte, signature string) (*payment.Event, error) {
	if f.parseErr != nil {
		return nil, f.parseErr
	}
	if f.event == nil {
		return nil, payment.ErrInvalidPayload
	}
	return f.event, nil
}

type fakeArchive struct {
	mu   sync.Mutex
	puts map[string][]byte
	err  error
}

func (f *fakeArchive) PutReceipt(number string, issuedAt time.Time, html []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if f.puts == nil {
		f.puts = map[string][]byte{}
	}
	key := "receipts/" + number + ".html"
	f.puts[key] = html
	return key, nil
}

func (f *fakeArchive) SignedURL(key string, expire time.Duration) (string, error) {
	return "https://oss.test/" + key + "?sig=1", nil
}

type fakeGithub struct {
	user *oauth.GithubUser
	err  error
}

func (f *fakeGithub) AuthURL(state string) string {
	return "https://github.test/login/oauth/authorize?state=" + state
}

func (f *fakeGithub) FetchUser(ctx context.Context, code string) (*oauth.GithubUser, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.user == nil {
		return nil, errors.New("no github user")
	}
	return f.user, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Mode: "test", FrontendURL: "https://mirror.test"},
		JWT: config.JWTConfig{
			Secret:      "test-secret-key-for-testing",
			ExpireHours: 24,
		},
		LLM: config.LLMConfig{
			MaxTokens:        4000,
			PremiumMaxTokens: 6000,
			ThinkingBudget:   5000,
		},
		Stripe: config.StripeConfig{
			Prices: map[string]string{
				"essential_monthly": "price_ess_m",
				"essential_yearly":  "price_ess_y",
				"premium_monthly":   "price_pre_m",
				"gift_premium":      "price_gift_pre",
			},
		},
		Maintenance: config.MaintenanceConfig{UsageRetentionMonths: 24},
	}
}

// testEnv 组装好依赖的服务，外部依赖全部替换为 fake
type testEnv struct {
	db       *gorm.DB
	cfg      *config.Config
	log      *zap.Logger
	metrics  *metrics.Metrics
	llm      *fakeLLM
	mailer   *fakeMailer
	pub      *fakePublisher
	provider *fakeProvider
	archive  *fakeArchive
	github   *fakeGithub

	userRepo       *repository.UserRepository
	dreamRepo      *repository.DreamRepository
	reflectionRepo *repository.ReflectionRepository
	evolutionRepo  *repository.EvolutionRepository
	giftRepo       *repository.GiftRepository
	receiptRepo    *repository.ReceiptRepository
	usageRepo      *repository.UsageRepository
	subRepo        *repository.SubscriptionRepository

	quota       *QuotaService
	users       *UserService
	auth        *AuthService
	dreams      *DreamService
	reflections *ReflectionService
	evolution   *EvolutionService
	gifts       *GiftService
	receipts    *ReceiptService
	payments    *PaymentService
	maintenance *MaintenanceService
}

func setupEnv(t *testing.T, opts ...func(*config.Config)) (*testEnv, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	rdb, mr := testutil.SetupTestRedis(t)

	cfg := testConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	e := &testEnv{
		db:       db,
		cfg:      cfg,
		log:      zap.NewNop(),
		metrics:  metrics.New(),
		llm:      &fakeLLM{},
		mailer:   &fakeMailer{},
		pub:      &fakePublisher{},
		provider: &fakeProvider{},
		archive:  &fakeArchive{},
		github:   &fakeGithub{},

		userRepo:       repository.NewUserRepository(db),
		dreamRepo:      repository.NewDreamRepository(db),
		reflectionRepo: repository.NewReflectionRepository(db),
		evolutionRepo:  repository.NewEvolutionRepository(db),
		giftRepo:       repository.NewGiftRepository(db),
		receiptRepo:    repository.NewReceiptRepository(db),
		usageRepo:      repository.NewUsageRepository(db),
		subRepo:        repository.NewSubscriptionRepository(db),
	}

	e.quota = NewQuotaService(e.userRepo, e.usageRepo, cfg, e.log)
	e.users = NewUserService(e.userRepo, e.quota, cfg)
	e.auth = NewAuthService(e.userRepo, e.quota, codes.NewStore(rdb), e.mailer, e.github, cfg, e.log)
	e.dreams = NewDreamService(e.dreamRepo, e.userRepo, cfg)
	e.reflections = NewReflectionService(e.reflectionRepo, e.dreamRepo, e.userRepo, e.quota, e.llm, e.pub, e.metrics, cfg, e.log)
	e.evolution = NewEvolutionService(e.reflectionRepo, e.evolutionRepo, e.dreamRepo, e.userRepo, e.quota, e.llm, e.pub, e.metrics, cfg, e.log)
	e.gifts = NewGiftService(e.giftRepo, e.userRepo, e.mailer, e.metrics, cfg, e.log)
	e.receipts = NewReceiptService(e.receiptRepo, e.userRepo, e.archive, e.mailer, cfg, e.log)
	e.payments = NewPaymentService(e.userRepo, e.subRepo, e.gifts, e.receipts, e.provider, e.mailer, e.metrics, cfg, e.log)
	e.maintenance = NewMaintenanceService(e.userRepo, e.subRepo, e.giftRepo, e.usageRepo, cfg, e.log)

	// miniredis 由 SetupTestRedis 自动关闭
	_ = mr
	cleanup := func() {
		testutil.CleanupTestDB(t, db)
	}
	return e, cleanup
}
