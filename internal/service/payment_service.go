package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/mirror_server/config"
	"github.com/qs3c/mirror_server/internal/model"
	"github.com/qs3c/mirror_server/internal/model/dto"
	"github.com/qs3c/mirror_server/internal/pkg/email"
	"github.com/qs3c/mirror_server/internal/pkg/metrics"
	"github.com/qs3c/mirror_server/internal/pkg/payment"
	"github.com/qs3c/mirror_server/internal/repository"
)

var (
	ErrPaymentNotConfigured = errors.New("支付未配置")
	ErrPriceNotConfigured   = errors.New("该套餐暂不支持购买")
	ErrNoBillingAccount     = errors.New("尚未开通付费账户")
	ErrInvalidWebhook       = errors.New("无效的支付回调")
)

// 结账 metadata 中的类型
const (
	checkoutKindSubscription = "subscription"
	checkoutKindGift         = "gift"
)

type PaymentService struct {
	userRepo *repository.UserRepository
	subRepo  *repository.SubscriptionRepository
	gifts    *GiftService
	receipts *ReceiptService
	provider payment.Provider
	mailer   email.Mailer
	metrics  *metrics.Metrics
	cfg      *config.Config
	log      *zap.Logger
	now      func() time.Time
}

// NewPaymentService provider 为 nil 时所有支付接口返回 ErrPaymentNotConfigured
func NewPaymentService(
	userRepo *repository.UserRepository,
	subRepo *repository.SubscriptionRepository,
	gifts *GiftService,
	receipts *ReceiptService,
	provider payment.Provider,
	mailer email.Mailer,
	m *metrics.Metrics,
	cfg *config.Config,
	log *zap.Logger,
) *PaymentService {
	return &PaymentService{
		userRepo: userRepo,
		subRepo:  subRepo,
		gifts:    gifts,
		receipts: receipts,
		provider: provider,
		mailer:   mailer,
		metrics:  m,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

func (s *PaymentService) frontend(path string) string {
	return strings.TrimRight(s.cfg.Server.FrontendURL, "/") + path
}

func (s *PaymentService) price(key string) (string, error) {
	if s.provider == nil {
		return "", ErrPaymentNotConfigured
	}
	id := s.cfg.Stripe.Prices[key]
	if id == "" {
		return "", ErrPriceNotConfigured
	}
	return id, nil
}

// ensureCustomer 首次结账时在支付方创建客户
func (s *PaymentService) ensureCustomer(ctx context.Context, user *model.User) (string, error) {
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}
	customerID, err := s.provider.EnsureCustomer(ctx, user.Email, user.Name, user.ID)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	if err := s.userRepo.UpdateFields(user.ID, map[string]interface{}{"stripe_customer_id": customerID}); err != nil {
		return "", err
	}
	return customerID, nil
}

// CreateCheckout 订阅结账，价格 key 为 <tier>_<period>
func (s *PaymentService) CreateCheckout(ctx context.Context, userID int64, req *dto.CheckoutRequest) (*dto.CheckoutResponse, error) {
	if !model.ValidTier(req.Tier) || req.Tier == model.TierFree || !model.ValidPeriod(req.Period) {
		return nil, ErrPriceNotConfigured
	}
	priceID, err := s.price(req.Tier + "_" + req.Period)
	if err != nil {
		return nil, err
	}

	user, err := loadUser(s.userRepo, userID)
	if err != nil {
		return nil, err
	}
	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return nil, err
	}

	session, err := s.provider.CreateCheckoutSession(ctx, &payment.CheckoutParams{
		Mode:        payment.ModeSubscription,
		CustomerID:  customerID,
		PriceID:     priceID,
		Quantity:    1,
		SuccessURL:  s.frontend("/subscription/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:   s.frontend("/pricing"),
		ReferenceID: strconv.FormatInt(userID, 10),
		Metadata: map[string]string{
			"kind":    checkoutKindSubscription,
			"user_id": strconv.FormatInt(userID, 10),
			"tier":    req.Tier,
			"period":  req.Period,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &dto.CheckoutResponse{SessionID: session.ID, URL: session.URL}, nil
}

// CreateGiftCheckout 购买礼物，按月数计价，价格 key 为 gift_<tier>
func (s *PaymentService) CreateGiftCheckout(ctx context.Context, giverID *int64, req *dto.CreateGiftRequest) (*dto.CheckoutResponse, error) {
	if req.Tier != model.TierEssential && req.Tier != model.TierPremium {
		return nil, ErrInvalidGiftTier
	}
	priceID, err := s.price("gift_" + req.Tier)
	if err != nil {
		return nil, err
	}

	giverEmail := normalizeEmail(req.GiverEmail)
	giverName := strings.TrimSpace(req.GiverName)
	metadata := map[string]string{
		"kind":             checkoutKindGift,
		"tier":             req.Tier,
		"duration_months":  strconv.Itoa(req.DurationMonths),
		"recipient_name":   strings.TrimSpace(req.RecipientName),
		"recipient_email":  normalizeEmail(req.RecipientEmail),
		"personal_message": strings.TrimSpace(req.PersonalMessage),
	}
	if giverID != nil {
		metadata["giver_user_id"] = strconv.FormatInt(*giverID, 10)
		if giver, err := s.userRepo.GetByID(*giverID); err == nil {
			if giverEmail == "" {
				giverEmail = giver.Email
			}
			if giverName == "" {
				giverName = giver.Name
			}
		}
	}
	metadata["giver_name"] = giverName
	metadata["giver_email"] = giverEmail

	session, err := s.provider.CreateCheckoutSession(ctx, &payment.CheckoutParams{
		Mode:          payment.ModePayment,
		CustomerEmail: giverEmail,
		PriceID:       priceID,
		Quantity:      int64(req.DurationMonths),
		SuccessURL:    s.frontend("/gift/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:     s.frontend("/gift"),
		Metadata:      metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("create gift checkout session: %w", err)
	}
	return &dto.CheckoutResponse{SessionID: session.ID, URL: session.URL}, nil
}

// CreatePortal 账单管理页
func (s *PaymentService) CreatePortal(ctx context.Context, userID int64) (*dto.PortalResponse, error) {
	if s.provider == nil {
		return nil, ErrPaymentNotConfigured
	}
	user, err := loadUser(s.userRepo, userID)
	if err != nil {
		return nil, err
	}
	if user.StripeCustomerID == nil || *user.StripeCustomerID == "" {
		return nil, ErrNoBillingAccount
	}

	url, err := s.provider.CreatePortalSession(ctx, *user.StripeCustomerID, s.frontend("/account"))
	if err != nil {
		return nil, fmt.Errorf("create portal session: %w", err)
	}
	return &dto.PortalResponse{URL: url}, nil
}

// HandleWebhook 校验签名并分发事件，未知事件直接确认
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.provider == nil {
		return ErrPaymentNotConfigured
	}
	ev, err := s.provider.ParseWebhook(payload, signature)
	if err != nil {
		s.metrics.WebhookEvents.WithLabelValues("unknown", "rejected").Inc()
		return fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}

	label := ev.Type
	switch ev.Type {
	case payment.EventCheckoutCompleted:
		err = s.onCheckoutCompleted(ctx, ev)
	case payment.EventSubscriptionUpdated:
		err = s.onSubscriptionUpdated(ev)
	case payment.EventSubscriptionDeleted:
		err = s.onSubscriptionDeleted(ev)
	case payment.EventInvoicePaid:
		err = s.onInvoicePaid(ctx, ev)
	case payment.EventInvoiceFailed:
		err = s.onInvoiceFailed(ctx, ev)
	default:
		label = "other"
	}

	outcome := "handled"
	if err != nil {
		outcome = "error"
		s.log.Error("webhook handling failed", zap.String("event_id", ev.ID), zap.String("type", ev.Type), zap.Error(err))
	} else {
		s.log.Info("webhook handled", zap.String("event_id", ev.ID), zap.String("type", ev.Type))
	}
	s.metrics.WebhookEvents.WithLabelValues(label, outcome).Inc()
	return err
}

// userForEvent 优先用 metadata 的 user_id，其次是 customer
func (s *PaymentService) userForEvent(ev *payment.Event) (*model.User, error) {
	if raw := ev.Metadata["user_id"]; raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			if user, err := s.userRepo.GetByID(id); err == nil {
				return user, nil
			}
		}
	}
	if ev.CustomerID != "" {
		user, err := s.userRepo.GetByStripeCustomerID(ev.CustomerID)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, ErrUserNotFound
}

func (s *PaymentService) onCheckoutCompleted(ctx context.Context, ev *payment.Event) error {
	switch ev.Metadata["kind"] {
	case checkoutKindGift:
		return s.createPaidGift(ctx, ev)
	case checkoutKindSubscription, "":
		if ev.Mode != "" && ev.Mode != payment.ModeSubscription {
			return nil
		}
	default:
		return nil
	}

	user, err := s.userForEvent(ev)
	if err != nil {
		return err
	}

	tier := ev.Metadata["tier"]
	if !model.ValidTier(tier) || tier == model.TierFree {
		return fmt.Errorf("checkout %s has no paid tier", ev.SessionID)
	}
	period := ev.Metadata["period"]
	if !model.ValidPeriod(period) {
		period = model.PeriodMonthly
	}

	// 到期时间以随后的 subscription.updated 为准
	now := s.now()
	expiresAt := now.AddDate(0, 1, 0)
	if period == model.PeriodYearly {
		expiresAt = now.AddDate(1, 0, 0)
	}

	fields := map[string]interface{}{
		"subscription_tier":       tier,
		"subscription_status":     model.SubscriptionActive,
		"subscription_period":     period,
		"subscription_expires_at": expiresAt,
	}
	if ev.CustomerID != "" {
		fields["stripe_customer_id"] = ev.CustomerID
	}
	if ev.SubscriptionID != "" {
		fields["stripe_subscription_id"] = ev.SubscriptionID
	}
	if err := s.userRepo.UpdateFields(user.ID, fields); err != nil {
		return err
	}

	if err := s.subRepo.CloseActive(user.ID, model.SourceStripe, model.SubscriptionCanceled); err != nil {
		return err
	}
	if err := s.subRepo.Create(&model.Subscription{
		UserID:    user.ID,
		Tier:      tier,
		Period:    period,
		Source:    model.SourceStripe,
		Reference: ev.SubscriptionID,
		StartedAt: now,
		ExpiresAt: &expiresAt,
		Status:    model.SubscriptionActive,
	}); err != nil {
		return err
	}

	msg, err := email.SubscriptionMessage(user.Email, user.Name, tier, period, &expiresAt)
	if err == nil {
		err = s.mailer.Send(ctx, msg)
	}
	if err != nil {
		s.log.Warn("failed to send subscription email", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	return nil
}

func (s *PaymentService) createPaidGift(ctx context.Context, ev *payment.Event) error {
	months, err := strconv.Atoi(ev.Metadata["duration_months"])
	if err != nil {
		return fmt.Errorf("gift checkout %s: invalid duration", ev.SessionID)
	}

	in := &GiftInput{
		Request: dto.CreateGiftRequest{
			RecipientName:   ev.Metadata["recipient_name"],
			RecipientEmail:  ev.Metadata["recipient_email"],
			Tier:            ev.Metadata["tier"],
			DurationMonths:  months,
			PersonalMessage: ev.Metadata["personal_message"],
			GiverName:       ev.Metadata["giver_name"],
			GiverEmail:      ev.Metadata["giver_email"],
		},
		PaymentReference: ev.SessionID,
	}
	if in.Request.GiverEmail == "" {
		in.Request.GiverEmail = ev.CustomerEmail
	}
	if raw := ev.Metadata["giver_user_id"]; raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			in.GiverUserID = &id
		}
	}

	_, err = s.gifts.Create(ctx, in)
	return err
}

// subscriptionStatus 把支付方状态映射为本地状态
func subscriptionStatus(status string) string {
	switch status {
	case "active", "trialing":
		return model.SubscriptionActive
	case "past_due", "unpaid", "incomplete":
		return model.SubscriptionPastDue
	case "canceled", "incomplete_expired":
		return model.SubscriptionCanceled
	}
	return model.SubscriptionActive
}

func periodFromInterval(interval string) string {
	if interval == "year" {
		return model.PeriodYearly
	}
	return model.PeriodMonthly
}

func (s *PaymentService) onSubscriptionUpdated(ev *payment.Event) error {
	user, err := s.userForEvent(ev)
	if err != nil {
		return err
	}

	fields := map[string]interface{}{
		"subscription_status": subscriptionStatus(ev.Status),
	}
	if ev.Interval != "" {
		fields["subscription_period"] = periodFromInterval(ev.Interval)
	}
	if ev.CurrentPeriodEnd != nil {
		fields["subscription_expires_at"] = *ev.CurrentPeriodEnd
	}
	if tier := ev.Metadata["tier"]; model.ValidTier(tier) && tier != model.TierFree {
		fields["subscription_tier"] = tier
	} else if tier := s.tierForPrice(ev.PriceID); tier != "" {
		fields["subscription_tier"] = tier
	}
	if ev.SubscriptionID != "" {
		fields["stripe_subscription_id"] = ev.SubscriptionID
	}
	return s.userRepo.UpdateFields(user.ID, fields)
}

// tierForPrice 根据价格 ID 反查套餐
func (s *PaymentService) tierForPrice(priceID string) string {
	if priceID == "" {
		return ""
	}
	for key, id := range s.cfg.Stripe.Prices {
		if id != priceID || strings.HasPrefix(key, "gift_") {
			continue
		}
		if tier, _, ok := strings.Cut(key, "_"); ok && model.ValidTier(tier) {
			return tier
		}
	}
	return ""
}

func (s *PaymentService) onSubscriptionDeleted(ev *payment.Event) error {
	user, err := s.userForEvent(ev)
	if err != nil {
		return err
	}
	if err := s.userRepo.UpdateFields(user.ID, map[string]interface{}{
		"subscription_tier":       model.TierFree,
		"subscription_status":     model.SubscriptionCanceled,
		"subscription_period":     "",
		"subscription_expires_at": nil,
		"stripe_subscription_id":  nil,
	}); err != nil {
		return err
	}
	return s.subRepo.CloseActive(user.ID, model.SourceStripe, model.SubscriptionCanceled)
}

func (s *PaymentService) onInvoicePaid(ctx context.Context, ev *payment.Event) error {
	if _, err := s.receipts.IssueForInvoice(ctx, ev); err != nil {
		return err
	}

	// 补缴成功后恢复状态
	if ev.CustomerID == "" {
		return nil
	}
	user, err := s.userRepo.GetByStripeCustomerID(ev.CustomerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if user.SubscriptionStatus == model.SubscriptionPastDue {
		return s.userRepo.UpdateFields(user.ID, map[string]interface{}{"subscription_status": model.SubscriptionActive})
	}
	return nil
}

func (s *PaymentService) onInvoiceFailed(ctx context.Context, ev *payment.Event) error {
	user, err := s.userForEvent(ev)
	if err != nil {
		return err
	}
	if err := s.userRepo.UpdateFields(user.ID, map[string]interface{}{"subscription_status": model.SubscriptionPastDue}); err != nil {
		return err
	}

	portalURL := ""
	if user.StripeCustomerID != nil {
		if url, err := s.provider.CreatePortalSession(ctx, *user.StripeCustomerID, s.frontend("/account")); err == nil {
			portalURL = url
		}
	}
	msg, err := email.PaymentFailedMessage(user.Email, user.Name, user.SubscriptionTier, portalURL)
	if err == nil {
		err = s.mailer.Send(ctx, msg)
	}
	if err != nil {
		s.log.Warn("failed to send payment failed email", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	return nil
}
