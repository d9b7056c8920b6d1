package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/mirror_server/config"
	"github.com/qs3c/mirror_server/internal/model"
	"github.com/qs3c/mirror_server/internal/model/dto"
	"github.com/qs3c/mirror_server/internal/pkg/email"
	"github.com/qs3c/mirror_server/internal/pkg/metrics"
	"github.com/qs3c/mirror_server/internal/repository"
)

var (
	ErrGiftNotFound        = errors.New("礼物码不存在")
	ErrGiftAlreadyRedeemed = errors.New("礼物码已被兑换")
	ErrGiftExpired         = errors.New("礼物码已过期")
	ErrInvalidGiftTier     = errors.New("无效的礼物套餐")
)

// 去掉易混淆的 0/O、1/I
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	giftValidity     = 365 * 24 * time.Hour
	codeGenAttempts  = 5
	giftCodePrefix   = "GIFT-"
	giftMaxMonths    = 24
	giftEmailTimeout = 10 * time.Second
)

// randomCode 从 codeAlphabet 中取 n 个字符
func randomCode(n int) (string, error) {
	size := big.NewInt(int64(len(codeAlphabet)))
	b := make([]byte, n)
	for i := range b {
		v, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[v.Int64()]
	}
	return string(b), nil
}

// NewGiftCode 生成 GIFT-XXXX-XXXX
func NewGiftCode() (string, error) {
	a, err := randomCode(4)
	if err != nil {
		return "", err
	}
	b, err := randomCode(4)
	if err != nil {
		return "", err
	}
	return giftCodePrefix + a + "-" + b, nil
}

// NormalizeGiftCode 统一大小写和空白
func NormalizeGiftCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// GiftInput 创建礼物所需的数据，来自管理后台或支付回调
type GiftInput struct {
	Request          dto.CreateGiftRequest
	GiverUserID      *int64
	PaymentReference string
}

type GiftService struct {
	giftRepo *repository.GiftRepository
	userRepo *repository.UserRepository
	mailer   email.Mailer
	metrics  *metrics.Metrics
	cfg      *config.Config
	log      *zap.Logger
	now      func() time.Time
}

func NewGiftService(
	giftRepo *repository.GiftRepository,
	userRepo *repository.UserRepository,
	mailer email.Mailer,
	m *metrics.Metrics,
	cfg *config.Config,
	log *zap.Logger,
) *GiftService {
	return &GiftService{
		giftRepo: giftRepo,
		userRepo: userRepo,
		mailer:   mailer,
		metrics:  m,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// Create 生成礼物码并通知双方；同一支付引用只会创建一次
func (s *GiftService) Create(ctx context.Context, in *GiftInput) (*model.SubscriptionGift, error) {
	req := in.Request
	if req.Tier != model.TierEssential && req.Tier != model.TierPremium {
		return nil, ErrInvalidGiftTier
	}
	if req.DurationMonths < 1 || req.DurationMonths > giftMaxMonths {
		return nil, fmt.Errorf("%w: duration_months", ErrMissingField)
	}
	if strings.TrimSpace(req.RecipientEmail) == "" {
		return nil, fmt.Errorf("%w: recipient_email", ErrMissingField)
	}

	if in.PaymentReference != "" {
		existing, err := s.giftRepo.GetByPaymentReference(in.PaymentReference)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	code, err := s.uniqueCode()
	if err != nil {
		return nil, err
	}

	giverName := strings.TrimSpace(req.GiverName)
	giverEmail := normalizeEmail(req.GiverEmail)
	if in.GiverUserID != nil && (giverName == "" || giverEmail == "") {
		if giver, err := s.userRepo.GetByID(*in.GiverUserID); err == nil {
			if giverName == "" {
				giverName = giver.Name
			}
			if giverEmail == "" {
				giverEmail = giver.Email
			}
		}
	}
	if giverName == "" {
		giverName = "Someone who cares about you"
	}

	now := s.now()
	gift := &model.SubscriptionGift{
		Code:             code,
		GiverUserID:      in.GiverUserID,
		GiverName:        giverName,
		GiverEmail:       giverEmail,
		RecipientName:    strings.TrimSpace(req.RecipientName),
		RecipientEmail:   normalizeEmail(req.RecipientEmail),
		Tier:             req.Tier,
		DurationMonths:   req.DurationMonths,
		PersonalMessage:  strings.TrimSpace(req.PersonalMessage),
		PaymentReference: in.PaymentReference,
		ExpiresAt:        now.Add(giftValidity),
	}
	if err := s.giftRepo.Create(gift); err != nil {
		return nil, err
	}

	s.log.Info("gift created",
		zap.String("code", gift.Code),
		zap.String("tier", gift.Tier),
		zap.Int("months", gift.DurationMonths))

	s.notify(ctx, gift)
	return gift, nil
}

func (s *GiftService) uniqueCode() (string, error) {
	for i := 0; i < codeGenAttempts; i++ {
		code, err := NewGiftCode()
		if err != nil {
			return "", err
		}
		exists, err := s.giftRepo.ExistsByCode(code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", errors.New("failed to generate unique gift code")
}

// notify 邮件失败不影响礼物本身
func (s *GiftService) notify(ctx context.Context, gift *model.SubscriptionGift) {
	data := email.GiftData{
		Code:            gift.Code,
		GiverName:       gift.GiverName,
		RecipientName:   gift.RecipientName,
		RecipientEmail:  gift.RecipientEmail,
		Tier:            gift.Tier,
		DurationMonths:  gift.DurationMonths,
		PersonalMessage: gift.PersonalMessage,
		RedeemURL:       strings.TrimRight(s.cfg.Server.FrontendURL, "/") + "/gift/redeem?code=" + gift.Code,
		ExpiresAt:       gift.ExpiresAt.Format("January 2, 2006"),
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), giftEmailTimeout)
	defer cancel()

	s.send(ctx, "gift", func() (*email.Message, error) { return email.GiftMessage(gift.RecipientEmail, data) })
	if gift.GiverEmail != "" {
		s.send(ctx, "gift_purchased", func() (*email.Message, error) { return email.GiftPurchasedMessage(gift.GiverEmail, data) })
	}
}

func (s *GiftService) send(ctx context.Context, template string, build func() (*email.Message, error)) {
	outcome := "success"
	msg, err := build()
	if err == nil {
		err = s.mailer.Send(ctx, msg)
	}
	if err != nil {
		outcome = "error"
		s.log.Warn("failed to send email", zap.String("template", template), zap.Error(err))
	}
	s.metrics.EmailsQueued.WithLabelValues(template, outcome).Inc()
}

// Get 兑换前查看礼物信息，不暴露收件邮箱
func (s *GiftService) Get(code string) (*dto.GiftInfo, error) {
	gift, err := s.giftRepo.GetByCode(NormalizeGiftCode(code))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGiftNotFound
		}
		return nil, err
	}
	info := buildGiftInfo(gift)
	info.RecipientEmail = ""
	return info, nil
}

// ListSent 用户送出的礼物
func (s *GiftService) ListSent(userID int64) ([]*dto.GiftInfo, error) {
	gifts, err := s.giftRepo.ListByGiver(userID)
	if err != nil {
		return nil, err
	}
	items := make([]*dto.GiftInfo, len(gifts))
	for i, g := range gifts {
		items[i] = buildGiftInfo(g)
	}
	return items, nil
}

// Redeem 兑换礼物码，套餐时长从 max(现在, 当前到期时间) 起累加
func (s *GiftService) Redeem(ctx context.Context, userID int64, code string) (*dto.RedeemGiftResponse, error) {
	code = NormalizeGiftCode(code)
	gift, err := s.giftRepo.GetByCode(code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGiftNotFound
		}
		return nil, err
	}
	if _, err := loadUser(s.userRepo, userID); err != nil {
		return nil, err
	}

	now := s.now()
	if gift.IsRedeemed {
		return nil, ErrGiftAlreadyRedeemed
	}
	if !gift.ExpiresAt.After(now) {
		return nil, ErrGiftExpired
	}

	var expiresAt time.Time
	ok, err := s.giftRepo.Redeem(code, userID, now, func(user *model.User) (map[string]interface{}, *model.Subscription) {
		base := now
		if user.SubscriptionExpiresAt != nil && user.SubscriptionExpiresAt.After(now) {
			base = *user.SubscriptionExpiresAt
		}
		expiresAt = base.AddDate(0, gift.DurationMonths, 0)

		fields := map[string]interface{}{
			"subscription_tier":       gift.Tier,
			"subscription_status":     model.SubscriptionActive,
			"subscription_expires_at": expiresAt,
		}
		sub := &model.Subscription{
			UserID:    userID,
			Tier:      gift.Tier,
			Source:    model.SourceGift,
			Reference: gift.Code,
			StartedAt: now,
			ExpiresAt: &expiresAt,
			Status:    model.SubscriptionActive,
		}
		return fields, sub
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		// 并发兑换时被别人抢先，或恰好过期
		latest, err := s.giftRepo.GetByCode(code)
		if err == nil && !latest.IsRedeemed {
			return nil, ErrGiftExpired
		}
		return nil, ErrGiftAlreadyRedeemed
	}

	s.metrics.GiftRedemptions.Inc()
	s.log.Info("gift redeemed",
		zap.String("code", code),
		zap.Int64("user_id", userID),
		zap.String("tier", gift.Tier),
		zap.Time("expires_at", expiresAt))

	user, err := loadUser(s.userRepo, userID)
	if err != nil {
		return nil, err
	}
	return &dto.RedeemGiftResponse{
		Tier:      gift.Tier,
		ExpiresAt: expiresAt.Format(time.RFC3339),
		User:      buildUserInfo(user, nil),
	}, nil
}

func buildGiftInfo(g *model.SubscriptionGift) *dto.GiftInfo {
	return &dto.GiftInfo{
		Code:            g.Code,
		GiverName:       g.GiverName,
		RecipientName:   g.RecipientName,
		RecipientEmail:  g.RecipientEmail,
		Tier:            g.Tier,
		DurationMonths:  g.DurationMonths,
		PersonalMessage: g.PersonalMessage,
		IsRedeemed:      g.IsRedeemed,
		RedeemedAt:      formatTimePtr(g.RedeemedAt),
		ExpiresAt:       formatTime(g.ExpiresAt),
		CreatedAt:       formatTime(g.CreatedAt),
	}
}
