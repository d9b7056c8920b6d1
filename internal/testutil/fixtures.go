package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/qs3c/mirror_server/internal/model"
)

// TestPassword 测试用户的明文密码
const TestPassword = "password123"

var (
	seq          int64
	passwordHash = func() string {
		hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
		if err != nil {
			panic(err)
		}
		return string(hash)
	}()
)

func next() int64 {
	return atomic.AddInt64(&seq, 1)
}

// TestUser 创建测试用户，默认 free 套餐、当前月份、已验证邮箱
func TestUser(t *testing.T, db *gorm.DB, opts ...func(*model.User)) *model.User {
	t.Helper()

	hash := passwordHash
	n := next()
	user := &model.User{
		Email:              fmt.Sprintf("test_%d_%d@example.com", time.Now().UnixNano(), n),
		PasswordHash:       &hash,
		Name:               fmt.Sprintf("Tester %d", n),
		SubscriptionTier:   model.TierFree,
		SubscriptionStatus: model.SubscriptionActive,
		CurrentMonthYear:   model.MonthKey(time.Now()),
		EmailVerified:      true,
	}

	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return user
}

// WithEmail 设置邮箱
func WithEmail(email string) func(*model.User) {
	return func(u *model.User) {
		u.Email = email
	}
}

// WithName 设置名字
func WithName(name string) func(*model.User) {
	return func(u *model.User) {
		u.Name = name
	}
}

// WithTier 设置订阅套餐
func WithTier(tier string) func(*model.User) {
	return func(u *model.User) {
		u.SubscriptionTier = tier
	}
}

// WithMonthlyCount 设置本月已生成数量
func WithMonthlyCount(count int) func(*model.User) {
	return func(u *model.User) {
		u.ReflectionCountThisMonth = count
		if u.TotalReflections < count {
			u.TotalReflections = count
		}
	}
}

// WithMonth 设置月份标记
func WithMonth(month string) func(*model.User) {
	return func(u *model.User) {
		u.CurrentMonthYear = month
	}
}

// WithCreator 创作者账号
func WithCreator() func(*model.User) {
	return func(u *model.User) {
		u.IsCreator = true
	}
}

// WithAdmin 管理员账号
func WithAdmin() func(*model.User) {
	return func(u *model.User) {
		u.IsAdmin = true
	}
}

// WithoutPassword 仅 OAuth 登录的账号
func WithoutPassword() func(*model.User) {
	return func(u *model.User) {
		u.PasswordHash = nil
	}
}

// WithStripeCustomer 设置 Stripe customer
func WithStripeCustomer(customerID string) func(*model.User) {
	return func(u *model.User) {
		u.StripeCustomerID = &customerID
	}
}

// WithExpiry 设置订阅到期时间
func WithExpiry(at time.Time) func(*model.User) {
	return func(u *model.User) {
		u.SubscriptionExpiresAt = &at
	}
}

// TestDream 创建测试梦想
func TestDream(t *testing.T, db *gorm.DB, userID int64, opts ...func(*model.Dream)) *model.Dream {
	t.Helper()

	dream := &model.Dream{
		UserID:   userID,
		Title:    fmt.Sprintf("Test Dream %d", next()),
		Priority: 5,
		Status:   model.DreamActive,
	}

	for _, opt := range opts {
		opt(dream)
	}

	if err := db.Create(dream).Error; err != nil {
		t.Fatalf("Failed to create test dream: %v", err)
	}

	return dream
}

// WithDreamStatus 设置梦想状态
func WithDreamStatus(status string) func(*model.Dream) {
	return func(d *model.Dream) {
		d.Status = status
	}
}

// TestReflection 创建测试反思
func TestReflection(t *testing.T, db *gorm.DB, userID int64, opts ...func(*model.Reflection)) *model.Reflection {
	t.Helper()

	n := next()
	reflection := &model.Reflection{
		UserID:            userID,
		Dream:             fmt.Sprintf("dream %d", n),
		Plan:              fmt.Sprintf("plan %d", n),
		Relationship:      fmt.Sprintf("relationship %d", n),
		Offering:          fmt.Sprintf("offering %d", n),
		AIResponse:        "<p>reflection</p>",
		Tone:              model.ToneFusion,
		Title:             fmt.Sprintf("Reflection %d", n),
		Tags:              model.StringArray{},
		WordCount:         1,
		EstimatedReadTime: 1,
	}

	for _, opt := range opts {
		opt(reflection)
	}

	if err := db.Create(reflection).Error; err != nil {
		t.Fatalf("Failed to create test reflection: %v", err)
	}

	return reflection
}

// WithCreatedAt 设置创建时间
func WithCreatedAt(at time.Time) func(*model.Reflection) {
	return func(r *model.Reflection) {
		r.CreatedAt = at
		r.UpdatedAt = at
	}
}

// WithDream 关联梦想
func WithDream(dreamID int64) func(*model.Reflection) {
	return func(r *model.Reflection) {
		r.DreamID = &dreamID
	}
}

// WithTone 设置语气
func WithTone(tone string) func(*model.Reflection) {
	return func(r *model.Reflection) {
		r.Tone = tone
	}
}

// WithPremium 高级版反思
func WithPremium() func(*model.Reflection) {
	return func(r *model.Reflection) {
		r.IsPremium = true
	}
}

// TestReflections 按天递增创建 n 条反思
func TestReflections(t *testing.T, db *gorm.DB, userID int64, n int, start time.Time, opts ...func(*model.Reflection)) []*model.Reflection {
	t.Helper()

	out := make([]*model.Reflection, 0, n)
	for i := 0; i < n; i++ {
		all := append([]func(*model.Reflection){WithCreatedAt(start.AddDate(0, 0, i))}, opts...)
		out = append(out, TestReflection(t, db, userID, all...))
	}
	return out
}

// TestGift 创建未兑换的礼物码
func TestGift(t *testing.T, db *gorm.DB, opts ...func(*model.SubscriptionGift)) *model.SubscriptionGift {
	t.Helper()

	n := next()
	gift := &model.SubscriptionGift{
		Code:           fmt.Sprintf("GIFT-T%03d-%04d", n%1000, n%10000),
		GiverName:      "Giver",
		GiverEmail:     "giver@example.com",
		RecipientName:  "Recipient",
		RecipientEmail: "recipient@example.com",
		Tier:           model.TierEssential,
		DurationMonths: 3,
		ExpiresAt:      time.Now().AddDate(1, 0, 0),
	}

	for _, opt := range opts {
		opt(gift)
	}

	if err := db.Create(gift).Error; err != nil {
		t.Fatalf("Failed to create test gift: %v", err)
	}

	return gift
}

// WithGiftCode 指定礼物码
func WithGiftCode(code string) func(*model.SubscriptionGift) {
	return func(g *model.SubscriptionGift) {
		g.Code = code
	}
}

// WithGiftTier 指定套餐和时长
func WithGiftTier(tier string, months int) func(*model.SubscriptionGift) {
	return func(g *model.SubscriptionGift) {
		g.Tier = tier
		g.DurationMonths = months
	}
}

// WithGiftExpiresAt 指定过期时间
func WithGiftExpiresAt(at time.Time) func(*model.SubscriptionGift) {
	return func(g *model.SubscriptionGift) {
		g.ExpiresAt = at
	}
}

// WithRedeemed 标记为已兑换
func WithRedeemed(userID int64) func(*model.SubscriptionGift) {
	return func(g *model.SubscriptionGift) {
		now := time.Now()
		g.IsRedeemed = true
		g.RedeemedBy = &userID
		g.RedeemedAt = &now
	}
}
