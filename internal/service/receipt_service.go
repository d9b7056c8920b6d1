package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/mirror_server/config"
	"github.com/qs3c/mirror_server/internal/model"
	"github.com/qs3c/mirror_server/internal/model/dto"
	"github.com/qs3c/mirror_server/internal/pkg/email"
	"github.com/qs3c/mirror_server/internal/pkg/payment"
	"github.com/qs3c/mirror_server/internal/repository"
)

var (
	ErrReceiptNotFound = errors.New("收据不存在")
	ErrMissingInvoice  = errors.New("缺少发票信息")
)

const (
	receiptPrefix     = "MOT-"
	archiveURLExpire  = 15 * time.Minute
	receiptDateFormat = "January 2, 2006"
)

// ReceiptArchive 收据归档存储
type ReceiptArchive interface {
	PutReceipt(receiptNumber string, issuedAt time.Time, html []byte) (string, error)
	SignedURL(objectKey string, expire time.Duration) (string, error)
}

type ReceiptService struct {
	receiptRepo *repository.ReceiptRepository
	userRepo    *repository.UserRepository
	archive     ReceiptArchive
	mailer      email.Mailer
	cfg         *config.Config
	log         *zap.Logger
	now         func() time.Time
}

// NewReceiptService archive 为 nil 时不归档
func NewReceiptService(
	receiptRepo *repository.ReceiptRepository,
	userRepo *repository.UserRepository,
	archive ReceiptArchive,
	mailer email.Mailer,
	cfg *config.Config,
	log *zap.Logger,
) *ReceiptService {
	return &ReceiptService{
		receiptRepo: receiptRepo,
		userRepo:    userRepo,
		archive:     archive,
		mailer:      mailer,
		cfg:         cfg,
		log:         log,
		now:         time.Now,
	}
}

// NewReceiptNumber 生成 MOT-YYYYMMDD-XXXXXX
func NewReceiptNumber(issuedAt time.Time) (string, error) {
	suffix, err := randomCode(6)
	if err != nil {
		return "", err
	}
	return receiptPrefix + issuedAt.UTC().Format("20060102") + "-" + suffix, nil
}

// FormatAmount 金额展示，美元带符号，其他币种附代码
func FormatAmount(cents int64, currency string) string {
	currency = strings.ToUpper(currency)
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	value := fmt.Sprintf("%d.%02d", cents/100, cents%100)
	switch currency {
	case "", "USD":
		return sign + "$" + value
	case "EUR":
		return sign + "€" + value
	case "GBP":
		return sign + "£" + value
	}
	return sign + value + " " + currency
}

// IssueForInvoice 支付成功后出具收据，同一张发票只出具一次
func (s *ReceiptService) IssueForInvoice(ctx context.Context, ev *payment.Event) (*model.Receipt, error) {
	if ev.InvoiceID == "" {
		return nil, ErrMissingInvoice
	}

	existing, err := s.receiptRepo.GetByInvoiceID(ev.InvoiceID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var user *model.User
	if ev.CustomerID != "" {
		user, err = s.userRepo.GetByStripeCustomerID(ev.CustomerID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	issuedAt := s.now()
	number, err := s.uniqueNumber(issuedAt)
	if err != nil {
		return nil, err
	}

	invoiceID := ev.InvoiceID
	receipt := &model.Receipt{
		ReceiptNumber:   number,
		CustomerName:    ev.CustomerName,
		CustomerEmail:   normalizeEmail(ev.CustomerEmail),
		AmountCents:     ev.AmountCents,
		Currency:        strings.ToUpper(ev.Currency),
		PaymentMethod:   ev.PaymentMethod,
		Description:     ev.Description,
		StripeInvoiceID: &invoiceID,
		IssuedAt:        issuedAt,
	}
	if user != nil {
		receipt.UserID = &user.ID
		receipt.Tier = user.SubscriptionTier
		receipt.BillingPeriod = user.SubscriptionPeriod
		if receipt.CustomerName == "" {
			receipt.CustomerName = user.Name
		}
		if receipt.CustomerEmail == "" {
			receipt.CustomerEmail = user.Email
		}
	}
	if receipt.PaymentMethod == "" {
		receipt.PaymentMethod = "card"
	}
	if receipt.Description == "" {
		receipt.Description = describe(receipt.Tier, receipt.BillingPeriod)
	}

	if err := s.receiptRepo.Create(receipt); err != nil {
		// 并发的重复 webhook
		if dup, getErr := s.receiptRepo.GetByInvoiceID(ev.InvoiceID); getErr == nil {
			return dup, nil
		}
		return nil, err
	}
	s.log.Info("receipt issued",
		zap.String("receipt_number", receipt.ReceiptNumber),
		zap.String("invoice_id", ev.InvoiceID),
		zap.Int64("amount_cents", receipt.AmountCents))

	s.archiveAndSend(ctx, receipt)
	return receipt, nil
}

func (s *ReceiptService) uniqueNumber(issuedAt time.Time) (string, error) {
	for i := 0; i < codeGenAttempts; i++ {
		number, err := NewReceiptNumber(issuedAt)
		if err != nil {
			return "", err
		}
		exists, err := s.receiptRepo.ExistsByNumber(number)
		if err != nil {
			return "", err
		}
		if !exists {
			return number, nil
		}
	}
	return "", errors.New("failed to generate unique receipt number")
}

func describe(tier, period string) string {
	if tier == "" || tier == model.TierFree {
		return "Mirror of Truth"
	}
	desc := "Mirror of Truth " + strings.ToUpper(tier[:1]) + tier[1:]
	if period != "" {
		desc += " (" + period + ")"
	}
	return desc
}

func receiptData(r *model.Receipt) email.ReceiptData {
	return email.ReceiptData{
		ReceiptNumber: r.ReceiptNumber,
		CustomerName:  r.CustomerName,
		IssuedAt:      r.IssuedAt.Format(receiptDateFormat),
		Description:   r.Description,
		PaymentMethod: r.PaymentMethod,
		Amount:        FormatAmount(r.AmountCents, r.Currency),
	}
}

// archiveAndSend 归档和邮件都不影响收据本身
func (s *ReceiptService) archiveAndSend(ctx context.Context, r *model.Receipt) {
	data := receiptData(r)

	if s.archive != nil {
		if err := s.archiveOne(r, data); err != nil {
			s.log.Warn("failed to archive receipt", zap.String("receipt_number", r.ReceiptNumber), zap.Error(err))
		}
	}

	if r.CustomerEmail == "" {
		return
	}
	msg, err := email.ReceiptMessage(r.CustomerEmail, data)
	if err == nil {
		err = s.mailer.Send(ctx, msg)
	}
	if err != nil {
		s.log.Warn("failed to send receipt", zap.String("receipt_number", r.ReceiptNumber), zap.Error(err))
	}
}

func (s *ReceiptService) archiveOne(r *model.Receipt, data email.ReceiptData) error {
	html, err := email.ReceiptHTML(data)
	if err != nil {
		return err
	}
	key, err := s.archive.PutReceipt(r.ReceiptNumber, r.IssuedAt, []byte(html))
	if err != nil {
		return err
	}
	r.ArchiveKey = key
	return s.receiptRepo.UpdateArchiveKey(r.ID, key)
}

// ArchivePending 补归档之前上传失败的收据，返回成功数量
func (s *ReceiptService) ArchivePending(ctx context.Context, limit int) (int, error) {
	if s.archive == nil {
		return 0, nil
	}
	receipts, err := s.receiptRepo.ListUnarchived(limit)
	if err != nil {
		return 0, err
	}

	archived := 0
	for _, r := range receipts {
		if err := ctx.Err(); err != nil {
			return archived, err
		}
		if err := s.archiveOne(r, receiptData(r)); err != nil {
			s.log.Warn("failed to re-archive receipt", zap.String("receipt_number", r.ReceiptNumber), zap.Error(err))
			continue
		}
		archived++
	}
	return archived, nil
}

// List 分页列出收据
func (s *ReceiptService) List(userID int64, page, pageSize int) ([]*dto.ReceiptInfo, int64, int, int, error) {
	page, pageSize = normalizePage(page, pageSize)
	receipts, total, err := s.receiptRepo.ListByUser(userID, page, pageSize)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	items := make([]*dto.ReceiptInfo, len(receipts))
	for i, r := range receipts {
		items[i] = buildReceiptInfo(r)
	}
	return items, total, page, pageSize, nil
}

// Get 收据详情，归档存在时附带临时下载地址
func (s *ReceiptService) Get(userID, id int64) (*dto.ReceiptInfo, error) {
	receipt, err := s.owned(userID, id)
	if err != nil {
		return nil, err
	}

	info := buildReceiptInfo(receipt)
	if s.archive != nil && receipt.ArchiveKey != "" {
		url, err := s.archive.SignedURL(receipt.ArchiveKey, archiveURLExpire)
		if err != nil {
			s.log.Warn("failed to sign receipt url", zap.String("receipt_number", receipt.ReceiptNumber), zap.Error(err))
		} else {
			info.ArchiveURL = url
		}
	}
	return info, nil
}

// HTML 渲染收据页面
func (s *ReceiptService) HTML(userID, id int64) (string, error) {
	receipt, err := s.owned(userID, id)
	if err != nil {
		return "", err
	}
	return email.ReceiptHTML(receiptData(receipt))
}

func (s *ReceiptService) owned(userID, id int64) (*model.Receipt, error) {
	receipt, err := s.receiptRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReceiptNotFound
		}
		return nil, err
	}
	if receipt.UserID == nil || *receipt.UserID != userID {
		return nil, ErrReceiptNotFound
	}
	return receipt, nil
}

func buildReceiptInfo(r *model.Receipt) *dto.ReceiptInfo {
	return &dto.ReceiptInfo{
		ID:            r.ID,
		ReceiptNumber: r.ReceiptNumber,
		CustomerName:  r.CustomerName,
		CustomerEmail: r.CustomerEmail,
		AmountCents:   r.AmountCents,
		Amount:        FormatAmount(r.AmountCents, r.Currency),
		Currency:      r.Currency,
		PaymentMethod: r.PaymentMethod,
		Description:   r.Description,
		Tier:          r.Tier,
		BillingPeriod: r.BillingPeriod,
		IssuedAt:      formatTime(r.IssuedAt),
	}
}
