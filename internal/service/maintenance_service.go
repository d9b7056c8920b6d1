package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/mirror_server/config"
	"github.com/qs3c/mirror_server/internal/model"
	"github.com/qs3c/mirror_server/internal/repository"
)

// MaintenanceReport 一次维护的结果，DryRun 时只统计不修改
type MaintenanceReport struct {
	DryRun               bool   `json:"dry_run"`
	ExpiredSubscriptions int64  `json:"expired_subscriptions"`
	ExpiredLedgerRows    int64  `json:"expired_ledger_rows"`
	StaleGifts           int64  `json:"stale_gifts"`
	PrunedUsageRows      int64  `json:"pruned_usage_rows"`
	UsageCutoff          string `json:"usage_cutoff,omitempty"`
}

type MaintenanceService struct {
	userRepo  *repository.UserRepository
	subRepo   *repository.SubscriptionRepository
	giftRepo  *repository.GiftRepository
	usageRepo *repository.UsageRepository
	cfg       *config.Config
	log       *zap.Logger
	now       func() time.Time
}

func NewMaintenanceService(
	userRepo *repository.UserRepository,
	subRepo *repository.SubscriptionRepository,
	giftRepo *repository.GiftRepository,
	usageRepo *repository.UsageRepository,
	cfg *config.Config,
	log *zap.Logger,
) *MaintenanceService {
	return &MaintenanceService{
		userRepo:  userRepo,
		subRepo:   subRepo,
		giftRepo:  giftRepo,
		usageRepo: usageRepo,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// UsageCutoff 早于该月份的用量记录会被清理，retention <= 0 表示不清理
func UsageCutoff(now time.Time, retentionMonths int) string {
	if retentionMonths <= 0 {
		return ""
	}
	now = now.UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return model.MonthKey(first.AddDate(0, -retentionMonths, 0))
}

// Run 降级到期的赠送订阅、统计过期礼物码、清理旧用量
func (s *MaintenanceService) Run(ctx context.Context, dryRun bool, retentionMonths int) (*MaintenanceReport, error) {
	now := s.now()
	report := &MaintenanceReport{DryRun: dryRun}

	var err error
	if dryRun {
		report.ExpiredSubscriptions, err = s.userRepo.CountExpiredSubscriptions(now)
	} else {
		report.ExpiredSubscriptions, err = s.userRepo.ExpireSubscriptions(now)
	}
	if err != nil {
		return nil, err
	}

	if !dryRun {
		if report.ExpiredLedgerRows, err = s.subRepo.ExpireBefore(now); err != nil {
			return nil, err
		}
	}

	// 过期礼物码保留用于客服查询
	if report.StaleGifts, err = s.giftRepo.CountExpiredUnredeemed(now); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report.UsageCutoff = UsageCutoff(now, retentionMonths)
	if report.UsageCutoff != "" {
		if dryRun {
			report.PrunedUsageRows, err = s.usageRepo.CountBefore(report.UsageCutoff)
		} else {
			report.PrunedUsageRows, err = s.usageRepo.DeleteBefore(report.UsageCutoff)
		}
		if err != nil {
			return nil, err
		}
	}

	s.log.Info("maintenance finished",
		zap.Bool("dry_run", dryRun),
		zap.Int64("expired_subscriptions", report.ExpiredSubscriptions),
		zap.Int64("expired_ledger_rows", report.ExpiredLedgerRows),
		zap.Int64("stale_gifts", report.StaleGifts),
		zap.Int64("pruned_usage_rows", report.PrunedUsageRows))
	return report, nil
}

// RunScheduled 定时任务入口，使用配置中的保留期
func (s *MaintenanceService) RunScheduled(ctx context.Context) error {
	_, err := s.Run(ctx, false, s.cfg.Maintenance.UsageRetentionMonths)
	return err
}
