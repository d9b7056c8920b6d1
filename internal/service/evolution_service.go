package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/mirror_server/config"
	"github.com/qs3c/mirror_server/internal/model"
	"github.com/qs3c/mirror_server/internal/model/dto"
	"github.com/qs3c/mirror_server/internal/pkg/formatter"
	"github.com/qs3c/mirror_server/internal/pkg/llm"
	"github.com/qs3c/mirror_server/internal/pkg/metrics"
	"github.com/qs3c/mirror_server/internal/pkg/prompt"
	"github.com/qs3c/mirror_server/internal/pkg/pubsub"
	"github.com/qs3c/mirror_server/internal/pkg/sampling"
	"github.com/qs3c/mirror_server/internal/repository"
)

var (
	ErrNotEligible       = errors.New("反思数量不足，暂不能生成进化报告")
	ErrEvolutionNotFound = errors.New("进化报告不存在")
)

// NotEligibleError 携带已有和所需的反思数量
type NotEligibleError struct {
	Tier string
	Have int
	Need int
}

func (e *NotEligibleError) Error() string {
	return fmt.Sprintf("evolution report needs %d reflections on %s, have %d", e.Need, e.Tier, e.Have)
}

func (e *NotEligibleError) Is(target error) bool {
	return target == ErrNotEligible
}

type EvolutionService struct {
	reflectionRepo *repository.ReflectionRepository
	evolutionRepo  *repository.EvolutionRepository
	dreamRepo      *repository.DreamRepository
	userRepo       *repository.UserRepository
	quota          *QuotaService
	llm            llm.Client
	strategy       sampling.Strategy
	progress       progress
	metrics        *metrics.Metrics
	cfg            *config.Config
	log            *zap.Logger
}

func NewEvolutionService(
	reflectionRepo *repository.ReflectionRepository,
	evolutionRepo *repository.EvolutionRepository,
	dreamRepo *repository.DreamRepository,
	userRepo *repository.UserRepository,
	quota *QuotaService,
	llmClient llm.Client,
	publisher ProgressPublisher,
	m *metrics.Metrics,
	cfg *config.Config,
	log *zap.Logger,
) *EvolutionService {
	strategy, err := sampling.ByName(cfg.Evolution.Strategy)
	if err != nil {
		log.Warn("unknown evolution strategy, using buckets", zap.String("strategy", cfg.Evolution.Strategy))
		strategy = sampling.Buckets{}
	}

	return &EvolutionService{
		reflectionRepo: reflectionRepo,
		evolutionRepo:  evolutionRepo,
		dreamRepo:      dreamRepo,
		userRepo:       userRepo,
		quota:          quota,
		llm:            llmClient,
		strategy:       strategy,
		progress:       progress{pub: publisher, log: log},
		metrics:        m,
		cfg:            cfg,
		log:            log,
	}
}

// Eligibility 检查是否达到套餐的生成门槛
func (s *EvolutionService) Eligibility(userID int64, dreamID *int64) (*dto.EligibilityInfo, error) {
	user, err := loadUser(s.userRepo, userID)
	if err != nil {
		return nil, err
	}
	return s.eligibility(user, dreamID)
}

func (s *EvolutionService) eligibility(user *model.User, dreamID *int64) (*dto.EligibilityInfo, error) {
	if dreamID != nil {
		if _, err := ownedDream(s.dreamRepo, user.ID, *dreamID); err != nil {
			return nil, err
		}
	}

	have, err := s.reflectionRepo.CountByUser(user.ID, dreamID)
	if err != nil {
		return nil, err
	}
	need := s.cfg.Tier(user.SubscriptionTier).EvolutionThreshold

	return &dto.EligibilityInfo{
		Eligible: int(have) >= need,
		Have:     int(have),
		Need:     need,
		Tier:     user.SubscriptionTier,
		DreamID:  dreamID,
	}, nil
}

// Create 抽样历史反思并生成一份新的进化报告
func (s *EvolutionService) Create(ctx context.Context, userID int64, dreamID *int64) (*dto.EvolutionDetail, error) {
	user, err := loadUser(s.userRepo, userID)
	if err != nil {
		return nil, err
	}

	info, err := s.eligibility(user, dreamID)
	if err != nil {
		return nil, err
	}
	if !info.Eligible {
		return nil, &NotEligibleError{Tier: info.Tier, Have: info.Have, Need: info.Need}
	}

	s.progress.send(ctx, userID, pubsub.KindEvolution, pubsub.StepComposing, 0, "")

	reflections, err := s.reflectionRepo.ListChronological(userID, dreamID)
	if err != nil {
		return nil, err
	}
	k := s.cfg.Tier(user.SubscriptionTier).EvolutionSampleSize
	sample := sampling.Select(reflections, k, s.strategy)
	if len(sample) == 0 {
		return nil, &NotEligibleError{Tier: info.Tier, Have: 0, Need: info.Need}
	}

	entries := make([]prompt.Entry, len(sample))
	ids := make([]int64, len(sample))
	for i, r := range sample {
		entries[i] = prompt.Entry{
			CreatedAt: r.CreatedAt,
			Answers: prompt.Answers{
				Dream:        r.Dream,
				Plan:         r.Plan,
				Relationship: r.Relationship,
				Offering:     r.Offering,
			},
		}
		ids[i] = r.ID
	}

	premium := canUsePremium(user)
	system, userPrompt := prompt.Evolution(user.Name, entries, premium)
	maxTokens, budget := generationLimits(s.cfg.LLM, premium)

	s.progress.send(ctx, userID, pubsub.KindEvolution, pubsub.StepGenerating, 0, "")

	resp, err := s.llm.Generate(ctx, &llm.Request{
		System:         system,
		Prompt:         userPrompt,
		MaxTokens:      maxTokens,
		ThinkingBudget: budget,
	})
	if err != nil {
		s.metrics.ObserveLLM(pubsub.KindEvolution, llm.Outcome(err), 0, 0)
		s.progress.send(ctx, userID, pubsub.KindEvolution, pubsub.StepFailed, 0, llm.Outcome(err))
		s.log.Warn("evolution generation failed", zap.Int64("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("generate evolution report: %w", err)
	}
	s.metrics.ObserveLLM(pubsub.KindEvolution, llm.Outcome(nil), resp.InputTokens, resp.OutputTokens)

	s.progress.send(ctx, userID, pubsub.KindEvolution, pubsub.StepFormatting, 0, "")

	report := &model.EvolutionReport{
		UserID:          userID,
		DreamID:         dreamID,
		Analysis:        resp.Text,
		AnalysisHTML:    formatter.ToHTML(resp.Text),
		ReflectionIDs:   ids,
		ReflectionCount: len(sample),
		PeriodStart:     sample[0].CreatedAt,
		PeriodEnd:       sample[len(sample)-1].CreatedAt,
		Strategy:        s.strategy.Name(),
		IsPremium:       premium,
		InputTokens:     resp.InputTokens,
		OutputTokens:    resp.OutputTokens,
	}
	if err := s.evolutionRepo.Create(report); err != nil {
		s.progress.send(ctx, userID, pubsub.KindEvolution, pubsub.StepFailed, 0, "save failed")
		return nil, err
	}

	s.quota.RecordUsage(userID, model.MonthKey(report.CreatedAt), repository.UsageDelta{
		EvolutionReports: 1,
		InputTokens:      int64(resp.InputTokens),
		OutputTokens:     int64(resp.OutputTokens),
	})
	s.metrics.EvolutionReports.Inc()
	s.progress.send(ctx, userID, pubsub.KindEvolution, pubsub.StepDone, report.ID, "")

	s.log.Info("evolution report created",
		zap.Int64("user_id", userID),
		zap.Int64("report_id", report.ID),
		zap.Int("sampled", len(sample)),
		zap.Int("available", len(reflections)),
		zap.String("strategy", report.Strategy))

	return buildEvolutionDetail(report), nil
}

// List 分页列出报告
func (s *EvolutionService) List(userID int64, dreamID *int64, page, pageSize int) ([]*dto.EvolutionListItem, int64, int, int, error) {
	page, pageSize = normalizePage(page, pageSize)
	reports, total, err := s.evolutionRepo.ListByUser(userID, dreamID, page, pageSize)
	if err != nil {
		return nil, 0, 0, 0, err
	}

	items := make([]*dto.EvolutionListItem, len(reports))
	for i, r := range reports {
		items[i] = buildEvolutionItem(r)
	}
	return items, total, page, pageSize, nil
}

// Get 获取报告详情
func (s *EvolutionService) Get(userID, id int64) (*dto.EvolutionDetail, error) {
	report, err := s.evolutionRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEvolutionNotFound
		}
		return nil, err
	}
	if report.UserID != userID {
		return nil, ErrEvolutionNotFound
	}
	return buildEvolutionDetail(report), nil
}

func buildEvolutionItem(r *model.EvolutionReport) *dto.EvolutionListItem {
	return &dto.EvolutionListItem{
		ID:              r.ID,
		DreamID:         r.DreamID,
		Excerpt:         excerpt(formatter.PlainText(r.Analysis), excerptLength),
		ReflectionCount: r.ReflectionCount,
		PeriodStart:     formatTime(r.PeriodStart),
		PeriodEnd:       formatTime(r.PeriodEnd),
		Strategy:        r.Strategy,
		IsPremium:       r.IsPremium,
		CreatedAt:       formatTime(r.CreatedAt),
	}
}

func buildEvolutionDetail(r *model.EvolutionReport) *dto.EvolutionDetail {
	ids := []int64(r.ReflectionIDs)
	if ids == nil {
		ids = []int64{}
	}
	return &dto.EvolutionDetail{
		EvolutionListItem: *buildEvolutionItem(r),
		Analysis:          r.Analysis,
		AnalysisHTML:      r.AnalysisHTML,
		ReflectionIDs:     ids,
	}
}
