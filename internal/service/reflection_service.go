package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

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
	"github.com/qs3c/mirror_server/internal/repository"
)

var (
	ErrMissingField       = errors.New("缺少必填内容")
	ErrReflectionNotFound = errors.New("反思不存在")
)

const (
	defaultMaxTokens        = 4000
	defaultPremiumMaxTokens = 6000
	defaultThinkingBudget   = 5000
	titleLength             = 60
	excerptLength           = 160
)

type ReflectionService struct {
	reflectionRepo *repository.ReflectionRepository
	dreamRepo      *repository.DreamRepository
	userRepo       *repository.UserRepository
	quota          *QuotaService
	llm            llm.Client
	progress       progress
	metrics        *metrics.Metrics
	cfg            *config.Config
	log            *zap.Logger
}

func NewReflectionService(
	reflectionRepo *repository.ReflectionRepository,
	dreamRepo *repository.DreamRepository,
	userRepo *repository.UserRepository,
	quota *QuotaService,
	llmClient llm.Client,
	publisher ProgressPublisher,
	m *metrics.Metrics,
	cfg *config.Config,
	log *zap.Logger,
) *ReflectionService {
	return &ReflectionService{
		reflectionRepo: reflectionRepo,
		dreamRepo:      dreamRepo,
		userRepo:       userRepo,
		quota:          quota,
		llm:            llmClient,
		progress:       progress{pub: publisher, log: log},
		metrics:        m,
		cfg:            cfg,
		log:            log,
	}
}

// generationLimits 按是否高级版返回 max tokens 和 thinking 预算
func generationLimits(cfg config.LLMConfig, premium bool) (int, int) {
	if !premium {
		if cfg.MaxTokens > 0 {
			return cfg.MaxTokens, 0
		}
		return defaultMaxTokens, 0
	}

	maxTokens := cfg.PremiumMaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultPremiumMaxTokens
	}
	budget := cfg.ThinkingBudget
	if budget <= 0 {
		budget = defaultThinkingBudget
	}
	return maxTokens, budget
}

// canUsePremium 高级版需要 premium 套餐，创作者和管理员不限
func canUsePremium(user *model.User) bool {
	return user.Unlimited() || user.SubscriptionTier == model.TierPremium
}

// Create 生成一条反思：校验、占用额度、调用模型、格式化并保存
func (s *ReflectionService) Create(ctx context.Context, userID int64, req *dto.CreateReflectionRequest) (*dto.CreateReflectionResponse, error) {
	user, err := loadUser(s.userRepo, userID)
	if err != nil {
		return nil, err
	}

	answers := prompt.Answers{
		Dream:        strings.TrimSpace(req.Dream),
		Plan:         strings.TrimSpace(req.Plan),
		Relationship: strings.TrimSpace(req.Relationship),
		Offering:     strings.TrimSpace(req.Offering),
	}
	fields := []struct{ name, value string }{
		{"dream", answers.Dream},
		{"plan", answers.Plan},
		{"relationship", answers.Relationship},
		{"offering", answers.Offering},
	}
	for _, f := range fields {
		if f.value == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingField, f.name)
		}
	}

	if req.DreamID != nil {
		if _, err := ownedDream(s.dreamRepo, userID, *req.DreamID); err != nil {
			return nil, err
		}
	}

	tone := prompt.NormalizeTone(req.Tone)
	premium := req.IsPremium && canUsePremium(user)

	month, err := s.quota.Reserve(user)
	if err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			s.metrics.QuotaRejections.Inc()
		}
		return nil, err
	}

	s.progress.send(ctx, userID, pubsub.KindReflection, pubsub.StepComposing, 0, "")

	maxTokens, budget := generationLimits(s.cfg.LLM, premium)
	llmReq := &llm.Request{
		System:         prompt.System(prompt.Options{Tone: tone, Premium: premium, Creator: user.IsCreator}),
		Prompt:         prompt.User(user.Name, answers),
		MaxTokens:      maxTokens,
		ThinkingBudget: budget,
	}

	s.progress.send(ctx, userID, pubsub.KindReflection, pubsub.StepGenerating, 0, "")

	resp, err := s.llm.Generate(ctx, llmReq)
	if err != nil {
		s.metrics.ObserveLLM(pubsub.KindReflection, llm.Outcome(err), 0, 0)
		s.refund(userID, month)
		s.progress.send(ctx, userID, pubsub.KindReflection, pubsub.StepFailed, 0, llm.Outcome(err))
		s.log.Warn("reflection generation failed",
			zap.Int64("user_id", userID),
			zap.String("outcome", llm.Outcome(err)),
			zap.Error(err))
		return nil, fmt.Errorf("generate reflection: %w", err)
	}
	s.metrics.ObserveLLM(pubsub.KindReflection, llm.Outcome(nil), resp.InputTokens, resp.OutputTokens)

	s.progress.send(ctx, userID, pubsub.KindReflection, pubsub.StepFormatting, 0, "")

	words := formatter.WordCount(resp.Text)
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = excerpt(answers.Dream, titleLength)
	}

	reflection := &model.Reflection{
		UserID:            userID,
		DreamID:           req.DreamID,
		Dream:             answers.Dream,
		Plan:              answers.Plan,
		Relationship:      answers.Relationship,
		Offering:          answers.Offering,
		AIResponse:        formatter.ToHTML(resp.Text),
		Tone:              tone,
		IsPremium:         premium,
		Title:             title,
		Tags:              model.StringArray{},
		WordCount:         words,
		EstimatedReadTime: formatter.ReadTime(words),
		InputTokens:       resp.InputTokens,
		OutputTokens:      resp.OutputTokens,
		ModelName:         resp.Model,
	}
	if err := s.reflectionRepo.Create(reflection); err != nil {
		s.refund(userID, month)
		s.progress.send(ctx, userID, pubsub.KindReflection, pubsub.StepFailed, 0, "save failed")
		return nil, err
	}

	if reflection.DreamID != nil {
		if err := s.dreamRepo.AdjustReflectionCount(*reflection.DreamID, 1); err != nil {
			s.log.Warn("failed to update dream reflection count", zap.Int64("dream_id", *reflection.DreamID), zap.Error(err))
		}
	}
	s.quota.RecordUsage(userID, month, repository.UsageDelta{
		Reflections:  1,
		InputTokens:  int64(resp.InputTokens),
		OutputTokens: int64(resp.OutputTokens),
	})
	s.metrics.ObserveReflection(tone, premium)
	s.progress.send(ctx, userID, pubsub.KindReflection, pubsub.StepDone, reflection.ID, "")

	s.log.Info("reflection created",
		zap.Int64("user_id", userID),
		zap.Int64("reflection_id", reflection.ID),
		zap.String("tone", tone),
		zap.Bool("premium", premium),
		zap.Int("output_tokens", resp.OutputTokens))

	usage, err := s.quota.GetQuotaInfo(userID)
	if err != nil {
		return nil, err
	}
	return &dto.CreateReflectionResponse{
		Reflection: buildReflectionDetail(reflection),
		Usage:      usage,
	}, nil
}

func (s *ReflectionService) refund(userID int64, month string) {
	if err := s.quota.Refund(userID, month); err != nil {
		s.log.Error("failed to refund reflection quota", zap.Int64("user_id", userID), zap.String("month", month), zap.Error(err))
	}
}

// List 分页列出反思
func (s *ReflectionService) List(userID int64, q *dto.ReflectionListQuery) ([]*dto.ReflectionListItem, int64, int, int, error) {
	page, pageSize := normalizePage(q.Page, q.PageSize)
	filter := repository.ReflectionFilter{
		DreamID:   q.DreamID,
		IsPremium: q.IsPremium,
		Search:    strings.TrimSpace(q.Search),
	}
	if q.Tone != "" {
		filter.Tone = prompt.NormalizeTone(q.Tone)
	}

	reflections, total, err := s.reflectionRepo.List(userID, filter, page, pageSize)
	if err != nil {
		return nil, 0, 0, 0, err
	}

	items := make([]*dto.ReflectionListItem, len(reflections))
	for i, r := range reflections {
		items[i] = &dto.ReflectionListItem{
			ID:                r.ID,
			DreamID:           r.DreamID,
			Title:             r.Title,
			Excerpt:           excerpt(formatter.StripTags(r.AIResponse), excerptLength),
			Tone:              r.Tone,
			IsPremium:         r.IsPremium,
			Tags:              tagsOf(r),
			WordCount:         r.WordCount,
			EstimatedReadTime: r.EstimatedReadTime,
			ViewCount:         r.ViewCount,
			Rating:            r.Rating,
			CreatedAt:         formatTime(r.CreatedAt),
		}
	}
	return items, total, page, pageSize, nil
}

// Get 获取详情并增加浏览次数
func (s *ReflectionService) Get(userID, id int64) (*dto.ReflectionDetail, error) {
	reflection, err := s.owned(userID, id)
	if err != nil {
		return nil, err
	}

	if err := s.reflectionRepo.IncrementViewCount(id); err != nil {
		s.log.Warn("failed to increment view count", zap.Int64("reflection_id", id), zap.Error(err))
	} else {
		reflection.ViewCount++
	}
	return buildReflectionDetail(reflection), nil
}

// Update 只允许修改标题和标签
func (s *ReflectionService) Update(userID, id int64, req *dto.UpdateReflectionRequest) (*dto.ReflectionDetail, error) {
	reflection, err := s.owned(userID, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title", ErrMissingField)
		}
		fields["title"] = title
		reflection.Title = title
	}
	if req.Tags != nil {
		tags := normalizeTags(req.Tags)
		fields["tags"] = tags
		reflection.Tags = tags
	}

	if len(fields) > 0 {
		if err := s.reflectionRepo.UpdateFields(id, fields); err != nil {
			return nil, err
		}
	}
	return buildReflectionDetail(reflection), nil
}

// Rate 评分 1-10，可附带反馈
func (s *ReflectionService) Rate(userID, id int64, req *dto.RateReflectionRequest) (*dto.ReflectionDetail, error) {
	reflection, err := s.owned(userID, id)
	if err != nil {
		return nil, err
	}
	if req.Rating < 1 || req.Rating > 10 {
		return nil, fmt.Errorf("%w: rating", ErrMissingField)
	}

	rating := req.Rating
	fields := map[string]interface{}{"rating": rating}
	reflection.Rating = &rating
	if req.Feedback != nil {
		feedback := strings.TrimSpace(*req.Feedback)
		fields["user_feedback"] = feedback
		reflection.UserFeedback = &feedback
	}

	if err := s.reflectionRepo.UpdateFields(id, fields); err != nil {
		return nil, err
	}
	return buildReflectionDetail(reflection), nil
}

// Delete 删除反思并回退计数
func (s *ReflectionService) Delete(userID, id int64) error {
	reflection, err := s.owned(userID, id)
	if err != nil {
		return err
	}
	if err := s.reflectionRepo.Delete(id); err != nil {
		return err
	}

	if err := s.userRepo.ReleaseReflection(userID, model.MonthKey(reflection.CreatedAt)); err != nil {
		s.log.Warn("failed to release reflection count", zap.Int64("user_id", userID), zap.Error(err))
	}
	if reflection.DreamID != nil {
		if err := s.dreamRepo.AdjustReflectionCount(*reflection.DreamID, -1); err != nil {
			s.log.Warn("failed to update dream reflection count", zap.Int64("dream_id", *reflection.DreamID), zap.Error(err))
		}
	}
	return nil
}

func (s *ReflectionService) owned(userID, id int64) (*model.Reflection, error) {
	reflection, err := s.reflectionRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReflectionNotFound
		}
		return nil, err
	}
	if reflection.UserID != userID {
		return nil, ErrReflectionNotFound
	}
	return reflection, nil
}

// normalizeTags 去空白、去重，保留原有顺序
func normalizeTags(tags []string) model.StringArray {
	seen := make(map[string]bool, len(tags))
	out := model.StringArray{}
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

func tagsOf(r *model.Reflection) []string {
	if r.Tags == nil {
		return []string{}
	}
	return r.Tags
}

func buildReflectionDetail(r *model.Reflection) *dto.ReflectionDetail {
	return &dto.ReflectionDetail{
		ID:                r.ID,
		DreamID:           r.DreamID,
		Title:             r.Title,
		Dream:             r.Dream,
		Plan:              r.Plan,
		Relationship:      r.Relationship,
		Offering:          r.Offering,
		AIResponse:        r.AIResponse,
		Tone:              r.Tone,
		IsPremium:         r.IsPremium,
		Tags:              tagsOf(r),
		WordCount:         r.WordCount,
		EstimatedReadTime: r.EstimatedReadTime,
		ViewCount:         r.ViewCount,
		Rating:            r.Rating,
		UserFeedback:      r.UserFeedback,
		CreatedAt:         formatTime(r.CreatedAt),
		UpdatedAt:         formatTime(r.UpdatedAt),
	}
}
