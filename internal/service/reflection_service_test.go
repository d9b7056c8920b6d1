package service

import (
	"context"
	"errors"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/mirror_server/internal/model"
	"github.com/qs3c/mirror_server/internal/model/dto"
	"github.com/qs3c/mirror_server/internal/pkg/llm"
	"github.com/qs3c/mirror_server/internal/pkg/prompt"
	"github.com/qs3c/mirror_server/internal/pkg/pubsub"
	"github.com/qs3c/mirror_server/internal/testutil"
)

func reflectionRequest() *dto.CreateReflectionRequest {
	return &dto.CreateReflectionRequest{
		Dream:        "Open a small bakery by the sea",
		Plan:         "Save for two years and take night classes",
		Relationship: "It feels like something I am not allowed to want",
		Offering:     "My weekends and my fear of failing",
	}
}

func TestReflectionService_Create(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()
	ctx := context.Background()

	user := testutil.TestUser(t, env.db, testutil.WithName("Mira"))
	dream := testutil.TestDream(t, env.db, user.ID)

	req := reflectionRequest()
	req.Tone = "Gentle"
	req.DreamID = &dream.ID

	resp, err := env.reflections.Create(ctx, user.ID, req)
	require.NoError(t, err)

	r := resp.Reflection
	assert.Equal(t, prompt.ToneGentle, r.Tone)
	assert.False(t, r.IsPremium)
	assert.Equal(t, "Open a small bakery by the sea", r.Title)
	assert.Contains(t, r.AIResponse, "<p ")
	assert.Contains(t, r.AIResponse, "know</span>")
	assert.Equal(t, 9, r.WordCount)
	assert.Equal(t, 1, r.EstimatedReadTime)
	assert.Equal(t, []string{}, r.Tags)

	assert.Equal(t, 1, resp.Usage.Used)
	assert.Equal(t, 0, resp.Usage.Remaining)
	assert.False(t, resp.Usage.CanReflect)

	call := env.llm.Last()
	require.NotNil(t, call)
	assert.Equal(t, 4000, call.MaxTokens)
	assert.Zero(t, call.ThinkingBudget)
	assert.Contains(t, call.Prompt, "Mira")
	assert.Contains(t, call.Prompt, "bakery")

	assert.Equal(t, []string{
		pubsub.StepComposing,
		pubsub.StepGenerating,
		pubsub.StepFormatting,
		pubsub.StepDone,
	}, env.pub.Steps())

	stored, err := env.reflectionRepo.GetByID(r.ID)
	require.NoError(t, err)
	assert.Equal(t, 120, stored.InputTokens)
	assert.Equal(t, "test-model", stored.ModelName)

	d, _ := env.dreamRepo.GetByID(dream.ID)
	assert.Equal(t, 1, d.ReflectionCount)

	usage, err := env.usageRepo.Get(user.ID, model.MonthKey(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, 1, usage.ReflectionsCreated)
	assert.Equal(t, int64(80), usage.OutputTokens)

	assert.Equal(t, float64(1), promtest.ToFloat64(env.metrics.Reflections.WithLabelValues(prompt.ToneGentle, "false")))
}

func TestReflectionService_MissingFieldConsumesNothing(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	user := testutil.TestUser(t, env.db)

	fields := []struct {
		name  string
		clear func(*dto.CreateReflectionRequest)
	}{
		{"dream", func(r *dto.CreateReflectionRequest) { r.Dream = "" }},
		{"plan", func(r *dto.CreateReflectionRequest) { r.Plan = "   " }},
		{"relationship", func(r *dto.CreateReflectionRequest) { r.Relationship = "" }},
		{"offering", func(r *dto.CreateReflectionRequest) { r.Offering = "\n" }},
	}
	for _, f := range fields {
		t.Run(f.name, func(t *testing.T) {
			req := reflectionRequest()
			f.clear(req)
			_, err := env.reflections.Create(context.Background(), user.ID, req)
			assert.ErrorIs(t, err, ErrMissingField)
			assert.Contains(t, err.Error(), f.name)
		})
	}

	assert.Zero(t, env.llm.Calls())
	info, _ := env.quota.GetQuotaInfo(user.ID)
	assert.Equal(t, 0, info.Used)
}

func TestReflectionService_PremiumRequiresPremiumTier(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()
	ctx := context.Background()

	tests := []struct {
		name    string
		opts    []func(*model.User)
		premium bool
	}{
		{"free downgraded", nil, false},
		{"essential downgraded", []func(*model.User){testutil.WithTier(model.TierEssential)}, false},
		{"premium", []func(*model.User){testutil.WithTier(model.TierPremium)}, true},
		{"creator", []func(*model.User){testutil.WithCreator()}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := testutil.TestUser(t, env.db, tt.opts...)
			req := reflectionRequest()
			req.IsPremium = true

			resp, err := env.reflections.Create(ctx, user.ID, req)
			require.NoError(t, err)
			assert.Equal(t, tt.premium, resp.Reflection.IsPremium)

			call := env.llm.Last()
			if tt.premium {
				assert.Equal(t, 6000, call.MaxTokens)
				assert.Equal(t, 5000, call.ThinkingBudget)
			} else {
				assert.Equal(t, 4000, call.MaxTokens)
				assert.Zero(t, call.ThinkingBudget)
			}
		})
	}
}

func TestReflectionService_UnknownToneFallsBack(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	user := testutil.TestUser(t, env.db)
	req := reflectionRequest()
	req.Tone = "sarcastic"

	resp, err := env.reflections.Create(context.Background(), user.ID, req)
	require.NoError(t, err)
	assert.Equal(t, prompt.ToneFusion, resp.Reflection.Tone)
}

func TestReflectionService_GenerationFailureRefunds(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	user := testutil.TestUser(t, env.db)
	env.llm.err = &llm.APIError{Kind: llm.ErrTimeout, Message: "deadline"}

	_, err := env.reflections.Create(context.Background(), user.ID, reflectionRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrTimeout)

	info, err := env.quota.GetQuotaInfo(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, info.Used)
	assert.True(t, info.CanReflect)

	steps := env.pub.Steps()
	assert.Equal(t, pubsub.StepFailed, steps[len(steps)-1])
	assert.Equal(t, float64(1), promtest.ToFloat64(env.metrics.LLMRequests.WithLabelValues(pubsub.KindReflection, "timeout")))

	found, _ := env.userRepo.GetByID(user.ID)
	assert.Equal(t, 0, found.TotalReflections)

	// 恢复后可以正常生成
	env.llm.err = nil
	_, err = env.reflections.Create(context.Background(), user.ID, reflectionRequest())
	require.NoError(t, err)
}

func TestReflectionService_QuotaExceeded(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()
	ctx := context.Background()

	user := testutil.TestUser(t, env.db)

	_, err := env.reflections.Create(ctx, user.ID, reflectionRequest())
	require.NoError(t, err)

	_, err = env.reflections.Create(ctx, user.ID, reflectionRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	var qe *QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, 1, qe.Limit)

	assert.Equal(t, 1, env.llm.Calls())
	assert.Equal(t, float64(1), promtest.ToFloat64(env.metrics.QuotaRejections))
}

func TestReflectionService_ForeignDream(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	owner := testutil.TestUser(t, env.db)
	other := testutil.TestUser(t, env.db)
	dream := testutil.TestDream(t, env.db, owner.ID)

	req := reflectionRequest()
	req.DreamID = &dream.ID
	_, err := env.reflections.Create(context.Background(), other.ID, req)
	assert.ErrorIs(t, err, ErrDreamNotFound)
	assert.Zero(t, env.llm.Calls())
}

func TestReflectionService_List(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	user := testutil.TestUser(t, env.db)
	dream := testutil.TestDream(t, env.db, user.ID)
	start := time.Now().Add(-48 * time.Hour)
	testutil.TestReflections(t, env.db, user.ID, 5, start)
	testutil.TestReflections(t, env.db, user.ID, 3, start, testutil.WithDream(dream.ID), testutil.WithTone(prompt.ToneIntense))

	items, total, page, pageSize, err := env.reflections.List(user.ID, &dto.ReflectionListQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(8), total)
	assert.Equal(t, 1, page)
	assert.Equal(t, 20, pageSize)
	assert.Len(t, items, 8)

	items, total, _, _, err = env.reflections.List(user.ID, &dto.ReflectionListQuery{DreamID: &dream.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	for _, item := range items {
		assert.Equal(t, prompt.ToneIntense, item.Tone)
	}

	_, total, _, _, err = env.reflections.List(user.ID, &dto.ReflectionListQuery{Tone: "INTENSE"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	items, _, _, pageSize, err = env.reflections.List(user.ID, &dto.ReflectionListQuery{Page: 2, PageSize: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, pageSize)
	assert.Len(t, items, 3)
}

func TestReflectionService_GetUpdateRateDelete(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()
	ctx := context.Background()

	user := testutil.TestUser(t, env.db, testutil.WithTier(model.TierEssential))
	dream := testutil.TestDream(t, env.db, user.ID)
	req := reflectionRequest()
	req.DreamID = &dream.ID
	created, err := env.reflections.Create(ctx, user.ID, req)
	require.NoError(t, err)
	id := created.Reflection.ID

	detail, err := env.reflections.Get(user.ID, id)
	require.NoError(t, err)
	assert.Equal(t, 1, detail.ViewCount)

	stranger := testutil.TestUser(t, env.db)
	_, err = env.reflections.Get(stranger.ID, id)
	assert.ErrorIs(t, err, ErrReflectionNotFound)

	title := "  By the sea  "
	detail, err = env.reflections.Update(user.ID, id, &dto.UpdateReflectionRequest{
		Title: &title,
		Tags:  []string{"Bakery", " courage ", "bakery", ""},
	})
	require.NoError(t, err)
	assert.Equal(t, "By the sea", detail.Title)
	assert.Equal(t, []string{"bakery", "courage"}, detail.Tags)

	feedback := "It landed."
	detail, err = env.reflections.Rate(user.ID, id, &dto.RateReflectionRequest{Rating: 9, Feedback: &feedback})
	require.NoError(t, err)
	require.NotNil(t, detail.Rating)
	assert.Equal(t, 9, *detail.Rating)

	_, err = env.reflections.Rate(user.ID, id, &dto.RateReflectionRequest{Rating: 11})
	assert.Error(t, err)

	stored, _ := env.reflectionRepo.GetByID(id)
	assert.Equal(t, model.StringArray{"bakery", "courage"}, stored.Tags)
	assert.Equal(t, "It landed.", *stored.UserFeedback)

	require.NoError(t, env.reflections.Delete(user.ID, id))
	_, err = env.reflections.Get(user.ID, id)
	assert.ErrorIs(t, err, ErrReflectionNotFound)

	found, _ := env.userRepo.GetByID(user.ID)
	assert.Equal(t, 0, found.ReflectionCountThisMonth)
	assert.Equal(t, 0, found.TotalReflections)

	d, _ := env.dreamRepo.GetByID(dream.ID)
	assert.Equal(t, 0, d.ReflectionCount)
}

func TestGenerationLimits(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	maxTokens, budget := generationLimits(env.cfg.LLM, false)
	assert.Equal(t, 4000, maxTokens)
	assert.Zero(t, budget)

	maxTokens, budget = generationLimits(env.cfg.LLM, true)
	assert.Equal(t, 6000, maxTokens)
	assert.Equal(t, 5000, budget)

	empty := env.cfg.LLM
	empty.MaxTokens, empty.PremiumMaxTokens, empty.ThinkingBudget = 0, 0, 0
	maxTokens, budget = generationLimits(empty, true)
	assert.Equal(t, defaultPremiumMaxTokens, maxTokens)
	assert.Equal(t, defaultThinkingBudget, budget)
}
