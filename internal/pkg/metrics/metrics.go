package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 服务指标，每个实例持有独立的 registry
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	LLMRequests *prometheus.CounterVec
	LLMTokens   *prometheus.CounterVec

	Reflections      *prometheus.CounterVec
	EvolutionReports prometheus.Counter
	QuotaRejections  prometheus.Counter
	GiftRedemptions  prometheus.Counter
	WebhookEvents    *prometheus.CounterVec
	EmailsQueued     *prometheus.CounterVec
}

// New 创建并注册指标
//
// 指标均以 mirror_ 为前缀:
//   - mirror_http_requests_total{method,route,status}
//   - mirror_http_request_duration_seconds{method,route}
//   - mirror_llm_requests_total{kind,outcome}
//   - mirror_llm_tokens_total{direction}
//   - mirror_reflections_total{tone,premium}
//   - mirror_evolution_reports_total
//   - mirror_quota_rejections_total
//   - mirror_gift_redemptions_total
//   - mirror_webhook_events_total{type,outcome}
//   - mirror_emails_total{template,outcome}
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mirror_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mirror_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"method", "route"}),
		LLMRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mirror_llm_requests_total",
			Help: "Total number of LLM generation calls",
		}, []string{"kind", "outcome"}),
		LLMTokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mirror_llm_tokens_total",
			Help: "Total number of LLM tokens consumed",
		}, []string{"direction"}),
		Reflections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mirror_reflections_total",
			Help: "Total number of reflections created",
		}, []string{"tone", "premium"}),
		EvolutionReports: f.NewCounter(prometheus.CounterOpts{
			Name: "mirror_evolution_reports_total",
			Help: "Total number of evolution reports created",
		}),
		QuotaRejections: f.NewCounter(prometheus.CounterOpts{
			Name: "mirror_quota_rejections_total",
			Help: "Total number of reflection requests rejected by the monthly limit",
		}),
		GiftRedemptions: f.NewCounter(prometheus.CounterOpts{
			Name: "mirror_gift_redemptions_total",
			Help: "Total number of redeemed gift codes",
		}),
		WebhookEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mirror_webhook_events_total",
			Help: "Total number of payment webhook events",
		}, []string{"type", "outcome"}),
		EmailsQueued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mirror_emails_total",
			Help: "Total number of transactional emails handed to the mailer",
		}, []string{"template", "outcome"}),
	}
}

// Registry 底层 registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveLLM 记录一次 LLM 调用
func (m *Metrics) ObserveLLM(kind, outcome string, inputTokens, outputTokens int) {
	m.LLMRequests.WithLabelValues(kind, outcome).Inc()
	if inputTokens > 0 {
		m.LLMTokens.WithLabelValues("input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.LLMTokens.WithLabelValues("output").Add(float64(outputTokens))
	}
}

// ObserveReflection 记录一次成功生成
func (m *Metrics) ObserveReflection(tone string, premium bool) {
	m.Reflections.WithLabelValues(tone, strconv.FormatBool(premium)).Inc()
}
