package cron

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultInterval = time.Hour
	// 单次维护的最长执行时间
	runTimeout = 5 * time.Minute
)

// Runner 定时执行的任务
type Runner interface {
	RunScheduled(ctx context.Context) error
}

type Service struct {
	maintenance Runner
	interval    time.Duration
	log         *zap.Logger
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	mu          sync.Mutex
}

func NewService(maintenance Runner, interval time.Duration, log *zap.Logger) *Service {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		maintenance: maintenance,
		interval:    interval,
		log:         log,
		stopChan:    make(chan struct{}),
	}
}

// Start 启动定时任务：固定间隔维护，另外在每月 1 日 UTC 零点额外执行一次
func (s *Service) Start() {
	s.wg.Add(2)
	go s.runInterval()
	go s.runMonthStart()
	s.log.Info("cron service started", zap.Duration("interval", s.interval))
}

// Stop 停止定时任务并等待正在执行的任务结束
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	s.log.Info("cron service stopped")
}

func (s *Service) runInterval() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.run("interval")
		}
	}
}

// runMonthStart 月初用量翻月后立即降级到期订阅
func (s *Service) runMonthStart() {
	defer s.wg.Done()
	timer := time.NewTimer(time.Until(NextMonthStart(time.Now())))
	defer timer.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-timer.C:
			s.run("month_start")
			timer.Reset(time.Until(NextMonthStart(time.Now())))
		}
	}
}

// NextMonthStart 下个月 1 日 UTC 零点
func NextMonthStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

// run 同一时间只跑一个维护任务
func (s *Service) run(trigger string) {
	if !s.mu.TryLock() {
		s.log.Warn("maintenance still running, skipped", zap.String("trigger", trigger))
		return
	}
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	start := time.Now()
	if err := s.maintenance.RunScheduled(ctx); err != nil {
		s.log.Error("scheduled maintenance failed", zap.String("trigger", trigger), zap.Error(err))
		return
	}
	s.log.Debug("scheduled maintenance done", zap.String("trigger", trigger), zap.Duration("elapsed", time.Since(start)))
}

// RunNow 立即执行一次维护（用于测试或手动触发）
func (s *Service) RunNow(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maintenance.RunScheduled(ctx)
}
