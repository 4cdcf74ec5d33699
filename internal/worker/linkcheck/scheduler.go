package linkcheck

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler はリンク確認を一定間隔で実行する。
type Scheduler struct {
	checker *Checker
	sources []Source
	logger  *slog.Logger
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(checker *Checker, logger *slog.Logger, sources ...Source) *Scheduler {
	return &Scheduler{
		checker: checker,
		sources: sources,
		logger:  logger,
	}
}

// Start は起動直後に1回、その後interval間隔でリンク確認を実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("link check scheduler started",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.checker.maxConcurrency),
	)

	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("link check scheduler stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if _, err := s.checker.RunOnce(ctx, s.sources...); err != nil && ctx.Err() == nil {
		s.logger.Error("link check cycle failed", slog.String("error", err.Error()))
	}
}
