// Package cleanup は却下済み申請の自動削除ジョブを提供する。
// 審査から保持期間（デフォルト90日）を超過した却下申請を削除し、
// アップロードされた書類ファイルも合わせて削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/schemebot/internal/model"
)

// ApplicationPurger は却下済み申請の一括削除インターフェース。
type ApplicationPurger interface {
	DeleteRejectedBefore(ctx context.Context, cutoff time.Time) ([]*model.Application, error)
}

// FileRemover はアップロード書類の削除インターフェース。
type FileRemover interface {
	Remove(name string) error
}

// PurgeRecorder は削除件数の記録先インターフェース。
type PurgeRecorder interface {
	RecordApplicationsPurged(count int)
}

// CleanupJob は保持期間を超過した却下申請の自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	repo          ApplicationPurger
	files         FileRemover
	recorder      PurgeRecorder
	logger        *slog.Logger
	now           func() time.Time
	RetentionDays int // 却下申請の保持日数（デフォルト: 90）
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの保持日数は90日。
func NewCleanupJob(repo ApplicationPurger, files FileRemover, recorder PurgeRecorder, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		repo:          repo,
		files:         files,
		recorder:      recorder,
		logger:        logger,
		now:           time.Now,
		RetentionDays: 90,
	}
}

// Run は保持期間を超過した却下申請を削除する。
// 書類ファイルの削除に失敗しても申請の削除は取り消さず、ログに残して続行する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()
	cutoff := start.AddDate(0, 0, -j.RetentionDays)

	deleted, err := j.repo.DeleteRejectedBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("application cleanup failed",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("failed to purge rejected applications: %w", err)
	}

	var filesRemoved, fileErrors int
	for _, app := range deleted {
		for _, name := range app.Documents {
			if err := j.files.Remove(name); err != nil {
				fileErrors++
				j.logger.Warn("failed to remove purged document",
					slog.String("application_id", app.ID),
					slog.String("file", name),
					slog.String("error", err.Error()),
				)
				continue
			}
			filesRemoved++
		}
	}

	j.recorder.RecordApplicationsPurged(len(deleted))

	duration := time.Since(start)
	j.logger.Info("application cleanup completed",
		slog.Int("deleted_count", len(deleted)),
		slog.Int("files_removed", filesRemoved),
		slog.Int("file_errors", fileErrors),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は起動直後に1回、その後interval間隔でRunを実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if err := j.Run(ctx); err != nil && ctx.Err() == nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil && ctx.Err() == nil {
				j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}
}
