// Package cleanup は期限切れデータを定期的に削除するワーカージョブを提供する。
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Purger はbefore以前に期限切れとなった行を削除し、削除件数を返す。
type Purger interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Recorder は削除件数をメトリクスに記録する。
type Recorder interface {
	RecordCleanup(target string, deleted int64)
}

// Target は削除対象1種類分の設定。
// GracePeriodだけ期限切れ後も行を残す。
type Target struct {
	Name        string
	Purger      Purger
	GracePeriod time.Duration
}

// CleanupJob は登録されたTargetを順に掃除する。削除は冪等で、何度実行しても結果は同じ。
type CleanupJob struct {
	targets  []Target
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewCleanupJob はCleanupJobを生成する。recorderはnilでもよい。
func NewCleanupJob(logger *slog.Logger, recorder Recorder, targets ...Target) *CleanupJob {
	return &CleanupJob{
		targets:  targets,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Run は全Targetを掃除する。
// 1つのTargetが失敗しても残りは実行し、失敗をまとめて返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	var errs []error
	for _, t := range j.targets {
		if err := j.purge(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (j *CleanupJob) purge(ctx context.Context, t Target) error {
	start := time.Now()
	before := j.now().Add(-t.GracePeriod)

	deleted, err := t.Purger.DeleteExpired(ctx, before)
	if err != nil {
		j.logger.ErrorContext(ctx, "クリーンアップに失敗しました",
			slog.String("target", t.Name),
			slog.Time("before", before),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%sのクリーンアップに失敗: %w", t.Name, err)
	}

	if j.recorder != nil {
		j.recorder.RecordCleanup(t.Name, deleted)
	}
	j.logger.InfoContext(ctx, "クリーンアップが完了しました",
		slog.String("target", t.Name),
		slog.Int64("deleted_count", deleted),
		slog.Time("before", before),
		slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
	)
	return nil
}

// Start は起動直後とintervalごとにRunを実行し、ctxがキャンセルされると戻る。
// 失敗はRun内でログに記録済みなので、ここでは次回の実行を待つだけ。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		_ = j.Run(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
