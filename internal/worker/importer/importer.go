package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/habits/internal/activity"
	"github.com/hitoshi/habits/internal/integration/strava"
	"github.com/hitoshi/habits/internal/model"
	"github.com/hitoshi/habits/internal/security"
)

// ActivitySource はStravaのアクティビティを取得する。
type ActivitySource interface {
	ListActivities(ctx context.Context, token string, after time.Time) ([]strava.Activity, error)
}

// LogImporter は外部IDで重複を排除しながら記録を保存する。
type LogImporter interface {
	CreateImported(ctx context.Context, log *model.Log) (bool, error)
}

// CursorUpdater は最後に取り込んだアクティビティの時刻を保存する。
type CursorUpdater interface {
	UpdateLastImported(ctx context.Context, userID, service string, at time.Time) error
}

// CacheInvalidator はユーザーのダッシュボードキャッシュを無効化する。
type CacheInvalidator interface {
	Invalidate(ctx context.Context, userID string)
}

// Metrics はインポート結果の記録先。
type Metrics interface {
	RecordImportSuccess(service string, imported int)
	RecordImportFailure(service string, reason string)
}

// StravaImporter はユーザー1人分のStravaアクティビティを活動記録として取り込む。
// 対応する種別（ラン・ライド・ウォーク）のみを移動時間（分）と距離（km）の記録に変換する。
type StravaImporter struct {
	source      ActivitySource
	logs        LogImporter
	cursor      CursorUpdater
	invalidator CacheInvalidator
	metrics     Metrics
	sanitizer   security.TextSanitizer
	logger      *slog.Logger
	timeout     time.Duration
}

// NewStravaImporter はStravaImporterの新しいインスタンスを生成する。
// timeoutはユーザー1人あたりの処理時間の上限。0以下の場合は上限なし。
func NewStravaImporter(
	source ActivitySource,
	logs LogImporter,
	cursor CursorUpdater,
	invalidator CacheInvalidator,
	metrics Metrics,
	sanitizer security.TextSanitizer,
	logger *slog.Logger,
	timeout time.Duration,
) *StravaImporter {
	return &StravaImporter{
		source:      source,
		logs:        logs,
		cursor:      cursor,
		invalidator: invalidator,
		metrics:     metrics,
		sanitizer:   sanitizer,
		logger:      logger,
		timeout:     timeout,
	}
}

// Import はトークンの持ち主のアクティビティを前回の続きから取り込む。
// UserImporterインターフェースを実装する。
func (i *StravaImporter) Import(ctx context.Context, token *model.ServiceToken) error {
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	var after time.Time
	if token.LastImportedAt != nil {
		after = *token.LastImportedAt
	}

	activities, err := i.source.ListActivities(ctx, token.Token, after)
	if err != nil {
		reason := "api_error"
		if errors.Is(err, strava.ErrUnauthorized) {
			reason = "unauthorized"
		}
		i.metrics.RecordImportFailure(model.ServiceStrava, reason)
		return fmt.Errorf("Stravaアクティビティの取得に失敗しました: %w", err)
	}

	imported := 0
	latest := after
	now := time.Now()
	for _, a := range activities {
		if a.StartDate.After(latest) {
			latest = a.StartDate
		}
		name, ok := a.HabitActivity()
		if !ok {
			continue
		}
		inserted, err := i.logs.CreateImported(ctx, &model.Log{
			ID:         uuid.New().String(),
			UserID:     token.UserID,
			Activity:   name,
			Value:      a.Minutes(),
			DistanceKM: a.DistanceKM(),
			Note:       i.sanitizer.Sanitize(a.Name, activity.DefaultNoteMaxLength),
			Timestamp:  a.StartDate,
			ExternalID: a.ExternalID(),
			CreatedAt:  now,
		})
		if err != nil {
			i.metrics.RecordImportFailure(model.ServiceStrava, "store_error")
			return fmt.Errorf("インポート記録の保存に失敗しました: %w", err)
		}
		if inserted {
			imported++
		}
	}

	if latest.After(after) {
		if err := i.cursor.UpdateLastImported(ctx, token.UserID, model.ServiceStrava, latest); err != nil {
			i.metrics.RecordImportFailure(model.ServiceStrava, "store_error")
			return fmt.Errorf("インポート位置の更新に失敗しました: %w", err)
		}
	}
	if imported > 0 {
		i.invalidator.Invalidate(ctx, token.UserID)
	}
	i.metrics.RecordImportSuccess(model.ServiceStrava, imported)

	i.logger.Info("Stravaインポートが完了しました",
		slog.String("user_id", token.UserID),
		slog.Int("fetched", len(activities)),
		slog.Int("imported", imported),
	)
	return nil
}
