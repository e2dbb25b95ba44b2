// Package importer は外部サービスからの活動記録インポートをバックグラウンドで実行する。
// スケジューラとユーザー単位のインポーターを含む。
package importer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/habits/internal/model"
)

// TokenLister はインポート対象のトークンを列挙する。
type TokenLister interface {
	ListByService(ctx context.Context, service string) ([]*model.ServiceToken, error)
}

// UserImporter はユーザー1人分のインポートを実行する。
type UserImporter interface {
	Import(ctx context.Context, token *model.ServiceToken) error
}

// Scheduler はインポートのスケジューリングと並列制御を行う。
// ティッカーで対象トークンを取得し、
// semaphoreパターンで最大並列数を制御しながらインポートを実行する。
type Scheduler struct {
	tokens         TokenLister
	importer       UserImporter
	service        string
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値4を使用する。
func NewScheduler(
	tokens TokenLister,
	importer UserImporter,
	service string,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &Scheduler{
		tokens:         tokens,
		importer:       importer,
		service:        service,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start はintervalごとのティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("インポートスケジューラを開始しました",
		slog.String("service", s.service),
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("インポートサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("インポートスケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("インポートサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は対象トークンを1回取得し、並列でインポートを実行する。
// 個別ユーザーの失敗はログに記録し、他のユーザーの処理は継続する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	tokens, err := s.tokens.ListByService(ctx, s.service)
	if err != nil {
		return err
	}

	if len(tokens) == 0 {
		s.logger.Info("インポート対象のユーザーはいません",
			slog.String("service", s.service),
		)
		return nil
	}

	s.logger.Info("インポートサイクルを開始します",
		slog.String("service", s.service),
		slog.Int("user_count", len(tokens)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, token := range tokens {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(t *model.ServiceToken) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			if err := s.importer.Import(ctx, t); err != nil {
				s.logger.Error("インポートに失敗しました",
					slog.String("user_id", t.UserID),
					slog.String("service", t.Service),
					slog.String("error", err.Error()),
				)
			}
		}(token)
	}

	wg.Wait()

	duration := time.Since(start)
	s.logger.Info("インポートサイクルが完了しました",
		slog.String("service", s.service),
		slog.Int("user_count", len(tokens)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
