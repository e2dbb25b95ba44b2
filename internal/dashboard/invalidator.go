package dashboard

import (
	"context"
	"log/slog"

	"github.com/hitoshi/habits/internal/cache"
)

// Invalidator はユーザーのデータバージョンを進め、キャッシュ済みのダッシュボードを無効にする。
type Invalidator struct {
	cache cache.Cache
}

// NewInvalidator はInvalidatorを生成する。
func NewInvalidator(c cache.Cache) *Invalidator {
	return &Invalidator{cache: c}
}

// Invalidate はuserIDのバージョンを1つ進める。失敗はログに記録するのみ。
func (i *Invalidator) Invalidate(ctx context.Context, userID string) {
	if _, err := i.cache.Incr(ctx, versionKey(userID)); err != nil {
		slog.Warn("failed to invalidate dashboard cache",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}
