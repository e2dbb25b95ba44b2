// Package goal は活動目標の参照と更新を提供する。
package goal

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/habits/internal/catalog"
	"github.com/hitoshi/habits/internal/model"
	"github.com/hitoshi/habits/internal/security"
)

// MaxActivityLength は活動名の最大文字数。
const MaxActivityLength = 50

// GoalStore は目標の永続化に必要な操作。
type GoalStore interface {
	ListByUser(ctx context.Context, userID string) ([]model.Goal, error)
	Upsert(ctx context.Context, goal *model.Goal) error
}

// CacheInvalidator はユーザーのダッシュボードキャッシュを無効化する。
type CacheInvalidator interface {
	Invalidate(ctx context.Context, userID string)
}

// Service は目標管理のサービス層。
type Service struct {
	goals       GoalStore
	catalog     *catalog.Catalog
	sanitizer   security.TextSanitizer
	invalidator CacheInvalidator
}

// NewService はServiceを生成する。
func NewService(goals GoalStore, activities *catalog.Catalog, sanitizer security.TextSanitizer, invalidator CacheInvalidator) *Service {
	return &Service{
		goals:       goals,
		catalog:     activities,
		sanitizer:   sanitizer,
		invalidator: invalidator,
	}
}

// List はユーザーの目標一覧を返す。
// カタログの活動は目標行が無くても未設定（Target=0）として含め、カタログ順に並べる。
// カタログに無い独自の習慣はその後ろに活動名順で並べる。
func (s *Service) List(ctx context.Context, userID string) ([]model.Goal, error) {
	stored, err := s.goals.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("目標の取得に失敗しました: %w", err)
	}

	byActivity := make(map[string]model.Goal, len(stored))
	for _, g := range stored {
		byActivity[g.Activity] = g
	}

	result := make([]model.Goal, 0, len(stored))
	for _, a := range s.catalog.All() {
		g, ok := byActivity[a.Name]
		if !ok {
			g = model.Goal{UserID: userID, Activity: a.Name, Unit: a.Unit}
		}
		// 集計単位はカタログを正とする
		g.Period = a.Period
		if g.Unit == "" {
			g.Unit = a.Unit
		}
		result = append(result, g)
		delete(byActivity, a.Name)
	}

	custom := make([]model.Goal, 0, len(byActivity))
	for _, g := range byActivity {
		g.Period = s.catalog.PeriodOf(g.Activity)
		custom = append(custom, g)
	}
	sort.Slice(custom, func(i, j int) bool { return custom[i].Activity < custom[j].Activity })

	return append(result, custom...), nil
}

// SetTarget は活動の目標値を設定する。
// カタログに無い活動名を指定すると日次の独自習慣として追加される。
// targetに0を指定すると目標は未設定になる。
func (s *Service) SetTarget(ctx context.Context, userID, activity string, target float64, unit string) (*model.Goal, error) {
	name, err := s.NormalizeActivity(activity)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(target) || math.IsInf(target, 0) || target < 0 {
		return nil, model.NewInvalidTargetError(target)
	}

	if known := s.catalog.UnitOf(name); known != "" {
		unit = known
	} else {
		unit = s.sanitizer.Sanitize(unit, 20)
	}

	g := &model.Goal{
		UserID:    userID,
		Activity:  name,
		Target:    target,
		Period:    s.catalog.PeriodOf(name),
		Unit:      unit,
		UpdatedAt: time.Now(),
	}
	if err := s.goals.Upsert(ctx, g); err != nil {
		return nil, fmt.Errorf("目標の保存に失敗しました: %w", err)
	}
	s.invalidator.Invalidate(ctx, userID)

	slog.Info("goal updated",
		slog.String("user_id", userID),
		slog.String("activity", name),
		slog.Float64("target", target),
	)
	return g, nil
}

// NormalizeActivity は活動名をサニタイズし、長さを検証する。
func (s *Service) NormalizeActivity(activity string) (string, error) {
	name := s.sanitizer.Sanitize(activity, 0)
	if name == "" || utf8.RuneCountInString(name) > MaxActivityLength {
		return "", model.NewInvalidActivityError()
	}
	return name, nil
}
