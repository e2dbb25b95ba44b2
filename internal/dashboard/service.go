// Package dashboard はユーザーごとの達成率・ストリーク集計とリーダーボードを提供する。
//
// 集計は毎回ログ全体から再計算し、結果を(ユーザー, 有効日付, データバージョン)単位でキャッシュする。
// 記録・目標・休養日が変わるとバージョンを進め、古いキャッシュは参照されなくなる。
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/hitoshi/habits/internal/cache"
	"github.com/hitoshi/habits/internal/model"
	"github.com/hitoshi/habits/internal/streak"
)

// DefaultLeaderboardSize はリーダーボードの既定の表示件数。
const DefaultLeaderboardSize = 10

// LogReader は集計対象の記録を読み出す。
type LogReader interface {
	ListByUser(ctx context.Context, userID string) ([]*model.Log, error)
	ListAll(ctx context.Context) ([]*model.Log, error)
}

// GoalSource は表示順に並んだユーザーの目標を返す。
type GoalSource interface {
	List(ctx context.Context, userID string) ([]model.Goal, error)
}

// AllGoalsReader は全ユーザーの目標を返す。
type AllGoalsReader interface {
	ListAll(ctx context.Context) ([]model.Goal, error)
}

// UserLister は全ユーザーを返す。
type UserLister interface {
	ListAll(ctx context.Context) ([]*model.User, error)
}

// DayOffReader はユーザーの休養日を返す。
type DayOffReader interface {
	ListByUser(ctx context.Context, userID string) ([]streak.Date, error)
}

// Metrics は集計に関するメトリクスの記録先。
type Metrics interface {
	RecordDashboardLatency(duration time.Duration)
	RecordCacheHit()
	RecordCacheMiss()
}

// Config はダッシュボードの設定。
type Config struct {
	// Policy はストリーク計算のルール。Excusedは無視され、HonorDaysOff時にユーザーごとに設定される。
	Policy          streak.Policy
	HonorDaysOff    bool
	CacheTTL        time.Duration
	LeaderboardSize int
}

// ActivityView はダッシュボードの1活動分の表示内容。
type ActivityView struct {
	Activity   string        `json:"activity"`
	Period     streak.Period `json:"period"`
	Unit       string        `json:"unit"`
	Target     float64       `json:"target"`
	Current    float64       `json:"current"`
	Compliance float64       `json:"compliance"`
	Streak     int           `json:"streak"`
}

// Dashboard はユーザー1人分の集計結果。
type Dashboard struct {
	AsOf       streak.Date        `json:"as_of"`
	MainStreak int                `json:"main_streak"`
	Activities []ActivityView     `json:"activities"`
	Series     []streak.WeekPoint `json:"weekly_series"`
	Heatmap    []streak.HeatCell  `json:"heatmap"`
}

// Service はダッシュボード集計のサービス層。
type Service struct {
	logs     LogReader
	goals    GoalSource
	allGoals AllGoalsReader
	users    UserLister
	daysOff  DayOffReader
	cache    cache.Cache
	metrics  Metrics
	config   Config
	now      func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	logs LogReader,
	goals GoalSource,
	allGoals AllGoalsReader,
	users UserLister,
	daysOff DayOffReader,
	c cache.Cache,
	metrics Metrics,
	config Config,
) *Service {
	if config.Policy.Location == nil {
		config.Policy.Location = time.UTC
	}
	if config.LeaderboardSize <= 0 {
		config.LeaderboardSize = DefaultLeaderboardSize
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = 24 * time.Hour
	}
	return &Service{
		logs:     logs,
		goals:    goals,
		allGoals: allGoals,
		users:    users,
		daysOff:  daysOff,
		cache:    c,
		metrics:  metrics,
		config:   config,
		now:      time.Now,
	}
}

// Get はユーザーのダッシュボードを返す。キャッシュにあればそれを使う。
func (s *Service) Get(ctx context.Context, userID string) (*Dashboard, error) {
	started := time.Now()
	now := s.now()
	today := streak.EffectiveDate(now, s.config.Policy.CutoffHour, s.config.Policy.Location)

	key := s.cacheKey(ctx, userID, today)
	if key != "" {
		if d, ok := s.lookup(ctx, key); ok {
			s.metrics.RecordCacheHit()
			return d, nil
		}
		s.metrics.RecordCacheMiss()
	}

	d, err := s.compute(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordDashboardLatency(time.Since(started))

	if key != "" {
		s.store(ctx, key, d)
	}
	return d, nil
}

func (s *Service) compute(ctx context.Context, userID string, now time.Time) (*Dashboard, error) {
	logs, err := s.logs.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("記録の取得に失敗しました: %w", err)
	}
	goals, err := s.goals.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("目標の取得に失敗しました: %w", err)
	}
	calc, err := s.calculatorFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	records := toRecords(logs)
	goalMap := make(map[string]streak.Goal, len(goals))
	names := make([]string, 0, len(goals))
	for _, g := range goals {
		goalMap[g.Activity] = streak.Goal{Target: g.Target, Period: g.Period}
		names = append(names, g.Activity)
	}

	summary := calc.Compute(records, goalMap, now)

	views := make([]ActivityView, 0, len(goals))
	for _, g := range goals {
		res := summary.Activities[g.Activity]
		views = append(views, ActivityView{
			Activity:   g.Activity,
			Period:     res.Period,
			Unit:       g.Unit,
			Target:     res.Target,
			Current:    res.Current,
			Compliance: res.Compliance,
			Streak:     res.Streak,
		})
	}

	return &Dashboard{
		AsOf:       summary.AsOf,
		MainStreak: summary.MainStreak,
		Activities: views,
		Series:     calc.WeeklySeries(records, names, now),
		Heatmap:    calc.Heatmap(records, now),
	}, nil
}

// Leaderboard は全ユーザーのメインストリークを降順に並べ、上位を返す。
// 同じストリークの場合は名前順。
func (s *Service) Leaderboard(ctx context.Context) ([]model.LeaderboardEntry, error) {
	users, err := s.users.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	logs, err := s.logs.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("記録の取得に失敗しました: %w", err)
	}
	goals, err := s.allGoals.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("目標の取得に失敗しました: %w", err)
	}

	recordsByUser := make(map[string][]streak.Record)
	for _, l := range logs {
		recordsByUser[l.UserID] = append(recordsByUser[l.UserID], toRecord(l))
	}
	goalsByUser := make(map[string]map[string]streak.Goal)
	for _, g := range goals {
		m, ok := goalsByUser[g.UserID]
		if !ok {
			m = make(map[string]streak.Goal)
			goalsByUser[g.UserID] = m
		}
		m[g.Activity] = streak.Goal{Target: g.Target, Period: g.Period}
	}

	now := s.now()
	entries := make([]model.LeaderboardEntry, 0, len(users))
	for _, u := range users {
		calc, err := s.calculatorFor(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, model.LeaderboardEntry{
			UserID:     u.ID,
			Name:       u.Name,
			MainStreak: calc.MainStreak(recordsByUser[u.ID], goalsByUser[u.ID], now),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].MainStreak != entries[j].MainStreak {
			return entries[i].MainStreak > entries[j].MainStreak
		}
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].UserID < entries[j].UserID
	})

	if len(entries) > s.config.LeaderboardSize {
		entries = entries[:s.config.LeaderboardSize]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

// calculatorFor はユーザーの休養日を反映した計算機を返す。
func (s *Service) calculatorFor(ctx context.Context, userID string) (*streak.Calculator, error) {
	policy := s.config.Policy
	policy.Excused = nil
	if s.config.HonorDaysOff {
		dates, err := s.daysOff.ListByUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("休養日の取得に失敗しました: %w", err)
		}
		if len(dates) > 0 {
			policy.Excused = make(map[streak.Date]bool, len(dates))
			for _, d := range dates {
				policy.Excused[d] = true
			}
		}
	}
	return streak.NewCalculator(policy), nil
}

// cacheKey はキャッシュキーを返す。バージョンを読めない場合は空文字列（キャッシュしない）。
func (s *Service) cacheKey(ctx context.Context, userID string, today streak.Date) string {
	raw, found, err := s.cache.Get(ctx, versionKey(userID))
	if err != nil {
		slog.Warn("failed to read dashboard cache version",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return ""
	}
	version := "0"
	if found {
		if _, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
			version = string(raw)
		}
	}
	return fmt.Sprintf("habits:dash:%s:%s:%s", userID, version, today.String())
}

func (s *Service) lookup(ctx context.Context, key string) (*Dashboard, bool) {
	raw, found, err := s.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("failed to read dashboard cache",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	if !found {
		return nil, false
	}
	var d Dashboard
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, false
	}
	return &d, true
}

func (s *Service) store(ctx context.Context, key string, d *Dashboard) {
	raw, err := json.Marshal(d)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.config.CacheTTL); err != nil {
		slog.Warn("failed to write dashboard cache",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

func versionKey(userID string) string {
	return "habits:dash:ver:" + userID
}

func toRecord(l *model.Log) streak.Record {
	return streak.Record{Activity: l.Activity, Value: l.Value, Timestamp: l.Timestamp}
}

func toRecords(logs []*model.Log) []streak.Record {
	records := make([]streak.Record, 0, len(logs))
	for _, l := range logs {
		records = append(records, toRecord(l))
	}
	return records
}
