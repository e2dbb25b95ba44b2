package dashboard

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/hitoshi/habits/internal/model"
	"github.com/hitoshi/habits/internal/streak"
)

// --- モック ---

type mockLogReader struct {
	byUser        map[string][]*model.Log
	listByUserCnt int
	err           error
}

func (m *mockLogReader) ListByUser(_ context.Context, userID string) ([]*model.Log, error) {
	m.listByUserCnt++
	return m.byUser[userID], m.err
}

func (m *mockLogReader) ListAll(context.Context) ([]*model.Log, error) {
	var all []*model.Log
	for _, logs := range m.byUser {
		all = append(all, logs...)
	}
	return all, m.err
}

type mockGoals struct {
	byUser map[string][]model.Goal
}

func (m *mockGoals) List(_ context.Context, userID string) ([]model.Goal, error) {
	return m.byUser[userID], nil
}

func (m *mockGoals) ListAll(context.Context) ([]model.Goal, error) {
	var all []model.Goal
	for _, goals := range m.byUser {
		all = append(all, goals...)
	}
	return all, nil
}

type mockUsers struct {
	users []*model.User
}

func (m *mockUsers) ListAll(context.Context) ([]*model.User, error) {
	return m.users, nil
}

type mockDaysOff struct {
	byUser map[string][]streak.Date
}

func (m *mockDaysOff) ListByUser(_ context.Context, userID string) ([]streak.Date, error) {
	return m.byUser[userID], nil
}

// memoryCache はテスト用のインメモリCache。
type memoryCache struct {
	data   map[string][]byte
	getErr error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string][]byte)}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.data[key] = value
	return nil
}

func (c *memoryCache) Incr(_ context.Context, key string) (int64, error) {
	n, _ := strconv.ParseInt(string(c.data[key]), 10, 64)
	n++
	c.data[key] = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

func (c *memoryCache) Close() error { return nil }

type mockMetrics struct {
	hits, misses, computed int
}

func (m *mockMetrics) RecordDashboardLatency(time.Duration) { m.computed++ }
func (m *mockMetrics) RecordCacheHit() { m.hits++ }
func (m *mockMetrics) RecordCacheMiss() { m.misses++ }

var fixedNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

// sleepLog はfixedNowのn日前の正午に記録されたSleepの記録を返す。
func sleepLog(userID string, daysAgo int, hours float64) *model.Log {
	return &model.Log{
		UserID:    userID,
		Activity:  "Sleep",
		Value:     hours,
		Timestamp: time.Date(2026, 3, 15-daysAgo, 12, 0, 0, 0, time.UTC),
	}
}

func sleepGoals(userID string) []model.Goal {
	return []model.Goal{
		{UserID: userID, Activity: "Sleep", Target: 7, Period: streak.PeriodDaily, Unit: "hours"},
		{UserID: userID, Activity: "Workout", Target: 0, Period: streak.PeriodWeekly, Unit: "minutes"},
	}
}

type fixture struct {
	svc     *Service
	logs    *mockLogReader
	goals   *mockGoals
	users   *mockUsers
	daysOff *mockDaysOff
	cache   *memoryCache
	metrics *mockMetrics
}

func newFixture(cfg Config) *fixture {
	f := &fixture{
		logs:    &mockLogReader{byUser: map[string][]*model.Log{}},
		goals:   &mockGoals{byUser: map[string][]model.Goal{}},
		users:   &mockUsers{},
		daysOff: &mockDaysOff{byUser: map[string][]streak.Date{}},
		cache:   newMemoryCache(),
		metrics: &mockMetrics{},
	}
	if cfg.Policy.MainDaily == nil {
		cfg.Policy.MainDaily = []string{"Sleep"}
	}
	cfg.Policy.CutoffHour = 4
	f.svc = NewService(f.logs, f.goals, f.goals, f.users, f.daysOff, f.cache, f.metrics, cfg)
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

// --- テスト ---

func TestGet_ComputesDashboard(t *testing.T) {
	f := newFixture(Config{})
	f.logs.byUser["u1"] = []*model.Log{sleepLog("u1", 0, 8), sleepLog("u1", 1, 7.5), sleepLog("u1", 2, 7), sleepLog("u1", 4, 9)}
	f.goals.byUser["u1"] = sleepGoals("u1")

	d, err := f.svc.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.AsOf.String() != "2026-03-15" {
		t.Errorf("AsOf = %s", d.AsOf)
	}
	if d.MainStreak != 3 {
		t.Errorf("MainStreak = %d, want 3", d.MainStreak)
	}
	if len(d.Activities) != 2 || d.Activities[0].Activity != "Sleep" || d.Activities[1].Activity != "Workout" {
		t.Fatalf("Activities = %+v", d.Activities)
	}
	sleep := d.Activities[0]
	if sleep.Streak != 3 || sleep.Current != 8 || sleep.Unit != "hours" {
		t.Errorf("Sleep = %+v", sleep)
	}
	// 直近7日のうち4日が達成
	if sleep.Compliance != 57.1 {
		t.Errorf("Sleep compliance = %v, want 57.1", sleep.Compliance)
	}
	if d.Activities[1].Streak != 0 || d.Activities[1].Period != streak.PeriodWeekly {
		t.Errorf("Workout = %+v", d.Activities[1])
	}
	if len(d.Series) != streak.WeeklyWindowCount {
		t.Errorf("Series len = %d", len(d.Series))
	}
	if len(d.Heatmap) == 0 {
		t.Error("Heatmap should not be empty")
	}
}

func TestGet_EmptyUser(t *testing.T) {
	f := newFixture(Config{})

	d, err := f.svc.Get(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.MainStreak != 0 || len(d.Activities) != 0 {
		t.Errorf("dashboard = %+v", d)
	}
}

func TestGet_UsesCacheUntilInvalidated(t *testing.T) {
	f := newFixture(Config{})
	f.logs.byUser["u1"] = []*model.Log{sleepLog("u1", 0, 8)}
	f.goals.byUser["u1"] = sleepGoals("u1")
	ctx := context.Background()

	first, err := f.svc.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := f.svc.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.logs.listByUserCnt != 1 {
		t.Errorf("ListByUser called %d times, want 1", f.logs.listByUserCnt)
	}
	if f.metrics.hits != 1 || f.metrics.misses != 1 {
		t.Errorf("hits=%d misses=%d, want 1/1", f.metrics.hits, f.metrics.misses)
	}
	if second.MainStreak != first.MainStreak || second.AsOf != first.AsOf {
		t.Errorf("cached = %+v, want %+v", second, first)
	}

	f.logs.byUser["u1"] = append(f.logs.byUser["u1"], sleepLog("u1", 1, 8))
	NewInvalidator(f.cache).Invalidate(ctx, "u1")

	third, err := f.svc.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.logs.listByUserCnt != 2 {
		t.Errorf("ListByUser called %d times, want 2", f.logs.listByUserCnt)
	}
	if third.MainStreak != 2 {
		t.Errorf("MainStreak after invalidate = %d, want 2", third.MainStreak)
	}
}

func TestGet_CacheErrorFallsBackToCompute(t *testing.T) {
	f := newFixture(Config{})
	f.cache.getErr = errors.New("redis down")
	f.goals.byUser["u1"] = sleepGoals("u1")

	if _, err := f.svc.Get(context.Background(), "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.metrics.computed != 1 || f.metrics.hits+f.metrics.misses != 0 {
		t.Errorf("metrics = %+v", f.metrics)
	}
}

func TestGet_RepositoryError(t *testing.T) {
	f := newFixture(Config{})
	f.logs.err = errors.New("db down")

	if _, err := f.svc.Get(context.Background(), "u1"); err == nil {
		t.Error("expected error")
	}
}

func TestGet_DaysOff(t *testing.T) {
	dayOff, _ := streak.ParseDate("2026-03-14")

	tests := []struct {
		name         string
		honorDaysOff bool
		want         int
	}{
		{"休養日を考慮する", true, 3},
		{"休養日を考慮しない", false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(Config{HonorDaysOff: tt.honorDaysOff})
			f.logs.byUser["u1"] = []*model.Log{sleepLog("u1", 0, 8), sleepLog("u1", 2, 8), sleepLog("u1", 3, 8)}
			f.goals.byUser["u1"] = sleepGoals("u1")
			f.daysOff.byUser["u1"] = []streak.Date{dayOff}

			d, err := f.svc.Get(context.Background(), "u1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.MainStreak != tt.want {
				t.Errorf("MainStreak = %d, want %d", d.MainStreak, tt.want)
			}
		})
	}
}

func TestLeaderboard(t *testing.T) {
	f := newFixture(Config{LeaderboardSize: 2})
	f.users.users = []*model.User{
		{ID: "a", Name: "Alice"},
		{ID: "b", Name: "Bob"},
		{ID: "c", Name: "Carol"},
	}
	f.logs.byUser["a"] = []*model.Log{sleepLog("a", 0, 8)}
	f.logs.byUser["b"] = []*model.Log{sleepLog("b", 0, 8), sleepLog("b", 1, 8), sleepLog("b", 2, 8)}
	f.logs.byUser["c"] = []*model.Log{sleepLog("c", 0, 8)}
	for _, id := range []string{"a", "b", "c"} {
		f.goals.byUser[id] = sleepGoals(id)
	}

	entries, err := f.svc.Leaderboard(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}
	want := []model.LeaderboardEntry{
		{Rank: 1, UserID: "b", Name: "Bob", MainStreak: 3},
		{Rank: 2, UserID: "a", Name: "Alice", MainStreak: 1},
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entries[%d] = %+v, want %+v", i, entries[i], want[i])
		}
	}
}

func TestLeaderboard_UserWithoutGoals(t *testing.T) {
	f := newFixture(Config{})
	f.users.users = []*model.User{{ID: "a", Name: "Alice"}}
	f.logs.byUser["a"] = []*model.Log{sleepLog("a", 0, 8)}

	entries, err := f.svc.Leaderboard(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].MainStreak != 0 || entries[0].Rank != 1 {
		t.Errorf("entries = %+v", entries)
	}
}
