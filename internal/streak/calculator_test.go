package streak

import (
	"testing"
	"time"
)

// 2026-03-15 は日曜日。
var (
	testToday = Date{Year: 2026, Month: time.March, Day: 15}
	testNow   = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
)

func newTestCalculator() *Calculator {
	return NewCalculator(Policy{
		CutoffHour: 4,
		Location:   time.UTC,
		MainDaily:  []string{"Sleep", "Anki"},
		MainWeekly: "Workout",
	})
}

func defaultGoals() map[string]Goal {
	return map[string]Goal{
		"Sleep":   {Target: 7, Period: PeriodDaily},
		"Anki":    {Target: 1, Period: PeriodDaily},
		"Workout": {Target: 150, Period: PeriodWeekly},
	}
}

// daysAgo はtestTodayからn日前の正午のログを返す。
func daysAgo(activity string, n int, value float64) Record {
	d := testToday.AddDays(-n)
	return Record{
		Activity:  activity,
		Value:     value,
		Timestamp: time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC),
	}
}

func TestCompute_NoLogs(t *testing.T) {
	c := newTestCalculator()
	s := c.Compute(nil, defaultGoals(), testNow)

	if s.MainStreak != 0 {
		t.Errorf("MainStreak = %d, want 0", s.MainStreak)
	}
	for name, res := range s.Activities {
		if res.Compliance != 0 || res.Streak != 0 {
			t.Errorf("%s: compliance=%v streak=%d, want 0/0", name, res.Compliance, res.Streak)
		}
	}
	if len(s.Activities) != 3 {
		t.Errorf("Activities length = %d, want 3", len(s.Activities))
	}
	if s.AsOf != testToday {
		t.Errorf("AsOf = %v, want %v", s.AsOf, testToday)
	}
}

func TestCompute_NoGoals(t *testing.T) {
	c := newTestCalculator()
	s := c.Compute([]Record{daysAgo("Sleep", 0, 8)}, nil, testNow)

	if s.MainStreak != 0 {
		t.Errorf("MainStreak = %d, want 0", s.MainStreak)
	}
	if len(s.Activities) != 0 {
		t.Errorf("Activities length = %d, want 0", len(s.Activities))
	}
}

func TestCompute_DailyStreakOfN(t *testing.T) {
	c := newTestCalculator()
	var records []Record
	for i := 0; i < 5; i++ {
		records = append(records, daysAgo("Sleep", i, 8))
	}
	// 5日前は未達、それ以前にも達成日がある
	records = append(records, daysAgo("Sleep", 6, 8), daysAgo("Sleep", 7, 9))

	s := c.Compute(records, defaultGoals(), testNow)
	sleep := s.Activities["Sleep"]
	if sleep.Streak != 5 {
		t.Errorf("Streak = %d, want 5", sleep.Streak)
	}
	// 直近7日のうち6日達成（0〜4日前と6日前）
	if sleep.Compliance != 85.7 {
		t.Errorf("Compliance = %v, want 85.7", sleep.Compliance)
	}
	if sleep.Current != 8 {
		t.Errorf("Current = %v, want 8", sleep.Current)
	}
}

func TestCompute_BelowGoalDayBreaksStreak(t *testing.T) {
	c := newTestCalculator()
	records := []Record{
		daysAgo("Sleep", 0, 8),
		daysAgo("Sleep", 1, 7),
		daysAgo("Sleep", 2, 5), // 未達
		daysAgo("Sleep", 3, 8),
		daysAgo("Sleep", 4, 8),
	}

	s := c.Compute(records, defaultGoals(), testNow)
	if got := s.Activities["Sleep"].Streak; got != 2 {
		t.Errorf("Streak = %d, want 2", got)
	}
	if got := s.Activities["Sleep"].Compliance; got != 57.1 {
		t.Errorf("Compliance = %v, want 57.1", got)
	}
}

func TestCompute_SameDayValuesAreSummed(t *testing.T) {
	c := newTestCalculator()
	records := []Record{
		daysAgo("Sleep", 0, 4),
		daysAgo("Sleep", 0, 3),
	}

	s := c.Compute(records, defaultGoals(), testNow)
	if got := s.Activities["Sleep"].Streak; got != 1 {
		t.Errorf("Streak = %d, want 1", got)
	}
}

func TestCompute_TodayUnmetMeansZeroStreak(t *testing.T) {
	c := newTestCalculator()
	records := []Record{
		daysAgo("Sleep", 1, 8),
		daysAgo("Sleep", 2, 8),
	}

	s := c.Compute(records, defaultGoals(), testNow)
	if got := s.Activities["Sleep"].Streak; got != 0 {
		t.Errorf("Streak = %d, want 0", got)
	}
}

func TestCompute_FutureLogsIgnored(t *testing.T) {
	c := newTestCalculator()
	records := []Record{
		daysAgo("Sleep", -1, 8),
		daysAgo("Sleep", 0, 8),
	}

	s := c.Compute(records, defaultGoals(), testNow)
	if got := s.Activities["Sleep"].Streak; got != 1 {
		t.Errorf("Streak = %d, want 1", got)
	}
	if got := s.Activities["Sleep"].Compliance; got != 14.3 {
		t.Errorf("Compliance = %v, want 14.3", got)
	}
}

func TestCompute_CutoffHour(t *testing.T) {
	c := newTestCalculator()
	goals := map[string]Goal{"Anki": {Target: 1, Period: PeriodDaily}}

	// 03:59 のログは前日扱い。今日（15日）は未達となる。
	before := []Record{{Activity: "Anki", Value: 1, Timestamp: time.Date(2026, time.March, 15, 3, 59, 0, 0, time.UTC)}}
	s := c.Compute(before, goals, testNow)
	if got := s.Activities["Anki"].Streak; got != 0 {
		t.Errorf("03:59 log: Streak = %d, want 0", got)
	}

	// 04:01 のログは当日扱い。
	after := []Record{{Activity: "Anki", Value: 1, Timestamp: time.Date(2026, time.March, 15, 4, 1, 0, 0, time.UTC)}}
	s = c.Compute(after, goals, testNow)
	if got := s.Activities["Anki"].Streak; got != 1 {
		t.Errorf("04:01 log: Streak = %d, want 1", got)
	}
}

func TestCompute_NowBeforeCutoffIsPreviousDay(t *testing.T) {
	c := newTestCalculator()
	goals := map[string]Goal{"Anki": {Target: 1, Period: PeriodDaily}}
	records := []Record{daysAgo("Anki", 1, 1)}

	// 16日の02:00はまだ15日扱い。15日分のログがあればストリークは途切れていない。
	now := time.Date(2026, time.March, 16, 2, 0, 0, 0, time.UTC)
	records = append(records, daysAgo("Anki", 0, 1))
	s := c.Compute(records, goals, now)
	if s.AsOf != testToday {
		t.Errorf("AsOf = %v, want %v", s.AsOf, testToday)
	}
	if got := s.Activities["Anki"].Streak; got != 2 {
		t.Errorf("Streak = %d, want 2", got)
	}
}

func TestCompute_WeeklyAllWindowsMet(t *testing.T) {
	c := newTestCalculator()
	var records []Record
	for w := 0; w < WeeklyWindowCount; w++ {
		records = append(records, daysAgo("Workout", 7*w, 150))
	}

	s := c.Compute(records, defaultGoals(), testNow)
	workout := s.Activities["Workout"]
	if workout.Compliance != 100 {
		t.Errorf("Compliance = %v, want 100", workout.Compliance)
	}
	if workout.Streak != 12 {
		t.Errorf("Streak = %d, want 12", workout.Streak)
	}
	if workout.Period != PeriodWeekly {
		t.Errorf("Period = %q, want weekly", workout.Period)
	}
}

func TestCompute_WeeklyFailingWindowBreaksStreak(t *testing.T) {
	tests := []struct {
		name           string
		failingWindow  int
		wantStreak     int
		wantCompliance float64
	}{
		{name: "最新ウィンドウが未達", failingWindow: 0, wantStreak: 0, wantCompliance: 91.7},
		{name: "3つ目のウィンドウが未達", failingWindow: 2, wantStreak: 2, wantCompliance: 91.7},
		{name: "最古のウィンドウが未達", failingWindow: 11, wantStreak: 11, wantCompliance: 91.7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCalculator()
			var records []Record
			for w := 0; w < WeeklyWindowCount; w++ {
				value := 150.0
				if w == tt.failingWindow {
					value = 100
				}
				records = append(records, daysAgo("Workout", 7*w, value))
			}

			s := c.Compute(records, defaultGoals(), testNow)
			workout := s.Activities["Workout"]
			if workout.Streak != tt.wantStreak {
				t.Errorf("Streak = %d, want %d", workout.Streak, tt.wantStreak)
			}
			if workout.Compliance != tt.wantCompliance {
				t.Errorf("Compliance = %v, want %v", workout.Compliance, tt.wantCompliance)
			}
		})
	}
}

func TestCompute_WeeklyNoResumptionAfterGap(t *testing.T) {
	c := newTestCalculator()
	// 最新と4〜11週前は達成、1〜3週前が未達
	records := []Record{daysAgo("Workout", 0, 200)}
	for w := 4; w < WeeklyWindowCount; w++ {
		records = append(records, daysAgo("Workout", 7*w, 200))
	}

	s := c.Compute(records, defaultGoals(), testNow)
	if got := s.Activities["Workout"].Streak; got != 1 {
		t.Errorf("Streak = %d, want 1", got)
	}
	if got := s.Activities["Workout"].Compliance; got != 75 {
		t.Errorf("Compliance = %v, want 75", got)
	}
}

func TestCompute_WeeklyMondayAlignment(t *testing.T) {
	// 2026-03-11 は水曜日
	now := time.Date(2026, time.March, 11, 12, 0, 0, 0, time.UTC)
	friday := time.Date(2026, time.March, 6, 12, 0, 0, 0, time.UTC)
	records := []Record{{Activity: "Workout", Value: 150, Timestamp: friday}}
	goals := map[string]Goal{"Workout": {Target: 150, Period: PeriodWeekly}}

	rolling := NewCalculator(Policy{CutoffHour: 4}).Compute(records, goals, now)
	if got := rolling.Activities["Workout"]; got.Current != 150 || got.Streak != 1 {
		t.Errorf("rolling: Current=%v Streak=%d, want 150/1", got.Current, got.Streak)
	}

	monday := NewCalculator(Policy{CutoffHour: 4, WeekAlignment: AlignMonday}).Compute(records, goals, now)
	if got := monday.Activities["Workout"]; got.Current != 0 || got.Streak != 0 {
		t.Errorf("monday: Current=%v Streak=%d, want 0/0", got.Current, got.Streak)
	}
	if got := monday.Activities["Workout"].Compliance; got != 8.3 {
		t.Errorf("monday: Compliance = %v, want 8.3", got)
	}
}

func TestCompute_MainStreakRequiresAllConditions(t *testing.T) {
	c := newTestCalculator()
	var records []Record
	for i := 0; i < 6; i++ {
		records = append(records, daysAgo("Sleep", i, 8))
		if i != 2 {
			records = append(records, daysAgo("Anki", i, 1))
		}
	}
	// 5日前のWorkoutは0〜5日前を終端とする7日間に含まれる
	records = append(records, daysAgo("Workout", 5, 150))

	s := c.Compute(records, defaultGoals(), testNow)
	if s.MainStreak != 2 {
		t.Errorf("MainStreak = %d, want 2", s.MainStreak)
	}
}

func TestCompute_MainStreakWeeklyTrailingWindow(t *testing.T) {
	c := newTestCalculator()
	var records []Record
	for i := 0; i < 10; i++ {
		records = append(records, daysAgo("Sleep", i, 8), daysAgo("Anki", i, 1))
	}
	records = append(records, daysAgo("Workout", 1, 150))

	s := c.Compute(records, defaultGoals(), testNow)
	// 2日前を終端とする7日間[8日前, 2日前]には1日前のWorkoutが含まれない
	if s.MainStreak != 2 {
		t.Errorf("MainStreak = %d, want 2", s.MainStreak)
	}
}

func TestCompute_MainStreakWithoutWeeklyActivity(t *testing.T) {
	c := newTestCalculator()
	var records []Record
	for i := 0; i < 3; i++ {
		records = append(records, daysAgo("Sleep", i, 8), daysAgo("Anki", i, 1))
	}

	s := c.Compute(records, defaultGoals(), testNow)
	if s.MainStreak != 0 {
		t.Errorf("MainStreak = %d, want 0", s.MainStreak)
	}
}

func TestCompute_UnsetGoalDroppedFromMainStreak(t *testing.T) {
	c := newTestCalculator()
	var records []Record
	for i := 0; i < 6; i++ {
		records = append(records, daysAgo("Sleep", i, 8))
	}
	records = append(records, daysAgo("Workout", 5, 150))

	goals := defaultGoals()
	goals["Anki"] = Goal{Target: 0, Period: PeriodDaily}

	s := c.Compute(records, goals, testNow)
	if s.MainStreak != 6 {
		t.Errorf("MainStreak = %d, want 6", s.MainStreak)
	}
	anki := s.Activities["Anki"]
	if anki.Compliance != 0 || anki.Streak != 0 {
		t.Errorf("unset goal: compliance=%v streak=%d, want 0/0", anki.Compliance, anki.Streak)
	}
}

func TestCompute_MainStreakNoConditions(t *testing.T) {
	c := NewCalculator(Policy{CutoffHour: 4})
	records := []Record{daysAgo("Sleep", 0, 8)}

	s := c.Compute(records, defaultGoals(), testNow)
	if s.MainStreak != 0 {
		t.Errorf("MainStreak = %d, want 0", s.MainStreak)
	}
}

func TestCompute_ExcusedDays(t *testing.T) {
	c := NewCalculator(Policy{
		CutoffHour: 4,
		Excused:    map[Date]bool{testToday.AddDays(-2): true},
	})
	records := []Record{
		daysAgo("Sleep", 0, 8),
		daysAgo("Sleep", 1, 8),
		daysAgo("Sleep", 3, 8),
	}

	s := c.Compute(records, defaultGoals(), testNow)
	sleep := s.Activities["Sleep"]
	if sleep.Streak != 3 {
		t.Errorf("Streak = %d, want 3", sleep.Streak)
	}
	// 分母は休養日を除いた6日
	if sleep.Compliance != 50 {
		t.Errorf("Compliance = %v, want 50", sleep.Compliance)
	}
}

func TestCompute_ExcusedDaysIgnoredWhenNotConfigured(t *testing.T) {
	c := newTestCalculator()
	records := []Record{
		daysAgo("Sleep", 0, 8),
		daysAgo("Sleep", 1, 8),
		daysAgo("Sleep", 3, 8),
	}

	s := c.Compute(records, defaultGoals(), testNow)
	if got := s.Activities["Sleep"].Streak; got != 2 {
		t.Errorf("Streak = %d, want 2", got)
	}
}

func TestCompute_Location(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	c := NewCalculator(Policy{CutoffHour: 4, Location: jst})
	goals := map[string]Goal{"Anki": {Target: 1, Period: PeriodDaily}}

	// UTC 2026-03-14 20:00 = JST 2026-03-15 05:00 → 15日
	records := []Record{{Activity: "Anki", Value: 1, Timestamp: time.Date(2026, time.March, 14, 20, 0, 0, 0, time.UTC)}}
	now := time.Date(2026, time.March, 15, 3, 0, 0, 0, time.UTC) // JST 12:00

	s := c.Compute(records, goals, now)
	if got := s.Activities["Anki"].Streak; got != 1 {
		t.Errorf("Streak = %d, want 1", got)
	}
}

func TestMainStreak_MatchesCompute(t *testing.T) {
	c := newTestCalculator()
	var records []Record
	for i := 0; i < 4; i++ {
		records = append(records, daysAgo("Sleep", i, 8), daysAgo("Anki", i, 2))
	}
	records = append(records, daysAgo("Workout", 3, 160))

	goals := defaultGoals()
	if got, want := c.MainStreak(records, goals, testNow), c.Compute(records, goals, testNow).MainStreak; got != want {
		t.Errorf("MainStreak = %d, Compute.MainStreak = %d", got, want)
	}
	if got := c.MainStreak(records, goals, testNow); got != 4 {
		t.Errorf("MainStreak = %d, want 4", got)
	}
}

func TestNewCalculator_Defaults(t *testing.T) {
	c := NewCalculator(Policy{})
	p := c.Policy()
	if p.Location != time.UTC {
		t.Errorf("Location = %v, want UTC", p.Location)
	}
	if p.WeekAlignment != AlignRolling {
		t.Errorf("WeekAlignment = %q, want rolling", p.WeekAlignment)
	}
}

func TestCompute_UnknownPeriodReadsAsDaily(t *testing.T) {
	c := newTestCalculator()
	goals := map[string]Goal{"Reading": {Target: 30, Period: "monthly"}}
	records := []Record{daysAgo("Reading", 0, 30)}

	s := c.Compute(records, goals, testNow)
	if got := s.Activities["Reading"]; got.Period != PeriodDaily || got.Streak != 1 {
		t.Errorf("Period=%q Streak=%d, want daily/1", got.Period, got.Streak)
	}
}
