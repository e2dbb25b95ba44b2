// Package streak は活動ログと目標から達成率と連続記録（ストリーク）を算出する。
//
// 計算はログ全体に対する状態を持たない畳み込みとして実装されており、
// 呼び出しのたびに最初から再計算する。ログが無い場合は達成率・ストリークともに0となり、
// エラーにはならない。
package streak

import (
	"math"
	"time"
)

// Period は目標の集計単位を表す。
type Period string

const (
	// PeriodDaily は1日ごとに集計する目標。
	PeriodDaily Period = "daily"
	// PeriodWeekly は週（7日間のウィンドウ）ごとに集計する目標。
	PeriodWeekly Period = "weekly"
)

// WeekAlignment は週次ウィンドウの区切り方を表す。
type WeekAlignment string

const (
	// AlignRolling は今日を終端とする直近7日間を1ウィンドウとする。
	AlignRolling WeekAlignment = "rolling"
	// AlignMonday は月曜始まりのISO週を1ウィンドウとする（今週は途中まで）。
	AlignMonday WeekAlignment = "monday"
)

const (
	// DailyWindowDays は日次達成率の対象日数。
	DailyWindowDays = 7
	// WeeklyWindowCount は週次達成率の対象ウィンドウ数。
	WeeklyWindowCount = 12
)

// Record は計算に必要なログの最小限の情報。
type Record struct {
	Activity  string
	Value     float64
	Timestamp time.Time
}

// Goal は活動ごとの目標値と集計単位。
type Goal struct {
	Target float64
	Period Period
}

// IsSet は目標が有効（正の値）かどうかを返す。
// 0以下の目標は未設定として扱い、達成率・ストリークの対象外とする。
func (g Goal) IsSet() bool {
	return g.Target > 0
}

// Policy は計算ルールを保持する。
type Policy struct {
	// CutoffHour は日付の区切り時刻。この時刻より前のログは前日に帰属する。
	CutoffHour int
	// Location は帰属日を決めるタイムゾーン。nilの場合はUTC。
	Location *time.Location
	// WeekAlignment は週次ウィンドウの区切り方。空の場合はAlignRolling。
	WeekAlignment WeekAlignment
	// MainDaily はメインストリークで毎日の達成が必要な活動。
	MainDaily []string
	// MainWeekly はメインストリークで直近7日間の合計が必要な活動。
	MainWeekly string
	// Excused は休養日。含まれる日はストリークを伸ばしも途切れさせもしない。
	Excused map[Date]bool
}

// ActivityResult は1活動分の計算結果。
type ActivityResult struct {
	Activity   string
	Period     Period
	Target     float64
	Current    float64 // 今日（日次）または最新ウィンドウ（週次）の合計
	Compliance float64 // 達成率（%、小数第1位まで）
	Streak     int
}

// Summary はユーザー1人分の計算結果。
type Summary struct {
	AsOf       Date
	Activities map[string]ActivityResult
	MainStreak int
}

// Calculator はPolicyに従って達成率とストリークを算出する。
type Calculator struct {
	policy Policy
}

// NewCalculator はCalculatorを生成する。
func NewCalculator(policy Policy) *Calculator {
	if policy.Location == nil {
		policy.Location = time.UTC
	}
	if policy.WeekAlignment == "" {
		policy.WeekAlignment = AlignRolling
	}
	return &Calculator{policy: policy}
}

// Policy は正規化済みのPolicyを返す。
func (c *Calculator) Policy() Policy {
	return c.policy
}

// Today はnowの帰属日を返す。締め時刻前であれば前日が「今日」になる。
func (c *Calculator) Today(now time.Time) Date {
	return EffectiveDate(now, c.policy.CutoffHour, c.policy.Location)
}

// Compute はログ全体と目標から達成率・ストリーク・メインストリークを算出する。
func (c *Calculator) Compute(records []Record, goals map[string]Goal, now time.Time) Summary {
	today := c.Today(now)
	l := c.newLedger(records)

	summary := Summary{
		AsOf:       today,
		Activities: make(map[string]ActivityResult, len(goals)),
	}

	for activity, goal := range goals {
		res := ActivityResult{
			Activity: activity,
			Period:   normalizePeriod(goal.Period),
			Target:   goal.Target,
		}
		if res.Period == PeriodWeekly {
			windows := c.windows(today)
			res.Current = l.rangeTotal(activity, windows[0].start, windows[0].end)
			if goal.IsSet() {
				res.Compliance, res.Streak = l.weekly(activity, goal.Target, windows)
			}
		} else {
			res.Current = l.total(activity, today)
			if goal.IsSet() {
				res.Compliance = l.dailyCompliance(activity, goal.Target, today, c.excused)
				res.Streak = l.dailyStreak(activity, goal.Target, today, c.excused)
			}
		}
		summary.Activities[activity] = res
	}

	summary.MainStreak = c.mainStreak(l, goals, today)
	return summary
}

// MainStreak はメインストリークのみを算出する。リーダーボードで使用する。
func (c *Calculator) MainStreak(records []Record, goals map[string]Goal, now time.Time) int {
	return c.mainStreak(c.newLedger(records), goals, c.Today(now))
}

func (c *Calculator) mainStreak(l *ledger, goals map[string]Goal, today Date) int {
	var daily []string
	for _, activity := range c.policy.MainDaily {
		if goals[activity].IsSet() {
			daily = append(daily, activity)
		}
	}
	weekly := goals[c.policy.MainWeekly]
	hasWeekly := c.policy.MainWeekly != "" && weekly.IsSet()

	if len(daily) == 0 && !hasWeekly {
		return 0
	}
	if !l.hasAny {
		return 0
	}

	met := func(d Date) bool {
		for _, activity := range daily {
			if l.total(activity, d) < goals[activity].Target {
				return false
			}
		}
		if hasWeekly && l.rangeTotal(c.policy.MainWeekly, d.AddDays(-6), d) < weekly.Target {
			return false
		}
		return true
	}

	n := 0
	for d := today; !d.Before(l.earliest); d = d.AddDays(-1) {
		if c.excused(d) {
			continue
		}
		if !met(d) {
			break
		}
		n++
	}
	return n
}

func (c *Calculator) excused(d Date) bool {
	return c.policy.Excused[d]
}

// window は週次集計の1ウィンドウ（両端を含む）。
type window struct {
	start Date
	end   Date
}

// windows は直近WeeklyWindowCount個のウィンドウを新しい順に返す。
func (c *Calculator) windows(today Date) []window {
	out := make([]window, WeeklyWindowCount)
	switch c.policy.WeekAlignment {
	case AlignMonday:
		monday := today.WeekStart()
		for w := range out {
			start := monday.AddDays(-7 * w)
			out[w] = window{start: start, end: start.AddDays(6)}
		}
	default:
		for w := range out {
			end := today.AddDays(-7 * w)
			out[w] = window{start: end.AddDays(-6), end: end}
		}
	}
	return out
}

// ledger は活動・帰属日ごとの合計値。
type ledger struct {
	totals   map[string]map[Date]float64
	first    map[string]Date
	earliest Date
	hasAny   bool
}

func (c *Calculator) newLedger(records []Record) *ledger {
	l := &ledger{
		totals: make(map[string]map[Date]float64),
		first:  make(map[string]Date),
	}
	for _, r := range records {
		d := EffectiveDate(r.Timestamp, c.policy.CutoffHour, c.policy.Location)
		byDate, ok := l.totals[r.Activity]
		if !ok {
			byDate = make(map[Date]float64)
			l.totals[r.Activity] = byDate
		}
		byDate[d] += r.Value

		if f, ok := l.first[r.Activity]; !ok || d.Before(f) {
			l.first[r.Activity] = d
		}
		if !l.hasAny || d.Before(l.earliest) {
			l.earliest = d
			l.hasAny = true
		}
	}
	return l
}

func (l *ledger) total(activity string, d Date) float64 {
	return l.totals[activity][d]
}

func (l *ledger) rangeTotal(activity string, start, end Date) float64 {
	byDate := l.totals[activity]
	if len(byDate) == 0 {
		return 0
	}
	var sum float64
	for d := start; !end.Before(d); d = d.AddDays(1) {
		sum += byDate[d]
	}
	return sum
}

func (l *ledger) dailyCompliance(activity string, target float64, today Date, excused func(Date) bool) float64 {
	met, days := 0, 0
	for i := 0; i < DailyWindowDays; i++ {
		d := today.AddDays(-i)
		if excused(d) {
			continue
		}
		days++
		if l.total(activity, d) >= target {
			met++
		}
	}
	if days == 0 {
		return 0
	}
	return percent(met, days)
}

func (l *ledger) dailyStreak(activity string, target float64, today Date, excused func(Date) bool) int {
	first, ok := l.first[activity]
	if !ok {
		return 0
	}
	n := 0
	for d := today; !d.Before(first); d = d.AddDays(-1) {
		if excused(d) {
			continue
		}
		if l.total(activity, d) < target {
			break
		}
		n++
	}
	return n
}

// weekly は週次の達成率と、最新ウィンドウから遡った連続達成数を返す。
// 未達のウィンドウが見つかった時点でストリークは打ち切る。
func (l *ledger) weekly(activity string, target float64, windows []window) (float64, int) {
	met, streak := 0, 0
	broken := false
	for _, w := range windows {
		if l.rangeTotal(activity, w.start, w.end) >= target {
			met++
			if !broken {
				streak++
			}
			continue
		}
		broken = true
	}
	return percent(met, len(windows)), streak
}

func normalizePeriod(p Period) Period {
	if p == PeriodWeekly {
		return PeriodWeekly
	}
	return PeriodDaily
}

// percent はn/totalを百分率にし、小数第1位で丸める。
func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}
