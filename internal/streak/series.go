package streak

import (
	"sort"
	"time"
)

// WeekPoint は月曜始まりの1週間分の活動別合計。
type WeekPoint struct {
	WeekStart Date               `json:"week_start"`
	Totals    map[string]float64 `json:"totals"`
}

// HeatCell はISO週・曜日ごとのログ件数。
type HeatCell struct {
	ISOYear int    `json:"iso_year"`
	ISOWeek int    `json:"iso_week"`
	Weekday string `json:"weekday"`
	Count   int    `json:"count"`
}

// WeeklySeries は直近WeeklyWindowCount週（月曜始まり）の活動別合計を古い順に返す。
// activitiesに含まれる活動は、ログが無い週でも0として出力する。
func (c *Calculator) WeeklySeries(records []Record, activities []string, now time.Time) []WeekPoint {
	thisWeek := c.Today(now).WeekStart()
	first := thisWeek.AddDays(-7 * (WeeklyWindowCount - 1))

	points := make([]WeekPoint, WeeklyWindowCount)
	index := make(map[Date]int, WeeklyWindowCount)
	for i := range points {
		start := first.AddDays(7 * i)
		totals := make(map[string]float64, len(activities))
		for _, a := range activities {
			totals[a] = 0
		}
		points[i] = WeekPoint{WeekStart: start, Totals: totals}
		index[start] = i
	}

	for _, r := range records {
		d := EffectiveDate(r.Timestamp, c.policy.CutoffHour, c.policy.Location)
		i, ok := index[d.WeekStart()]
		if !ok {
			continue
		}
		points[i].Totals[r.Activity] += r.Value
	}
	return points
}

// Heatmap は直近WeeklyWindowCount週のログ件数をISO週・曜日ごとに集計する。
// 結果は週の昇順、週内は月曜から日曜の順に並ぶ。
func (c *Calculator) Heatmap(records []Record, now time.Time) []HeatCell {
	today := c.Today(now)
	from := today.WeekStart().AddDays(-7 * (WeeklyWindowCount - 1))

	counts := make(map[Date]int)
	for _, r := range records {
		d := EffectiveDate(r.Timestamp, c.policy.CutoffHour, c.policy.Location)
		if d.Before(from) || today.Before(d) {
			continue
		}
		counts[d]++
	}

	days := make([]Date, 0, len(counts))
	for d := range counts {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	cells := make([]HeatCell, 0, len(days))
	for _, d := range days {
		y, w := d.ISOWeek()
		cells = append(cells, HeatCell{
			ISOYear: y,
			ISOWeek: w,
			Weekday: d.Weekday().String()[:3],
			Count:   counts[d],
		})
	}
	return cells
}
