package streak

import (
	"fmt"
	"time"
)

// dateLayout はDateの文字列表現（YYYY-MM-DD）。
const dateLayout = "2006-01-02"

// Date はタイムゾーンに依存しない暦日を表す。
// 比較可能な値型のため、mapのキーとしてそのまま使用できる。
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf は時刻が属する暦日を返す。時刻のロケーションはそのまま使われる。
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate はYYYY-MM-DD形式の文字列をDateに変換する。
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// EffectiveDate はログの帰属日を返す。
// タイムスタンプをlocに変換し、時刻がcutoffHour時より前であれば前日に帰属させる。
// locがnilの場合はUTCを使用する。
func EffectiveDate(ts time.Time, cutoffHour int, loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	local := ts.In(loc)
	d := DateOf(local)
	if local.Hour() < cutoffHour {
		return d.AddDays(-1)
	}
	return d
}

// AddDays はn日後（負数なら前）の暦日を返す。
func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC))
}

// Before はdがoより前の日付かどうかを返す。
func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// IsZero はゼロ値かどうかを返す。
func (d Date) IsZero() bool {
	return d == Date{}
}

// Weekday は曜日を返す。
func (d Date) Weekday() time.Weekday {
	return d.midnight(time.UTC).Weekday()
}

// ISOWeek はISO 8601の年と週番号を返す。
func (d Date) ISOWeek() (year, week int) {
	return d.midnight(time.UTC).ISOWeek()
}

// WeekStart はdを含む週の月曜日を返す。
func (d Date) WeekStart() Date {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDays(-offset)
}

// Start はloc上でこの日が始まる時刻（cutoffHour時）を返す。
// 帰属日の範囲検索（[Start, 翌日のStart)）に使用する。
func (d Date) Start(cutoffHour int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, cutoffHour, 0, 0, 0, loc)
}

// String はYYYY-MM-DD形式の文字列を返す。
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// MarshalText はDateをYYYY-MM-DD形式でエンコードする。
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText はYYYY-MM-DD形式の文字列をデコードする。
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) midnight(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}
