package streak

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEffectiveDate(t *testing.T) {
	tests := []struct {
		name string
		ts   time.Time
		want string
	}{
		{"締め時刻の1分前", time.Date(2026, 3, 15, 3, 59, 0, 0, time.UTC), "2026-03-14"},
		{"締め時刻ちょうど", time.Date(2026, 3, 15, 4, 0, 0, 0, time.UTC), "2026-03-15"},
		{"締め時刻の1分後", time.Date(2026, 3, 15, 4, 1, 0, 0, time.UTC), "2026-03-15"},
		{"深夜0時", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), "2026-02-28"},
		{"年またぎ", time.Date(2026, 1, 1, 2, 0, 0, 0, time.UTC), "2025-12-31"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EffectiveDate(tt.ts, 4, nil).String(); got != tt.want {
				t.Errorf("EffectiveDate = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestEffectiveDate_ZeroCutoff(t *testing.T) {
	got := EffectiveDate(time.Date(2026, 3, 15, 0, 30, 0, 0, time.UTC), 0, time.UTC)
	if got.String() != "2026-03-15" {
		t.Errorf("EffectiveDate = %s, want 2026-03-15", got)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != (Date{Year: 2024, Month: time.February, Day: 29}) {
		t.Errorf("ParseDate = %+v", d)
	}

	if _, err := ParseDate("2026-13-01"); err == nil {
		t.Error("invalid month should return error")
	}
	if _, err := ParseDate("yesterday"); err == nil {
		t.Error("non-date string should return error")
	}
}

func TestDate_AddDaysAndBefore(t *testing.T) {
	d := Date{Year: 2026, Month: time.February, Day: 27}
	if got := d.AddDays(2).String(); got != "2026-03-01" {
		t.Errorf("AddDays(2) = %s, want 2026-03-01", got)
	}
	if got := d.AddDays(-58).String(); got != "2025-12-31" {
		t.Errorf("AddDays(-58) = %s, want 2025-12-31", got)
	}
	if !d.Before(d.AddDays(1)) {
		t.Error("d should be before d+1")
	}
	if d.Before(d) {
		t.Error("d should not be before itself")
	}
}

func TestDate_WeekStart(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2026-03-09", "2026-03-09"}, // 月
		{"2026-03-11", "2026-03-09"}, // 水
		{"2026-03-15", "2026-03-09"}, // 日
		{"2026-03-02", "2026-03-02"},
	}
	for _, tt := range tests {
		d, _ := ParseDate(tt.in)
		if got := d.WeekStart().String(); got != tt.want {
			t.Errorf("WeekStart(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestDate_Start(t *testing.T) {
	d := Date{Year: 2026, Month: time.March, Day: 15}
	got := d.Start(4, time.UTC)
	want := time.Date(2026, 3, 15, 4, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Start = %v, want %v", got, want)
	}
}

func TestDate_JSON(t *testing.T) {
	d := Date{Year: 2026, Month: time.March, Day: 5}
	b, err := json.Marshal(map[string]Date{"date": d})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"date":"2026-03-05"}` {
		t.Errorf("json = %s", b)
	}

	var out struct {
		Date Date `json:"date"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Date != d {
		t.Errorf("unmarshal = %v, want %v", out.Date, d)
	}
}
