package model

import (
	"time"

	"github.com/hitoshi/habits/internal/streak"
)

// Goal はユーザーごとの活動目標を表す。
// Targetが0以下の目標は未設定として扱われる。
type Goal struct {
	UserID    string
	Activity  string
	Target    float64
	Period    streak.Period
	Unit      string
	UpdatedAt time.Time
}

// DayOff はストリーク計算で除外される休養日を表す。
type DayOff struct {
	UserID    string
	Date      streak.Date
	CreatedAt time.Time
}
