package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/habits/internal/streak"
)

// PostgresDayOffRepo はPostgreSQLを使用した休養日リポジトリ。
type PostgresDayOffRepo struct {
	db *sql.DB
}

// NewPostgresDayOffRepo はPostgresDayOffRepoを生成する。
func NewPostgresDayOffRepo(db *sql.DB) *PostgresDayOffRepo {
	return &PostgresDayOffRepo{db: db}
}

// ListByUser はユーザーの休養日を日付順で返す。
func (r *PostgresDayOffRepo) ListByUser(ctx context.Context, userID string) ([]streak.Date, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT to_char(day, 'YYYY-MM-DD') FROM days_off WHERE user_id = $1 ORDER BY day ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("休養日の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var dates []streak.Date
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("休養日の読み取りに失敗しました: %w", err)
		}
		d, err := streak.ParseDate(s)
		if err != nil {
			return nil, fmt.Errorf("休養日の解析に失敗しました: %w", err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("休養日の走査に失敗しました: %w", err)
	}
	return dates, nil
}

// Add は休養日を登録する。既に登録済みの場合は何もしない。
func (r *PostgresDayOffRepo) Add(ctx context.Context, userID string, date streak.Date) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO days_off (user_id, day, created_at)
		 VALUES ($1, $2::date, $3)
		 ON CONFLICT (user_id, day) DO NOTHING`,
		userID, date.String(), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("休養日の登録に失敗しました: %w", err)
	}
	return nil
}

// Remove は休養日を削除する。
func (r *PostgresDayOffRepo) Remove(ctx context.Context, userID string, date streak.Date) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM days_off WHERE user_id = $1 AND day = $2::date`,
		userID, date.String(),
	)
	if err != nil {
		return fmt.Errorf("休養日の削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ DayOffRepository = (*PostgresDayOffRepo)(nil)
