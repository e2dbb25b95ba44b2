package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/habits/internal/model"
	"github.com/hitoshi/habits/internal/streak"
)

// PostgresGoalRepo はPostgreSQLを使用した目標リポジトリ。
type PostgresGoalRepo struct {
	db *sql.DB
}

// NewPostgresGoalRepo はPostgresGoalRepoを生成する。
func NewPostgresGoalRepo(db *sql.DB) *PostgresGoalRepo {
	return &PostgresGoalRepo{db: db}
}

// ListByUser はユーザーの目標を活動名順で返す。
func (r *PostgresGoalRepo) ListByUser(ctx context.Context, userID string) ([]model.Goal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, activity, target, period, unit, updated_at
		 FROM goals
		 WHERE user_id = $1
		 ORDER BY activity ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("目標一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanGoals(rows)
}

// ListAll は全ユーザーの目標を返す。
func (r *PostgresGoalRepo) ListAll(ctx context.Context) ([]model.Goal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, activity, target, period, unit, updated_at
		 FROM goals
		 ORDER BY user_id ASC, activity ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("全目標の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanGoals(rows)
}

// Upsert は(user_id, activity)単位で目標を冪等にUPSERTする。
func (r *PostgresGoalRepo) Upsert(ctx context.Context, goal *model.Goal) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO goals (user_id, activity, target, period, unit, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, activity) DO UPDATE SET
		   target = EXCLUDED.target,
		   period = EXCLUDED.period,
		   unit = EXCLUDED.unit,
		   updated_at = EXCLUDED.updated_at`,
		goal.UserID, goal.Activity, goal.Target, string(goal.Period), goal.Unit, goal.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("目標の保存に失敗しました: %w", err)
	}
	return nil
}

// scanGoals は目標の行を読み取る。
// 未知のperiod値はdailyとして扱う。
func scanGoals(rows *sql.Rows) ([]model.Goal, error) {
	var goals []model.Goal
	for rows.Next() {
		var g model.Goal
		var period string
		if err := rows.Scan(&g.UserID, &g.Activity, &g.Target, &period, &g.Unit, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("目標の読み取りに失敗しました: %w", err)
		}
		g.Period = streak.PeriodDaily
		if streak.Period(period) == streak.PeriodWeekly {
			g.Period = streak.PeriodWeekly
		}
		goals = append(goals, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("目標の走査に失敗しました: %w", err)
	}
	return goals, nil
}

// compile-time interface check
var _ GoalRepository = (*PostgresGoalRepo)(nil)
