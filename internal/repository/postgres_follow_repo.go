package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/habits/internal/model"
)

// PostgresFollowRepo はPostgreSQLを使用したフォローリポジトリ。
type PostgresFollowRepo struct {
	db *sql.DB
}

// NewPostgresFollowRepo はPostgresFollowRepoを生成する。
func NewPostgresFollowRepo(db *sql.DB) *PostgresFollowRepo {
	return &PostgresFollowRepo{db: db}
}

// Follow はフォロー関係を作成する。既にフォロー済みの場合は何もしない。
func (r *PostgresFollowRepo) Follow(ctx context.Context, followerID, followedID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO follows (follower_id, followed_id, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (follower_id, followed_id) DO NOTHING`,
		followerID, followedID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("フォローの作成に失敗しました: %w", err)
	}
	return nil
}

// Unfollow はフォロー関係を削除する。
func (r *PostgresFollowRepo) Unfollow(ctx context.Context, followerID, followedID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM follows WHERE follower_id = $1 AND followed_id = $2`,
		followerID, followedID,
	)
	if err != nil {
		return fmt.Errorf("フォローの解除に失敗しました: %w", err)
	}
	return nil
}

// ListUsersWithFollowState はviewer以外の全ユーザーをフォロー状態付きで名前順に返す。
func (r *PostgresFollowRepo) ListUsersWithFollowState(ctx context.Context, viewerID string) ([]model.UserWithFollowState, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT u.id, u.email, u.name, u.created_at, u.updated_at,
		        (f.follower_id IS NOT NULL) AS following
		 FROM users u
		 LEFT JOIN follows f ON f.followed_id = u.id AND f.follower_id = $1
		 WHERE u.id <> $1
		 ORDER BY u.name ASC, u.id ASC`,
		viewerID,
	)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var users []model.UserWithFollowState
	for rows.Next() {
		var u model.UserWithFollowState
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt, &u.Following); err != nil {
			return nil, fmt.Errorf("ユーザーの読み取りに失敗しました: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ユーザーの走査に失敗しました: %w", err)
	}
	return users, nil
}

// ListFollowedIDs はfollowerがフォローしているユーザーIDを返す。
func (r *PostgresFollowRepo) ListFollowedIDs(ctx context.Context, followerID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT followed_id FROM follows WHERE follower_id = $1 ORDER BY created_at ASC`,
		followerID,
	)
	if err != nil {
		return nil, fmt.Errorf("フォロー先の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("フォロー先の読み取りに失敗しました: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("フォロー先の走査に失敗しました: %w", err)
	}
	return ids, nil
}

// compile-time interface check
var _ FollowRepository = (*PostgresFollowRepo)(nil)
