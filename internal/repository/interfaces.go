// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hitoshi/habits/internal/model"
	"github.com/hitoshi/habits/internal/streak"
)

// ErrDuplicateEmail はメールアドレスが既に登録済みの場合に返される。
var ErrDuplicateEmail = errors.New("email already registered")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// CreateWithGoals はユーザーと初期目標を同一トランザクションで作成する。
	// メールアドレスが重複している場合はErrDuplicateEmailを返す。
	CreateWithGoals(ctx context.Context, user *model.User, goals []model.Goal) error

	// UpdateName は表示名を更新する。
	UpdateName(ctx context.Context, id, name string) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するgoals、logs、cheers、follows、days_off、sessions、service_tokensはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error

	// ListAll は全ユーザーを名前順で返す。
	ListAll(ctx context.Context) ([]*model.User, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired はbefore時点で期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// GoalRepository は活動目標の永続化インターフェース。
type GoalRepository interface {
	// ListByUser はユーザーの目標を活動名順で返す。
	ListByUser(ctx context.Context, userID string) ([]model.Goal, error)

	// ListAll は全ユーザーの目標を返す。リーダーボード計算に使用する。
	ListAll(ctx context.Context) ([]model.Goal, error)

	// Upsert は(user_id, activity)単位で目標を冪等にUPSERTする。
	Upsert(ctx context.Context, goal *model.Goal) error
}

// LogRepository は活動記録の永続化インターフェース。
type LogRepository interface {
	// Create は記録を作成する。
	Create(ctx context.Context, log *model.Log) error

	// CreateImported は外部サービスからインポートした記録を作成する。
	// 同一ユーザー・同一ExternalIDの記録が既にある場合は何もせずfalseを返す。
	CreateImported(ctx context.Context, log *model.Log) (bool, error)

	// FindByID は指定IDの記録を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Log, error)

	// ListByUser はユーザーの全記録を記録時刻の昇順で返す。
	ListByUser(ctx context.Context, userID string) ([]*model.Log, error)

	// ListByUserBetween はfrom以上to未満の記録時刻を持つ記録を昇順で返す。
	ListByUserBetween(ctx context.Context, userID string, from, to time.Time) ([]*model.Log, error)

	// ListAll は全ユーザーの記録を返す。リーダーボード計算に使用する。
	ListAll(ctx context.Context) ([]*model.Log, error)

	// ListFeed はviewerがフォローしているユーザーと本人の最新記録を返す。
	// 各記録には投稿者名とviewerが応援済みかどうかを付与する。
	ListFeed(ctx context.Context, viewerID string, limit int) ([]model.FeedEntry, error)

	// ListProofKeysByUser はユーザーの記録に添付された証拠画像キーを返す。
	ListProofKeysByUser(ctx context.Context, userID string) ([]string, error)

	// AddCheer は応援を登録し、記録の応援数を同一トランザクションで加算する。
	// 既に応援済みの場合は何もせずfalseを返す。
	AddCheer(ctx context.Context, logID, userID string) (bool, error)
}

// FollowRepository はフォロー関係の永続化インターフェース。
type FollowRepository interface {
	// Follow はフォロー関係を作成する。既にフォロー済みの場合は何もしない。
	Follow(ctx context.Context, followerID, followedID string) error

	// Unfollow はフォロー関係を削除する。存在しない場合は何もしない。
	Unfollow(ctx context.Context, followerID, followedID string) error

	// ListUsersWithFollowState はviewer以外の全ユーザーをフォロー状態付きで名前順に返す。
	ListUsersWithFollowState(ctx context.Context, viewerID string) ([]model.UserWithFollowState, error)

	// ListFollowedIDs はfollowerがフォローしているユーザーIDを返す。
	ListFollowedIDs(ctx context.Context, followerID string) ([]string, error)
}

// DayOffRepository は休養日の永続化インターフェース。
type DayOffRepository interface {
	// ListByUser はユーザーの休養日を日付順で返す。
	ListByUser(ctx context.Context, userID string) ([]streak.Date, error)

	// Add は休養日を登録する。既に登録済みの場合は何もしない。
	Add(ctx context.Context, userID string, date streak.Date) error

	// Remove は休養日を削除する。存在しない場合は何もしない。
	Remove(ctx context.Context, userID string, date streak.Date) error
}

// ServiceTokenRepository は外部サービストークンの永続化インターフェース。
type ServiceTokenRepository interface {
	// Upsert はトークンを保存する。既存トークンを置き換えた場合はlast_imported_atをリセットする。
	Upsert(ctx context.Context, token *model.ServiceToken) error

	// Delete はトークンを削除する。存在しない場合は何もしない。
	Delete(ctx context.Context, userID, service string) error

	// ListByService は指定サービスのトークンを全ユーザー分返す。インポートワーカーが使用する。
	ListByService(ctx context.Context, service string) ([]*model.ServiceToken, error)

	// ListByUser はユーザーが登録しているトークンを返す。
	ListByUser(ctx context.Context, userID string) ([]*model.ServiceToken, error)

	// UpdateLastImported は最後にインポートしたアクティビティの時刻を更新する。
	UpdateLastImported(ctx context.Context, userID, service string, at time.Time) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
