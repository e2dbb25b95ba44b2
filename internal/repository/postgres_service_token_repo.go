package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/habits/internal/model"
)

// PostgresServiceTokenRepo はPostgreSQLを使用した外部サービストークンリポジトリ。
type PostgresServiceTokenRepo struct {
	db *sql.DB
}

// NewPostgresServiceTokenRepo はPostgresServiceTokenRepoを生成する。
func NewPostgresServiceTokenRepo(db *sql.DB) *PostgresServiceTokenRepo {
	return &PostgresServiceTokenRepo{db: db}
}

// Upsert はトークンを保存する。
// トークンが変わった場合は別アカウントとみなしlast_imported_atをリセットする。
func (r *PostgresServiceTokenRepo) Upsert(ctx context.Context, token *model.ServiceToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO service_tokens (user_id, service, token, last_imported_at, updated_at)
		 VALUES ($1, $2, $3, NULL, $4)
		 ON CONFLICT (user_id, service) DO UPDATE SET
		   token = EXCLUDED.token,
		   last_imported_at = CASE WHEN service_tokens.token = EXCLUDED.token
		                           THEN service_tokens.last_imported_at ELSE NULL END,
		   updated_at = EXCLUDED.updated_at`,
		token.UserID, token.Service, token.Token, token.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert service token: %w", err)
	}
	return nil
}

// Delete はトークンを削除する。
func (r *PostgresServiceTokenRepo) Delete(ctx context.Context, userID, service string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM service_tokens WHERE user_id = $1 AND service = $2`,
		userID, service,
	)
	if err != nil {
		return fmt.Errorf("failed to delete service token: %w", err)
	}
	return nil
}

// ListByService は指定サービスのトークンを全ユーザー分返す。
func (r *PostgresServiceTokenRepo) ListByService(ctx context.Context, service string) ([]*model.ServiceToken, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, service, token, last_imported_at, updated_at
		 FROM service_tokens
		 WHERE service = $1
		 ORDER BY last_imported_at ASC NULLS FIRST`,
		service,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list service tokens: %w", err)
	}
	defer rows.Close()

	return scanServiceTokens(rows)
}

// ListByUser はユーザーが登録しているトークンを返す。
func (r *PostgresServiceTokenRepo) ListByUser(ctx context.Context, userID string) ([]*model.ServiceToken, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, service, token, last_imported_at, updated_at
		 FROM service_tokens
		 WHERE user_id = $1
		 ORDER BY service ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list user service tokens: %w", err)
	}
	defer rows.Close()

	return scanServiceTokens(rows)
}

// UpdateLastImported は最後にインポートしたアクティビティの時刻を更新する。
func (r *PostgresServiceTokenRepo) UpdateLastImported(ctx context.Context, userID, service string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE service_tokens SET last_imported_at = $3 WHERE user_id = $1 AND service = $2`,
		userID, service, at,
	)
	if err != nil {
		return fmt.Errorf("failed to update last imported time: %w", err)
	}
	return nil
}

func scanServiceTokens(rows *sql.Rows) ([]*model.ServiceToken, error) {
	var tokens []*model.ServiceToken
	for rows.Next() {
		t := &model.ServiceToken{}
		var lastImported sql.NullTime
		if err := rows.Scan(&t.UserID, &t.Service, &t.Token, &lastImported, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan service token: %w", err)
		}
		if lastImported.Valid {
			at := lastImported.Time
			t.LastImportedAt = &at
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate service tokens: %w", err)
	}
	return tokens, nil
}

// compile-time interface check
var _ ServiceTokenRepository = (*PostgresServiceTokenRepo)(nil)
