package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/habits/internal/model"
)

// PostgresLogRepo はPostgreSQLを使用した活動記録リポジトリ。
type PostgresLogRepo struct {
	db *sql.DB
}

// NewPostgresLogRepo はPostgresLogRepoを生成する。
func NewPostgresLogRepo(db *sql.DB) *PostgresLogRepo {
	return &PostgresLogRepo{db: db}
}

const logColumns = `l.id, l.user_id, l.activity, l.value, l.distance_km, l.note,
		        l.logged_at, l.proof_key, l.external_id, l.cheer_count, l.created_at`

// Create は記録を作成する。
func (r *PostgresLogRepo) Create(ctx context.Context, log *model.Log) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO logs (id, user_id, activity, value, distance_km, note, logged_at, proof_key, external_id, cheer_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10)`,
		log.ID, log.UserID, log.Activity, log.Value, nullFloat(log.DistanceKM), log.Note,
		log.Timestamp, log.ProofKey, nullString(log.ExternalID), log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("記録の作成に失敗しました: %w", err)
	}
	return nil
}

// CreateImported は外部サービスからインポートした記録を作成する。
// (user_id, external_id) が重複する場合は何もせずfalseを返す。
func (r *PostgresLogRepo) CreateImported(ctx context.Context, log *model.Log) (bool, error) {
	if log.ExternalID == "" {
		return false, fmt.Errorf("external id is required for imported log")
	}
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO logs (id, user_id, activity, value, distance_km, note, logged_at, proof_key, external_id, cheer_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, '', $8, 0, $9)
		 ON CONFLICT (user_id, external_id) WHERE external_id IS NOT NULL DO NOTHING`,
		log.ID, log.UserID, log.Activity, log.Value, nullFloat(log.DistanceKM), log.Note,
		log.Timestamp, log.ExternalID, log.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("インポート記録の作成に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// FindByID は指定IDの記録を取得する。見つからない場合はnilを返す。
func (r *PostgresLogRepo) FindByID(ctx context.Context, id string) (*model.Log, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+logColumns+`
		 FROM logs l
		 WHERE l.id = $1`,
		id,
	)
	log, err := scanLog(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("記録の取得に失敗しました: %w", err)
	}
	return log, nil
}

// ListByUser はユーザーの全記録を記録時刻の昇順で返す。
func (r *PostgresLogRepo) ListByUser(ctx context.Context, userID string) ([]*model.Log, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+logColumns+`
		 FROM logs l
		 WHERE l.user_id = $1
		 ORDER BY l.logged_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("記録一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanLogs(rows)
}

// ListByUserBetween はfrom以上to未満の記録時刻を持つ記録を昇順で返す。
func (r *PostgresLogRepo) ListByUserBetween(ctx context.Context, userID string, from, to time.Time) ([]*model.Log, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+logColumns+`
		 FROM logs l
		 WHERE l.user_id = $1 AND l.logged_at >= $2 AND l.logged_at < $3
		 ORDER BY l.logged_at ASC`,
		userID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("期間指定の記録取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanLogs(rows)
}

// ListAll は全ユーザーの記録を返す。
func (r *PostgresLogRepo) ListAll(ctx context.Context) ([]*model.Log, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+logColumns+`
		 FROM logs l
		 ORDER BY l.user_id ASC, l.logged_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("全記録の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanLogs(rows)
}

// ListFeed はviewerがフォローしているユーザーと本人の最新記録を新しい順に返す。
func (r *PostgresLogRepo) ListFeed(ctx context.Context, viewerID string, limit int) ([]model.FeedEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+logColumns+`, u.name,
		        EXISTS (SELECT 1 FROM cheers c WHERE c.log_id = l.id AND c.user_id = $1) AS cheered_by_me
		 FROM logs l
		 INNER JOIN users u ON u.id = l.user_id
		 WHERE l.user_id = $1
		    OR l.user_id IN (SELECT f.followed_id FROM follows f WHERE f.follower_id = $1)
		 ORDER BY l.logged_at DESC, l.id DESC
		 LIMIT $2`,
		viewerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var entries []model.FeedEntry
	for rows.Next() {
		var e model.FeedEntry
		var distance sql.NullFloat64
		var externalID sql.NullString
		if err := rows.Scan(
			&e.ID, &e.UserID, &e.Activity, &e.Value, &distance, &e.Note,
			&e.Timestamp, &e.ProofKey, &externalID, &e.CheerCount, &e.CreatedAt,
			&e.UserName, &e.CheeredByMe,
		); err != nil {
			return nil, fmt.Errorf("フィードの読み取りに失敗しました: %w", err)
		}
		e.DistanceKM = nullFloatValue(distance)
		e.ExternalID = nullStringValue(externalID)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("フィードの走査に失敗しました: %w", err)
	}
	return entries, nil
}

// ListProofKeysByUser はユーザーの記録に添付された証拠画像キーを返す。
func (r *PostgresLogRepo) ListProofKeysByUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT proof_key FROM logs WHERE user_id = $1 AND proof_key <> ''`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("証拠画像キーの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("証拠画像キーの読み取りに失敗しました: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("証拠画像キーの走査に失敗しました: %w", err)
	}
	return keys, nil
}

// AddCheer は応援を登録し、記録の応援数を同一トランザクションで加算する。
// 既に応援済みの場合は応援数を変更せずfalseを返す。
func (r *PostgresLogRepo) AddCheer(ctx context.Context, logID, userID string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO cheers (log_id, user_id, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (log_id, user_id) DO NOTHING`,
		logID, userID, time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("応援の登録に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE logs SET cheer_count = cheer_count + 1 WHERE id = $1`,
		logID,
	); err != nil {
		return false, fmt.Errorf("応援数の更新に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanLog(s rowScanner) (*model.Log, error) {
	log := &model.Log{}
	var distance sql.NullFloat64
	var externalID sql.NullString
	if err := s.Scan(
		&log.ID, &log.UserID, &log.Activity, &log.Value, &distance, &log.Note,
		&log.Timestamp, &log.ProofKey, &externalID, &log.CheerCount, &log.CreatedAt,
	); err != nil {
		return nil, err
	}
	log.DistanceKM = nullFloatValue(distance)
	log.ExternalID = nullStringValue(externalID)
	return log, nil
}

func scanLogs(rows *sql.Rows) ([]*model.Log, error) {
	var logs []*model.Log
	for rows.Next() {
		log, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("記録の読み取りに失敗しました: %w", err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("記録の走査に失敗しました: %w", err)
	}
	return logs, nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullFloatValue(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}

// compile-time interface check
var _ LogRepository = (*PostgresLogRepo)(nil)
