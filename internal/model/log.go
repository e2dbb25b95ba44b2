package model

import "time"

// Log は1件の活動記録を表す。
// 作成後に変更されるのは他ユーザーによる応援数のみ。
type Log struct {
	ID         string
	UserID     string
	Activity   string
	Value      float64
	DistanceKM *float64
	Note       string
	Timestamp  time.Time
	ProofKey   string // 証拠画像のストレージキー（無ければ空）
	ExternalID string // 外部サービスからのインポート元ID（例: strava:123）
	CheerCount int
	CreatedAt  time.Time
}

// FeedEntry はソーシャルフィードの1件を表す。
type FeedEntry struct {
	Log
	UserName    string
	CheeredByMe bool
}

// UserWithFollowState は他ユーザーとフォロー状態を結合したモデル。
type UserWithFollowState struct {
	User
	Following bool
}

// LeaderboardEntry はリーダーボードの1行を表す。
type LeaderboardEntry struct {
	Rank       int
	UserID     string
	Name       string
	MainStreak int
}
