// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// PasswordHashが空のユーザー（CLIで作成されたユーザー）はパスワードログインできない。
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// 外部サービス名
const (
	ServiceStrava = "strava"
	ServiceGarmin = "garmin"
	ServiceApple  = "apple"
)

// IsKnownService は連携可能な外部サービス名かどうかを返す。
func IsKnownService(service string) bool {
	switch service {
	case ServiceStrava, ServiceGarmin, ServiceApple:
		return true
	default:
		return false
	}
}

// ServiceToken は外部サービスのアクセストークンを表す。
type ServiceToken struct {
	UserID         string
	Service        string
	Token          string
	LastImportedAt *time.Time // 最後にインポートしたアクティビティの開始時刻
	UpdatedAt      time.Time
}
