// Package storage は記録に添付する証拠画像の保存先を提供する。
//
// S3_ENDPOINTが設定されている場合はMinIO/S3互換ストレージ、
// 未設定の場合はUPLOAD_DIR配下のローカルファイルに保存する。
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/hitoshi/habits/internal/streak"
)

// ErrInvalidKey はキーがストレージ外を指す場合に返される。
var ErrInvalidKey = errors.New("invalid proof key")

// ProofStore は証拠画像の保存先のインターフェース。
type ProofStore interface {
	// Save はキーに画像を保存する。
	Save(ctx context.Context, key, contentType string, data []byte) error
	// URL は画像を取得するためのURLを返す。
	URL(ctx context.Context, key string) (string, error)
	// Delete は画像を削除する。存在しない場合はエラーにしない。
	Delete(ctx context.Context, key string) error
}

// ProofKey は証拠画像のキーを組み立てる。
// 形式: {userID}/{有効日付}/{unix秒}_{活動名}.{拡張子}
func ProofKey(userID string, date streak.Date, ts time.Time, activity, ext string) string {
	return fmt.Sprintf("%s/%s/%d_%s.%s", userID, date.String(), ts.Unix(), safeSegment(activity), ext)
}

// safeSegment は活動名をパスの1要素として安全な文字列に変換する。
func safeSegment(s string) string {
	out := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, s)
	if out == "" {
		return "activity"
	}
	return out
}

// validateKey はキーが相対パスで上位ディレクトリを参照しないことを検証する。
func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return ErrInvalidKey
	}
	if path.Clean(key) != key {
		return ErrInvalidKey
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." {
			return ErrInvalidKey
		}
	}
	return nil
}
