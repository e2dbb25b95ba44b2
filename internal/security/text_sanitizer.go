// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はメモや表示名などユーザーが入力したテキストからHTMLを除去する。
// SSRFGuardService は外部サービスAPIへのリクエストをプライベートネットワークから隔離する。
package security

import (
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はプレーンテキスト入力のサニタイズ機能のインターフェースを定義する。
type TextSanitizer interface {
	// Sanitize は全てのHTMLタグを除去し、制御文字を取り除いた上で前後の空白を削る。
	// maxRunesが正の場合はその文字数で切り詰める。
	Sanitize(raw string, maxRunes int) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのStrictPolicyはスレッドセーフに共有できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はHTMLを除去したテキストを返す。
// StrictPolicyは出力をエスケープするため、タグ除去後に実体参照を元の文字へ戻す。
func (s *textSanitizer) Sanitize(raw string, maxRunes int) string {
	cleaned := html.UnescapeString(s.policy.Sanitize(raw))
	cleaned = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, cleaned)
	cleaned = strings.TrimSpace(cleaned)

	if maxRunes > 0 && utf8.RuneCountInString(cleaned) > maxRunes {
		runes := []rune(cleaned)
		cleaned = strings.TrimSpace(string(runes[:maxRunes]))
	}
	return cleaned
}
