// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, activity, social, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeEmailTaken         = "EMAIL_TAKEN"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeInvalidEmail       = "INVALID_EMAIL"
	ErrCodeWeakPassword       = "WEAK_PASSWORD"
	ErrCodeInvalidName        = "INVALID_NAME"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeUnknownActivity    = "UNKNOWN_ACTIVITY"
	ErrCodeInvalidActivity    = "INVALID_ACTIVITY"
	ErrCodeInvalidTarget      = "INVALID_TARGET"
	ErrCodeInvalidValue       = "INVALID_VALUE"
	ErrCodeInvalidDate        = "INVALID_DATE"
	ErrCodeProofRequired      = "PROOF_REQUIRED"
	ErrCodeInvalidProof       = "INVALID_PROOF"
	ErrCodeProofTooLarge      = "PROOF_TOO_LARGE"
	ErrCodeLogNotFound        = "LOG_NOT_FOUND"
	ErrCodeSelfCheer          = "SELF_CHEER"
	ErrCodeSelfFollow         = "SELF_FOLLOW"
	ErrCodeUnknownService     = "UNKNOWN_SERVICE"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrCodeCSRFInvalid        = "CSRF_INVALID"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログインするか、別のメールアドレスで登録してください。",
	}
}

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
// メールアドレスの存在有無は区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewInvalidEmailError は不正なメールアドレスエラーを生成する。
func NewInvalidEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  "メールアドレスの形式が正しくありません。",
		Category: "validation",
		Action:   "有効なメールアドレスを入力してください。",
	}
}

// NewWeakPasswordError は短すぎるパスワードのエラーを生成する。
func NewWeakPasswordError(minLength int) *APIError {
	return &APIError{
		Code:     ErrCodeWeakPassword,
		Message:  fmt.Sprintf("パスワードは%d文字以上で入力してください。", minLength),
		Category: "validation",
		Action:   "より長いパスワードを設定してください。",
	}
}

// NewInvalidNameError は表示名の不正エラーを生成する。
func NewInvalidNameError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidName,
		Message:  "表示名が空、または長すぎます。",
		Category: "validation",
		Action:   "1〜50文字の表示名を入力してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewUnknownActivityError は未登録の活動に対するエラーを生成する。
func NewUnknownActivityError(activity string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownActivity,
		Message:  fmt.Sprintf("登録されていない活動です: %s", activity),
		Category: "activity",
		Action:   "目標設定から活動を追加してから記録してください。",
	}
}

// NewInvalidActivityError は活動名の形式エラーを生成する。
func NewInvalidActivityError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidActivity,
		Message:  "活動名が空、または長すぎます。",
		Category: "validation",
		Action:   "1〜50文字の活動名を入力してください。",
	}
}

// NewInvalidTargetError は目標値の不正エラーを生成する。
func NewInvalidTargetError(target float64) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTarget,
		Message:  fmt.Sprintf("無効な目標値です: %g", target),
		Category: "validation",
		Action:   "0以上の数値を指定してください。0を指定すると目標は未設定になります。",
	}
}

// NewInvalidValueError は記録値の不正エラーを生成する。
func NewInvalidValueError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidValue,
		Message:  fmt.Sprintf("無効な値です: %s", field),
		Category: "validation",
		Action:   "0以上の数値を入力してください。",
	}
}

// NewInvalidDateError は日付形式の不正エラーを生成する。
func NewInvalidDateError(date string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDate,
		Message:  fmt.Sprintf("無効な日付です: %s", date),
		Category: "validation",
		Action:   "日付はYYYY-MM-DD形式で指定してください。",
	}
}

// NewProofRequiredError は証拠画像未添付エラーを生成する。
func NewProofRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeProofRequired,
		Message:  "記録には証拠画像の添付が必要です。",
		Category: "activity",
		Action:   "PNGまたはJPEG画像を添付してください。",
	}
}

// NewInvalidProofError は証拠画像の形式エラーを生成する。
func NewInvalidProofError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidProof,
		Message:  "証拠画像の形式に対応していません。",
		Category: "validation",
		Action:   "PNGまたはJPEG画像を添付してください。",
	}
}

// NewProofTooLargeError は証拠画像のサイズ超過エラーを生成する。
func NewProofTooLargeError(maxBytes int64) *APIError {
	return &APIError{
		Code:     ErrCodeProofTooLarge,
		Message:  fmt.Sprintf("証拠画像のサイズが上限（%dバイト）を超えています。", maxBytes),
		Category: "validation",
		Action:   "画像を縮小してから再度お試しください。",
	}
}

// NewLogNotFoundError は記録が見つからない場合のエラーを生成する。
func NewLogNotFoundError(logID string) *APIError {
	return &APIError{
		Code:     ErrCodeLogNotFound,
		Message:  fmt.Sprintf("指定された記録が見つかりません: %s", logID),
		Category: "activity",
		Action:   "記録IDを確認してください。",
	}
}

// NewSelfCheerError は自分の記録への応援エラーを生成する。
func NewSelfCheerError() *APIError {
	return &APIError{
		Code:     ErrCodeSelfCheer,
		Message:  "自分の記録は応援できません。",
		Category: "social",
		Action:   "フォローしている友達の記録を応援してください。",
	}
}

// NewSelfFollowError は自分自身のフォローエラーを生成する。
func NewSelfFollowError() *APIError {
	return &APIError{
		Code:     ErrCodeSelfFollow,
		Message:  "自分自身はフォローできません。",
		Category: "social",
		Action:   "他のユーザーを選択してください。",
	}
}

// NewUnknownServiceError は未対応の外部サービスエラーを生成する。
func NewUnknownServiceError(service string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownService,
		Message:  fmt.Sprintf("対応していない外部サービスです: %s", service),
		Category: "validation",
		Action:   "strava、garmin、apple のいずれかを指定してください。",
	}
}

// NewRateLimitExceededError はレート制限超過エラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterヘッダーの秒数だけ待ってから再度お試しください。",
	}
}

// NewCSRFInvalidError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
