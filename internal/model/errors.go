// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, chat, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeDuplicateEmail     = "DUPLICATE_EMAIL"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeNoCredentials      = "NO_CREDENTIALS"
	ErrCodeSessionInvalid     = "SESSION_INVALID"
	ErrCodeTokenInvalid       = "TOKEN_INVALID"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeLinkFailed         = "LINK_FAILED"
	ErrCodeThreadNotFound     = "THREAD_NOT_FOUND"
)

// NewValidationError は入力不備エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewDuplicateEmailError はメールアドレス重複エラーを生成する。
// 既存レコードのプロバイダーに応じてメッセージを出し分ける。
func NewDuplicateEmailError(provider AuthProvider) *APIError {
	if provider == AuthProviderGoogle {
		return &APIError{
			Code:     ErrCodeDuplicateEmail,
			Message:  "このメールアドレスはGoogleログインで登録済みです。Googleサインインを使用してください。",
			Category: "auth",
			Action:   "Googleサインインからログインしてください。",
		}
	}
	return &APIError{
		Code:     ErrCodeDuplicateEmail,
		Message:  "このメールアドレスは登録済みです。ログインしてください。",
		Category: "auth",
		Action:   "ログイン画面からログインしてください。",
	}
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// アカウント列挙を防ぐため、ユーザー不在とパスワード不一致を区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewNoCredentialsError は認証情報欠如エラーを生成する。
// セッションもBearerトークンも提示されなかった場合に使用する。
func NewNoCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeNoCredentials,
		Message:  "認証情報がありません。",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}

// NewSessionInvalidError は無効セッションエラーを生成する。
// セッションは存在するが参照先ユーザーを復元できない場合に使用する。
func NewSessionInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionInvalid,
		Message:  "セッションが無効または期限切れです。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewTokenInvalidError はトークン検証失敗エラーを生成する。
func NewTokenInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenInvalid,
		Message:  "トークンが無効または期限切れです。",
		Category: "auth",
		Action:   "ログインし直して新しいトークンを取得してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
// トークン発行後にアカウントが削除された場合などに使用する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewLinkFailedError はOAuthアカウントリンク失敗エラーを生成する。
func NewLinkFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeLinkFailed,
		Message:  "アカウントのリンクに失敗しました。",
		Category: "auth",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewThreadNotFoundError はスレッドが見つからない場合のエラーを生成する。
func NewThreadNotFoundError(threadID string) *APIError {
	return &APIError{
		Code:     ErrCodeThreadNotFound,
		Message:  fmt.Sprintf("指定されたスレッドが見つかりません: %s", threadID),
		Category: "chat",
		Action:   "スレッドIDを確認してください。",
	}
}
