// Package model はドメインモデルを定義する。
package model

import "time"

// AuthProvider はユーザーの認証プロバイダーを表す。
// 最後に使用・リンクされたプロバイダーを示すタグであり、排他的なモードではない。
type AuthProvider string

const (
	// AuthProviderLocal はメールアドレスとパスワードによるローカル認証。
	AuthProviderLocal AuthProvider = "local"
	// AuthProviderGoogle はGoogle OAuthによる認証。
	AuthProviderGoogle AuthProvider = "google"
)

// User はサービス利用ユーザーを表す。
// メールアドレスはプロバイダーをまたいでグローバルに一意である。
// ローカル認証可能なユーザーはPasswordHashを持ち、
// Googleリンク済みユーザーはGoogleIDを持つ。両方を持つ（デュアル対応）場合もある。
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string // ローカル認証不可の場合は空
	GoogleID     string // Googleリンクなしの場合は空
	AuthProvider AuthProvider
	ProfilePic   string
	CreatedAt    time.Time
	LastLoginAt  time.Time
}

// Session はユーザーのログインセッションを表す。
// OAuthコールバック成功時にのみ作成され、ログアウトで破棄される。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
