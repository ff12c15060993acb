// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kyohei/chatbridge/internal/model"
)

// ErrDuplicateEmail はメールアドレスの一意制約違反を表す。
// 同時signupの競合はストレージ層の一意制約で検出され、このエラーとして表面化する。
var ErrDuplicateEmail = errors.New("email already registered")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する（プロバイダー不問）。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindLocalByEmail はauth_providerがlocalのユーザーをメールアドレスで検索する。
	// 見つからない場合はnilを返す。
	FindLocalByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByGoogleID はGoogleの外部識別子でユーザーを検索する。
	// 見つからない場合はnilを返す。
	FindByGoogleID(ctx context.Context, googleID string) (*model.User, error)

	// Create はユーザーを作成する。
	// メールアドレスの一意制約違反はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error

	// LinkGoogleAccount は既存ユーザーにGoogleアカウントをリンクする。
	// google_idを設定しauth_providerをgoogleに更新する。パスワードハッシュは保持される。
	// profile_picは未設定の場合のみ上書きする。
	LinkGoogleAccount(ctx context.Context, userID, googleID, profilePic string) error

	// UpdateLastLogin は最終ログイン日時を更新する。
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
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
}

// ThreadRepository は会話スレッドの永続化インターフェース。
type ThreadRepository interface {
	// FindByThreadID は不透明なthread_idと所有者でスレッドを検索する。
	// メッセージを時系列順に読み込んで返す。見つからない場合はnilを返す。
	FindByThreadID(ctx context.Context, userID, threadID string) (*model.Thread, error)

	// ListByUserID はユーザーのスレッド一覧をupdated_at降順で返す。
	// メッセージは読み込まない。
	ListByUserID(ctx context.Context, userID string) ([]*model.Thread, error)

	// Create はスレッドと初期メッセージを同一トランザクションで作成する。
	Create(ctx context.Context, thread *model.Thread) error

	// AppendMessage はスレッドにメッセージを追加し、updated_atを更新する。
	AppendMessage(ctx context.Context, threadInternalID string, message *model.Message) error

	// Delete は内部IDでスレッドを削除する。メッセージはCASCADE削除される。
	Delete(ctx context.Context, id string) error
}
