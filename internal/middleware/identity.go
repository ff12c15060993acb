// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kyohei/chatbridge/internal/auth"
	"github.com/kyohei/chatbridge/internal/metrics"
	"github.com/kyohei/chatbridge/internal/model"
)

// SessionCookieName はセッションIDを保持するHTTP Only Cookieの名前。
const SessionCookieName = "session_id"

// bearerPrefix はAuthorizationヘッダーのBearerスキームプレフィックス。
const bearerPrefix = "Bearer "

// 認証チャネルのメトリクスラベル
const (
	channelSession = "session"
	channelToken   = "token"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userContextKey はリクエストコンテキストに認証済みユーザーを格納するためのキー。
var userContextKey = contextKey("user")

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// UserFinder はユーザーの検索に必要なインターフェース。
// repository.UserRepositoryの部分集合として定義する。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// TokenVerifier はBearerトークンの検証に必要なインターフェース。
type TokenVerifier interface {
	Verify(tokenString string) (*auth.TokenClaims, error)
}

// NewIdentityMiddleware は2チャネルの認証解決ミドルウェアを返す。
//
// チャネルA（セッション）が優先される。Cookieが有効なセッションを指す場合、
// 参照先ユーザーをストアから読み込んでコンテキストに注入する。セッションは
// 存在するがユーザーを復元できない場合は401で終端し、チャネルBには進まない。
// Cookieが無い、またはセッションが見つからない・期限切れの場合のみ
// チャネルB（Bearerトークン）にフォールバックする。
//
// チャネルBではAuthorizationヘッダーのトークンを検証し、クレーム内の
// ユーザーIDでストアからユーザーを読み込む。トークンは有効でもユーザーが
// 既に削除されている場合は401を返す。
//
// どちらのチャネルでも、後続ハンドラーが受け取るユーザーは常にストアから
// 読み込んだ最新のレコードであり、トークンのクレームをそのまま信用しない。
func NewIdentityMiddleware(
	sessionFinder SessionFinder,
	userFinder UserFinder,
	tokenVerifier TokenVerifier,
	collector metrics.MetricsCollector,
) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// チャネルA: セッションCookie
			if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
				session, err := sessionFinder.FindByID(r.Context(), cookie.Value)
				if err != nil {
					slog.Error("failed to find session",
						slog.String("error", err.Error()),
					)
					WriteInternalServerError(w)
					return
				}
				if session != nil {
					user, err := userFinder.FindByID(r.Context(), session.UserID)
					if err != nil {
						slog.Error("failed to find session user",
							slog.String("error", err.Error()),
						)
						WriteInternalServerError(w)
						return
					}
					if user == nil {
						// セッションは存在するがユーザーを復元できない。
						// ここで終端し、Bearerトークンへはフォールバックしない。
						slog.Warn("session references missing user",
							slog.String("session_id", session.ID),
						)
						WriteErrorResponse(w, http.StatusUnauthorized, model.NewSessionInvalidError())
						return
					}

					collector.RecordAuthResolution(channelSession)
					next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
					return
				}
				// セッションが見つからない・期限切れの場合はチャネルBへ
			}

			// チャネルB: Bearerトークン
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(authHeader, bearerPrefix) {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewNoCredentialsError())
				return
			}

			claims, err := tokenVerifier.Verify(strings.TrimPrefix(authHeader, bearerPrefix))
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewTokenInvalidError())
				return
			}

			user, err := userFinder.FindByID(r.Context(), claims.UserID)
			if err != nil {
				slog.Error("failed to find token user",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			if user == nil {
				// トークンは有効だがアカウントが既に削除されている
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUserNotFoundError())
				return
			}

			collector.RecordAuthResolution(channelToken)
			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
		})
	}
}

// UserFromContext はリクエストコンテキストから認証済みユーザーを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserFromContext(ctx context.Context) (*model.User, error) {
	user, ok := ctx.Value(userContextKey).(*model.User)
	if !ok || user == nil {
		return nil, fmt.Errorf("user not found in context")
	}
	return user, nil
}

// ContextWithUser はコンテキストに認証済みユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}
