package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kyohei/chatbridge/internal/metrics"
	"github.com/kyohei/chatbridge/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	UserFinder        middleware.UserFinder
	TokenVerifier     middleware.TokenVerifier
	Collector         metrics.MetricsCollector
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 認証
	AuthService     AuthServiceInterface
	PasswordService PasswordServiceInterface
	AuthConfig      AuthHandlerConfig

	// チャット
	ChatService ChatServiceInterface

	// Prometheusスクレイプ用ハンドラー
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → Identity → RateLimit(General)
//
// 認証ルート（/auth/*）とヘルスチェックは認証ミドルウェアの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Collector))

	authHandler := NewAuthHandler(deps.AuthService, deps.PasswordService, deps.TokenVerifier, deps.UserFinder, deps.AuthConfig)
	chatHandler := NewChatHandler(deps.ChatService)

	identity := middleware.NewIdentityMiddleware(deps.SessionFinder, deps.UserFinder, deps.TokenVerifier, deps.Collector)

	// --- 認証不要のルート ---

	// ヘルスチェック
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Prometheusメトリクス
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// 認証ルート
	r.Route("/auth", func(r chi.Router) {
		// ローカル認証
		r.Post("/signup", authHandler.Signup)
		r.Post("/login", authHandler.Login)

		// OAuthフロー
		r.Get("/google", authHandler.GoogleLogin)
		r.Get("/google/callback", authHandler.GoogleCallback)

		// セッション管理
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
		r.Get("/status", authHandler.Status)

		// プロフィール（要認証）
		r.Group(func(r chi.Router) {
			r.Use(identity)
			r.Use(deps.RateLimiter.GeneralMiddleware())
			r.Get("/profile", authHandler.Profile)
		})
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Identity → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(identity)
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// チャット投稿（AI補完を伴うため専用レート制限を追加）
		r.With(deps.RateLimiter.ChatMiddleware()).Post("/api/chat", chatHandler.SendMessage)

		// スレッド管理
		r.Route("/api/threads", func(r chi.Router) {
			r.Get("/", chatHandler.ListThreads)

			r.Route("/{threadID}", func(r chi.Router) {
				r.Get("/", chatHandler.GetThread)
				r.Delete("/", chatHandler.DeleteThread)
			})
		})
	})

	return r
}
