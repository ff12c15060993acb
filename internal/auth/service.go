// Package auth はOAuth認証フロー、ローカル認証、セッション・トークン管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kyohei/chatbridge/internal/model"
	"github.com/kyohei/chatbridge/internal/repository"
)

// OAuthProfile はOAuthプロバイダーから取得した検証済みユーザー情報を表す。
type OAuthProfile struct {
	ProviderUserID string
	Email          string
	Name           string
	Picture        string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// OAuthハンドシェイク自体は実装せず、その出力のみを消費する。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthProfile, error)
}

// Sanitizer はユーザー入力のサニタイズインターフェース。
type Sanitizer interface {
	Sanitize(input string) string
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service はOAuthアカウントリンクとセッション管理のビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	sanitizer   Sanitizer
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	sanitizer Sanitizer,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		sanitizer:   sanitizer,
		config:      config,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// プロバイダープロファイルをローカルユーザーに解決する。順序:
//  1. 外部識別子で検索。見つかれば既存ユーザーとしてログイン（変更なし）。
//  2. メールアドレスで検索。見つかればGoogleアカウントをリンクする。
//     既存のパスワードハッシュは保持され、アカウントはデュアル対応になる。
//  3. いずれも見つからなければ新規ユーザーを作成する。
//
// 永続化エラーはLinkFailedとして表面化し、フローを中断する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	profile, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	user, err := s.resolveProfile(ctx, profile)
	if err != nil {
		return nil, err
	}

	// 最終ログイン日時を更新
	if err := s.userRepo.UpdateLastLogin(ctx, user.ID, time.Now()); err != nil {
		slog.Error("failed to update last login", slog.String("error", err.Error()))
		return nil, model.NewLinkFailedError()
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		slog.Error("failed to create session", slog.String("error", err.Error()))
		return nil, model.NewLinkFailedError()
	}

	return session, nil
}

// resolveProfile はプロバイダープロファイルをローカルユーザーに解決する。
// 各ステップは単一ドキュメントのupsertであり、中途半端なレコードは残らない。
func (s *Service) resolveProfile(ctx context.Context, profile *OAuthProfile) (*model.User, error) {
	// 1. 外部識別子で既存ユーザーを検索
	user, err := s.userRepo.FindByGoogleID(ctx, profile.ProviderUserID)
	if err != nil {
		slog.Error("failed to find user by google ID", slog.String("error", err.Error()))
		return nil, model.NewLinkFailedError()
	}
	if user != nil {
		slog.Info("existing google user logged in",
			slog.String("user_id", user.ID),
		)
		return user, nil
	}

	// 2. メールアドレスで既存ユーザーを検索（ローカルsignup済みの可能性）
	user, err = s.userRepo.FindByEmail(ctx, profile.Email)
	if err != nil {
		slog.Error("failed to find user by email", slog.String("error", err.Error()))
		return nil, model.NewLinkFailedError()
	}
	if user != nil {
		if err := s.userRepo.LinkGoogleAccount(ctx, user.ID, profile.ProviderUserID, profile.Picture); err != nil {
			slog.Error("failed to link google account", slog.String("error", err.Error()))
			return nil, model.NewLinkFailedError()
		}
		user.GoogleID = profile.ProviderUserID
		user.AuthProvider = model.AuthProviderGoogle
		if user.ProfilePic == "" {
			user.ProfilePic = profile.Picture
		}
		slog.Info("google account linked to existing user",
			slog.String("user_id", user.ID),
		)
		return user, nil
	}

	// 3. 新規ユーザーを作成
	now := time.Now()
	newUser := &model.User{
		ID:           uuid.New().String(),
		Name:         s.sanitizer.Sanitize(profile.Name),
		Email:        profile.Email,
		GoogleID:     profile.ProviderUserID,
		AuthProvider: model.AuthProviderGoogle,
		ProfilePic:   profile.Picture,
		CreatedAt:    now,
		LastLoginAt:  now,
	}

	if err := s.userRepo.Create(ctx, newUser); err != nil {
		slog.Error("failed to create user", slog.String("error", err.Error()))
		return nil, model.NewLinkFailedError()
	}

	slog.Info("new user created via google",
		slog.String("user_id", newUser.ID),
	)
	return newUser, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session not found or expired")
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user not found")
	}

	return user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
