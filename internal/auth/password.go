package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/kyohei/chatbridge/internal/model"
	"github.com/kyohei/chatbridge/internal/repository"
)

// bcryptCost はパスワードハッシュのコストファクター。
const bcryptCost = 10

// PasswordService はメールアドレスとパスワードによるローカル認証を提供する。
// ログイン成功時はBearerトークンを発行する（セッションは作成しない）。
type PasswordService struct {
	userRepo  repository.UserRepository
	tokens    *TokenManager
	sanitizer Sanitizer
}

// NewPasswordService はPasswordServiceを生成する。
func NewPasswordService(userRepo repository.UserRepository, tokens *TokenManager, sanitizer Sanitizer) *PasswordService {
	return &PasswordService{
		userRepo:  userRepo,
		tokens:    tokens,
		sanitizer: sanitizer,
	}
}

// Signup は新規ユーザーを登録する。
// メールアドレスが既に使用されている場合、既存レコードのプロバイダーに
// 応じたDuplicateEmailエラーを返す。
func (s *PasswordService) Signup(ctx context.Context, name, email, password string) (*model.User, error) {
	if name == "" || email == "" || password == "" {
		return nil, model.NewValidationError("名前、メールアドレス、パスワードは必須です。")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, model.NewValidationError("メールアドレスの形式が正しくありません。")
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateEmailError(existing.AuthProvider)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Name:         s.sanitizer.Sanitize(name),
		Email:        email,
		PasswordHash: string(hash),
		AuthProvider: model.AuthProviderLocal,
		CreatedAt:    now,
		LastLoginAt:  now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		// 同時signupの競合。一意制約で検出されたので改めてプロバイダーを調べる
		if errors.Is(err, repository.ErrDuplicateEmail) {
			racer, findErr := s.userRepo.FindByEmail(ctx, email)
			if findErr == nil && racer != nil {
				return nil, model.NewDuplicateEmailError(racer.AuthProvider)
			}
			return nil, model.NewDuplicateEmailError(model.AuthProviderLocal)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("new user signed up", slog.String("user_id", user.ID))
	return user, nil
}

// Login はメールアドレスとパスワードで認証し、Bearerトークンを発行する。
// ユーザー不在、パスワード不一致、パスワード未設定（Googleのみのアカウント）は
// いずれも同一のInvalidCredentialsエラーを返す。
func (s *PasswordService) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	if email == "" || password == "" {
		return "", nil, model.NewValidationError("メールアドレスとパスワードは必須です。")
	}

	user, err := s.userRepo.FindLocalByEmail(ctx, email)
	if err != nil {
		return "", nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return "", nil, model.NewInvalidCredentialsError()
	}
	if user.PasswordHash == "" {
		slog.Warn("login attempt for user without password hash", slog.String("user_id", user.ID))
		return "", nil, model.NewInvalidCredentialsError()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, model.NewInvalidCredentialsError()
	}

	if err := s.userRepo.UpdateLastLogin(ctx, user.ID, time.Now()); err != nil {
		return "", nil, fmt.Errorf("failed to update last login: %w", err)
	}

	token, err := s.tokens.Sign(user)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))
	return token, user, nil
}
