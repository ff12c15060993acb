package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kyohei/chatbridge/internal/model"
)

var (
	// ErrTokenInvalid はトークンの署名・形式が不正なことを表す。
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired はトークンの有効期限切れを表す。
	ErrTokenExpired = errors.New("token expired")
)

// TokenClaims はBearerトークンに埋め込むクレーム。
// ユーザーIDとメールアドレスを含む自己完結型の署名付きクレデンシャル。
type TokenClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// TokenManager はBearerトークンの署名と検証を行う。
// サーバー側での失効はサポートしない（有効期限まで有効）。
type TokenManager struct {
	secret  []byte
	expires time.Duration
}

// NewTokenManager はTokenManagerを生成する。
func NewTokenManager(secret string, expires time.Duration) *TokenManager {
	return &TokenManager{
		secret:  []byte(secret),
		expires: expires,
	}
}

// Sign はユーザーの識別子とメールアドレスを埋め込んだ署名付きトークンを発行する。
func (m *TokenManager) Sign(user *model.User) (string, error) {
	now := time.Now()
	claims := &TokenClaims{
		UserID: user.ID,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expires)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify はトークンの署名と有効期限を検証し、クレームを返す。
// 期限切れはErrTokenExpired、その他の検証失敗はErrTokenInvalidを返す。
func (m *TokenManager) Verify(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return m.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || claims.UserID == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
