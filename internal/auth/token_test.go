package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/kyohei/chatbridge/internal/model"
)

func TestTokenManager_SignAndVerify(t *testing.T) {
	m := NewTokenManager("test-secret", 1*time.Hour)

	user := &model.User{ID: "user-123", Email: "taro@example.com"}
	token, err := m.Sign(user)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if token == "" {
		t.Fatal("token is empty")
	}

	claims, err := m.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.UserID != "user-123" {
		t.Errorf("UserID = %q, want %q", claims.UserID, "user-123")
	}
	if claims.Email != "taro@example.com" {
		t.Errorf("Email = %q, want %q", claims.Email, "taro@example.com")
	}
}

func TestTokenManager_ExpiredToken_ReturnsErrTokenExpired(t *testing.T) {
	m := NewTokenManager("test-secret", -1*time.Minute)

	token, err := m.Sign(&model.User{ID: "user-123", Email: "taro@example.com"})
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	_, err = m.Verify(token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("err = %v, want ErrTokenExpired", err)
	}
}

func TestTokenManager_WrongSecret_ReturnsErrTokenInvalid(t *testing.T) {
	m1 := NewTokenManager("secret-one", 1*time.Hour)
	m2 := NewTokenManager("secret-two", 1*time.Hour)

	token, err := m1.Sign(&model.User{ID: "user-123", Email: "taro@example.com"})
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	_, err = m2.Verify(token)
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("err = %v, want ErrTokenInvalid", err)
	}
}

func TestTokenManager_MalformedToken_ReturnsErrTokenInvalid(t *testing.T) {
	m := NewTokenManager("test-secret", 1*time.Hour)

	_, err := m.Verify("not-a-jwt")
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("err = %v, want ErrTokenInvalid", err)
	}
}
