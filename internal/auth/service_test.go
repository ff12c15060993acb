package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kyohei/chatbridge/internal/model"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn          func(ctx context.Context, id string) (*model.User, error)
	findByEmailFn       func(ctx context.Context, email string) (*model.User, error)
	findLocalByEmailFn  func(ctx context.Context, email string) (*model.User, error)
	findByGoogleIDFn    func(ctx context.Context, googleID string) (*model.User, error)
	createFn            func(ctx context.Context, user *model.User) error
	linkGoogleAccountFn func(ctx context.Context, userID, googleID, profilePic string) error
	updateLastLoginFn   func(ctx context.Context, id string, at time.Time) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) FindLocalByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findLocalByEmailFn != nil {
		return m.findLocalByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	if m.findByGoogleIDFn != nil {
		return m.findByGoogleIDFn(ctx, googleID)
	}
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) LinkGoogleAccount(ctx context.Context, userID, googleID, profilePic string) error {
	if m.linkGoogleAccountFn != nil {
		return m.linkGoogleAccountFn(ctx, userID, googleID, profilePic)
	}
	return nil
}

func (m *mockUserRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	if m.updateLastLoginFn != nil {
		return m.updateLastLoginFn(ctx, id, at)
	}
	return nil
}

type mockSessionRepo struct {
	createFn         func(ctx context.Context, session *model.Session) error
	findByIDFn       func(ctx context.Context, id string) (*model.Session, error)
	deleteByIDFn     func(ctx context.Context, id string) error
	deleteByUserIDFn func(ctx context.Context, userID string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if m.deleteByUserIDFn != nil {
		return m.deleteByUserIDFn(ctx, userID)
	}
	return nil
}

type mockOAuthProvider struct {
	exchangeCodeFn func(ctx context.Context, code string) (*OAuthProfile, error)
}

func (m *mockOAuthProvider) GetLoginURL(state string) string {
	return "https://example.com/oauth?state=" + state
}

func (m *mockOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthProfile, error) {
	if m.exchangeCodeFn != nil {
		return m.exchangeCodeFn(ctx, code)
	}
	return nil, errors.New("not implemented")
}

type passthroughSanitizer struct{}

func (passthroughSanitizer) Sanitize(input string) string { return input }

// --- ヘルパー ---

func googleProfile() *OAuthProfile {
	return &OAuthProfile{
		ProviderUserID: "google-sub-1",
		Email:          "hanako@example.com",
		Name:           "Hanako",
		Picture:        "https://example.com/pic.png",
	}
}

func newTestService(users *mockUserRepo, sessions *mockSessionRepo, profile *OAuthProfile) *Service {
	provider := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*OAuthProfile, error) {
			return profile, nil
		},
	}
	return NewService(provider, users, sessions, passthroughSanitizer{}, ServiceConfig{SessionMaxAge: 3600})
}

// --- テスト ---

func TestHandleCallback_ExistingGoogleUser_LogsIn(t *testing.T) {
	existing := &model.User{ID: "user-1", GoogleID: "google-sub-1", AuthProvider: model.AuthProviderGoogle}
	created := false

	users := &mockUserRepo{
		findByGoogleIDFn: func(ctx context.Context, googleID string) (*model.User, error) {
			if googleID == "google-sub-1" {
				return existing, nil
			}
			return nil, nil
		},
		createFn: func(ctx context.Context, user *model.User) error {
			created = true
			return nil
		},
	}

	var savedSession *model.Session
	sessions := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			savedSession = session
			return nil
		},
	}

	svc := newTestService(users, sessions, googleProfile())

	session, err := svc.HandleCallback(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("HandleCallback failed: %v", err)
	}
	if created {
		t.Error("existing user should not be recreated")
	}
	if session.UserID != "user-1" {
		t.Errorf("session.UserID = %q, want %q", session.UserID, "user-1")
	}
	if savedSession == nil {
		t.Fatal("session was not persisted")
	}
	if savedSession.ExpiresAt.Before(time.Now()) {
		t.Error("session expires in the past")
	}
}

func TestHandleCallback_EmailMatch_LinksGoogleAccount(t *testing.T) {
	// ローカルsignup済みのユーザーが同じメールアドレスでGoogleログインした場合、
	// Googleアカウントがリンクされ、パスワードハッシュは保持される
	local := &model.User{
		ID:           "user-2",
		Email:        "hanako@example.com",
		PasswordHash: "$2a$10$existinghash",
		AuthProvider: model.AuthProviderLocal,
	}

	linked := false
	users := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			if email == "hanako@example.com" {
				return local, nil
			}
			return nil, nil
		},
		linkGoogleAccountFn: func(ctx context.Context, userID, googleID, profilePic string) error {
			if userID != "user-2" {
				t.Errorf("link userID = %q, want %q", userID, "user-2")
			}
			if googleID != "google-sub-1" {
				t.Errorf("link googleID = %q, want %q", googleID, "google-sub-1")
			}
			linked = true
			return nil
		},
		createFn: func(ctx context.Context, user *model.User) error {
			t.Error("user should be linked, not created")
			return nil
		},
	}

	svc := newTestService(users, &mockSessionRepo{}, googleProfile())

	session, err := svc.HandleCallback(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("HandleCallback failed: %v", err)
	}
	if !linked {
		t.Error("google account was not linked")
	}
	if session.UserID != "user-2" {
		t.Errorf("session.UserID = %q, want %q", session.UserID, "user-2")
	}
	// リンク後もパスワードハッシュが残っていること（デュアル対応）
	if local.PasswordHash != "$2a$10$existinghash" {
		t.Error("password hash must be preserved after linking")
	}
}

func TestHandleCallback_UnknownProfile_CreatesNewUser(t *testing.T) {
	var createdUser *model.User
	users := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			createdUser = user
			return nil
		},
	}

	svc := newTestService(users, &mockSessionRepo{}, googleProfile())

	session, err := svc.HandleCallback(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("HandleCallback failed: %v", err)
	}
	if createdUser == nil {
		t.Fatal("new user was not created")
	}
	if createdUser.AuthProvider != model.AuthProviderGoogle {
		t.Errorf("AuthProvider = %q, want %q", createdUser.AuthProvider, model.AuthProviderGoogle)
	}
	if createdUser.GoogleID != "google-sub-1" {
		t.Errorf("GoogleID = %q, want %q", createdUser.GoogleID, "google-sub-1")
	}
	if createdUser.PasswordHash != "" {
		t.Error("google-created user must not have a password hash")
	}
	if session.UserID != createdUser.ID {
		t.Errorf("session.UserID = %q, want %q", session.UserID, createdUser.ID)
	}
}

func TestHandleCallback_PersistenceError_ReturnsLinkFailed(t *testing.T) {
	users := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			return errors.New("db down")
		},
	}

	svc := newTestService(users, &mockSessionRepo{}, googleProfile())

	_, err := svc.HandleCallback(context.Background(), "auth-code")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.Code != model.ErrCodeLinkFailed {
		t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeLinkFailed)
	}
}

func TestHandleCallback_ExchangeError_ReturnsError(t *testing.T) {
	provider := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*OAuthProfile, error) {
			return nil, errors.New("invalid code")
		},
	}
	svc := NewService(provider, &mockUserRepo{}, &mockSessionRepo{}, passthroughSanitizer{}, ServiceConfig{SessionMaxAge: 3600})

	_, err := svc.HandleCallback(context.Background(), "bad-code")
	if err == nil {
		t.Fatal("expected error for failed code exchange")
	}
}

func TestGetCurrentUser_ValidSession_ReturnsUser(t *testing.T) {
	sessions := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{ID: id, UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
	users := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id}, nil
		},
	}
	svc := newTestService(users, sessions, nil)

	user, err := svc.GetCurrentUser(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("GetCurrentUser failed: %v", err)
	}
	if user.ID != "user-1" {
		t.Errorf("user.ID = %q, want %q", user.ID, "user-1")
	}
}

func TestGetCurrentUser_ExpiredSession_ReturnsError(t *testing.T) {
	svc := newTestService(&mockUserRepo{}, &mockSessionRepo{}, nil)

	_, err := svc.GetCurrentUser(context.Background(), "gone-session")
	if err == nil {
		t.Fatal("expected error for missing session")
	}
}

func TestLogout_DeletesSession(t *testing.T) {
	deleted := ""
	sessions := &mockSessionRepo{
		deleteByIDFn: func(ctx context.Context, id string) error {
			deleted = id
			return nil
		},
	}
	svc := newTestService(&mockUserRepo{}, sessions, nil)

	if err := svc.Logout(context.Background(), "session-1"); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if deleted != "session-1" {
		t.Errorf("deleted session = %q, want %q", deleted, "session-1")
	}
}

func TestGenerateSessionID_IsUniqueAndLong(t *testing.T) {
	a, err := generateSessionID()
	if err != nil {
		t.Fatalf("generateSessionID failed: %v", err)
	}
	b, err := generateSessionID()
	if err != nil {
		t.Fatalf("generateSessionID failed: %v", err)
	}
	if a == b {
		t.Error("session IDs must be unique")
	}
	if len(a) != 64 {
		t.Errorf("session ID length = %d, want 64", len(a))
	}
}
