package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kyohei/chatbridge/internal/auth"
	"github.com/kyohei/chatbridge/internal/model"
)

// --- モック定義 ---

type mockSessionRepository struct {
	findByIDFn func(ctx context.Context, id string) (*model.Session, error)
}

func (m *mockSessionRepository) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

type mockUserRepository struct {
	findByIDFn func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockUserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

type mockTokenVerifier struct {
	verifyFn func(tokenString string) (*auth.TokenClaims, error)
}

func (m *mockTokenVerifier) Verify(tokenString string) (*auth.TokenClaims, error) {
	if m.verifyFn != nil {
		return m.verifyFn(tokenString)
	}
	return nil, auth.ErrTokenInvalid
}

type noopCollector struct{}

func (noopCollector) RecordCompletionSuccess()                {}
func (noopCollector) RecordCompletionFallback()               {}
func (noopCollector) RecordCompletionLatency(_ time.Duration) {}
func (noopCollector) RecordAuthResolution(_ string)           {}
func (noopCollector) RecordHTTPStatus(_ int)                  {}

// --- ヘルパー ---

func validSessionRepo(sessionID, userID string) *mockSessionRepository {
	return &mockSessionRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			if id == sessionID {
				return &model.Session{
					ID:        sessionID,
					UserID:    userID,
					ExpiresAt: time.Now().Add(1 * time.Hour),
				}, nil
			}
			return nil, nil
		},
	}
}

func userRepoWith(users map[string]*model.User) *mockUserRepository {
	return &mockUserRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return users[id], nil
		},
	}
}

func decodeErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return body.Code
}

// --- テスト ---

func TestIdentityMiddleware_ValidSession_InjectsUser(t *testing.T) {
	sessions := validSessionRepo("valid-session", "user-123")
	users := userRepoWith(map[string]*model.User{
		"user-123": {ID: "user-123", Email: "taro@example.com"},
	})

	mw := NewIdentityMiddleware(sessions, users, &mockTokenVerifier{}, noopCollector{})

	var captured *model.User
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := UserFromContext(r.Context())
		if err != nil {
			t.Errorf("expected no error, got %v", err)
		}
		captured = user
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "valid-session"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if captured == nil || captured.ID != "user-123" {
		t.Errorf("captured user = %+v, want user-123", captured)
	}
}

func TestIdentityMiddleware_SessionPriorityOverToken(t *testing.T) {
	// セッションとトークンの両方が有効な場合、セッションのユーザーが優先される
	sessions := validSessionRepo("valid-session", "session-user")
	users := userRepoWith(map[string]*model.User{
		"session-user": {ID: "session-user"},
		"token-user":   {ID: "token-user"},
	})
	tokens := &mockTokenVerifier{
		verifyFn: func(tokenString string) (*auth.TokenClaims, error) {
			return &auth.TokenClaims{UserID: "token-user"}, nil
		},
	}

	mw := NewIdentityMiddleware(sessions, users, tokens, noopCollector{})

	var captured *model.User
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "valid-session"})
	req.Header.Set("Authorization", "Bearer some-valid-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if captured == nil || captured.ID != "session-user" {
		t.Errorf("captured user = %+v, want session-user", captured)
	}
}

func TestIdentityMiddleware_SessionWithMissingUser_TerminatesWithoutFallback(t *testing.T) {
	// セッションは存在するがユーザーを復元できない場合、
	// 有効なBearerトークンがあってもフォールバックせず401で終端する
	sessions := validSessionRepo("orphan-session", "deleted-user")
	users := userRepoWith(map[string]*model.User{
		"token-user": {ID: "token-user"},
	})
	tokens := &mockTokenVerifier{
		verifyFn: func(tokenString string) (*auth.TokenClaims, error) {
			return &auth.TokenClaims{UserID: "token-user"}, nil
		},
	}

	mw := NewIdentityMiddleware(sessions, users, tokens, noopCollector{})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "orphan-session"})
	req.Header.Set("Authorization", "Bearer some-valid-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if code := decodeErrorCode(t, w); code != model.ErrCodeSessionInvalid {
		t.Errorf("error code = %q, want %q", code, model.ErrCodeSessionInvalid)
	}
}

func TestIdentityMiddleware_ExpiredSession_FallsThroughToToken(t *testing.T) {
	// セッションが見つからない（期限切れ）場合はBearerトークンで解決する
	sessions := &mockSessionRepository{}
	users := userRepoWith(map[string]*model.User{
		"token-user": {ID: "token-user"},
	})
	tokens := &mockTokenVerifier{
		verifyFn: func(tokenString string) (*auth.TokenClaims, error) {
			return &auth.TokenClaims{UserID: "token-user"}, nil
		},
	}

	mw := NewIdentityMiddleware(sessions, users, tokens, noopCollector{})

	var captured *model.User
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "expired-session"})
	req.Header.Set("Authorization", "Bearer some-valid-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if captured == nil || captured.ID != "token-user" {
		t.Errorf("captured user = %+v, want token-user", captured)
	}
}

func TestIdentityMiddleware_NoCredentials_Returns401(t *testing.T) {
	mw := NewIdentityMiddleware(&mockSessionRepository{}, &mockUserRepository{}, &mockTokenVerifier{}, noopCollector{})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if code := decodeErrorCode(t, w); code != model.ErrCodeNoCredentials {
		t.Errorf("error code = %q, want %q", code, model.ErrCodeNoCredentials)
	}
}

func TestIdentityMiddleware_MalformedAuthorizationHeader_Returns401(t *testing.T) {
	mw := NewIdentityMiddleware(&mockSessionRepository{}, &mockUserRepository{}, &mockTokenVerifier{}, noopCollector{})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if code := decodeErrorCode(t, w); code != model.ErrCodeNoCredentials {
		t.Errorf("error code = %q, want %q", code, model.ErrCodeNoCredentials)
	}
}

func TestIdentityMiddleware_InvalidToken_Returns401(t *testing.T) {
	tokens := &mockTokenVerifier{
		verifyFn: func(tokenString string) (*auth.TokenClaims, error) {
			return nil, auth.ErrTokenExpired
		},
	}
	mw := NewIdentityMiddleware(&mockSessionRepository{}, &mockUserRepository{}, tokens, noopCollector{})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req.Header.Set("Authorization", "Bearer expired-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if code := decodeErrorCode(t, w); code != model.ErrCodeTokenInvalid {
		t.Errorf("error code = %q, want %q", code, model.ErrCodeTokenInvalid)
	}
}

func TestIdentityMiddleware_ValidTokenDeletedUser_Returns401(t *testing.T) {
	// トークン発行後にアカウントが削除されたケース
	tokens := &mockTokenVerifier{
		verifyFn: func(tokenString string) (*auth.TokenClaims, error) {
			return &auth.TokenClaims{UserID: "deleted-user"}, nil
		},
	}
	mw := NewIdentityMiddleware(&mockSessionRepository{}, &mockUserRepository{}, tokens, noopCollector{})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req.Header.Set("Authorization", "Bearer valid-but-orphaned")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if code := decodeErrorCode(t, w); code != model.ErrCodeUserNotFound {
		t.Errorf("error code = %q, want %q", code, model.ErrCodeUserNotFound)
	}
}

func TestIdentityMiddleware_SessionStoreError_Returns500(t *testing.T) {
	sessions := &mockSessionRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return nil, context.DeadlineExceeded
		},
	}
	mw := NewIdentityMiddleware(sessions, &mockUserRepository{}, &mockTokenVerifier{}, noopCollector{})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "some-session"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestUserFromContext_NoValue_ReturnsError(t *testing.T) {
	_, err := UserFromContext(context.Background())
	if err == nil {
		t.Error("expected error for missing user in context")
	}
}

func TestUserFromContext_ValidValue_ReturnsUser(t *testing.T) {
	ctx := ContextWithUser(context.Background(), &model.User{ID: "user-456"})
	user, err := UserFromContext(ctx)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if user.ID != "user-456" {
		t.Errorf("user.ID = %q, want %q", user.ID, "user-456")
	}
}
