package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/kyohei/chatbridge/internal/model"
)

func testRateLimiterConfig(generalBurst, chatBurst int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(0.001), // テスト中にトークンが補充されないようにする
		GeneralBurst:    generalBurst,
		ChatRate:        rate.Limit(0.001),
		ChatBurst:       chatBurst,
		CleanupInterval: time.Hour,
	}
}

func authedTestRequest(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	ctx := ContextWithUser(req.Context(), &model.User{ID: userID})
	return req.WithContext(ctx)
}

func TestGeneralMiddleware_UnderLimit_Allows(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(3, 1))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, authedTestRequest("user-1"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i+1, w.Code, http.StatusOK)
		}
	}
}

func TestGeneralMiddleware_OverLimit_Returns429(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1, 1))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, authedTestRequest("user-1"))
	if w.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want %d", w.Code, http.StatusOK)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, authedTestRequest("user-1"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("second request: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header is missing")
	}
}

func TestGeneralMiddleware_LimitsArePerUser(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1, 1))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, authedTestRequest("user-1"))

	// 別ユーザーは独立したリミッターを持つ
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, authedTestRequest("user-2"))
	if w.Code != http.StatusOK {
		t.Errorf("other user: status = %d, want %d", w.Code, http.StatusOK)
	}

	if got := rl.GeneralLimiterCount(); got != 2 {
		t.Errorf("limiter count = %d, want 2", got)
	}
}

func TestChatMiddleware_IndependentFromGeneral(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1, 1))
	defer rl.Stop()

	general := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	chat := rl.ChatMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// 一般リミッターを使い切る
	w := httptest.NewRecorder()
	general.ServeHTTP(w, authedTestRequest("user-1"))

	// チャットリミッターはまだ利用可能
	w = httptest.NewRecorder()
	chat.ServeHTTP(w, authedTestRequest("user-1"))
	if w.Code != http.StatusOK {
		t.Errorf("chat request: status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRateLimitMiddleware_NoUser_Returns401(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1, 1))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/test", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}
