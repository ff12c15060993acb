package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kyohei/chatbridge/internal/middleware"
	"github.com/kyohei/chatbridge/internal/model"
)

// ChatServiceInterface はチャットハンドラーが必要とするサービスインターフェース。
type ChatServiceInterface interface {
	// ListThreads はユーザーのスレッド一覧を更新日時の降順で返す。
	ListThreads(ctx context.Context, userID string) ([]*model.Thread, error)
	// GetThread は指定スレッドをメッセージ込みで取得する。
	GetThread(ctx context.Context, userID, threadID string) (*model.Thread, error)
	// DeleteThread は指定スレッドを削除する。
	DeleteThread(ctx context.Context, userID, threadID string) error
	// SendMessage はメッセージを投稿しAI応答を生成する。
	SendMessage(ctx context.Context, userID, threadID, content string) (*model.Thread, error)
}

// ChatHandler は会話スレッドとAI補完のHTTPハンドラー。
type ChatHandler struct {
	service ChatServiceInterface
}

// NewChatHandler はChatHandlerを生成する。
func NewChatHandler(service ChatServiceInterface) *ChatHandler {
	return &ChatHandler{service: service}
}

// sendMessageRequest はメッセージ投稿リクエストのボディ。
// ThreadIDが空の場合は新規スレッドが作成される。
type sendMessageRequest struct {
	ThreadID string `json:"thread_id"`
	Message  string `json:"message"`
}

// messageResponse はメッセージのAPIレスポンス。
type messageResponse struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// threadSummaryResponse はスレッド一覧用のAPIレスポンス。
type threadSummaryResponse struct {
	ThreadID  string    `json:"thread_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// threadResponse はスレッド詳細のAPIレスポンス。
type threadResponse struct {
	ThreadID  string            `json:"thread_id"`
	Title     string            `json:"title"`
	Messages  []messageResponse `json:"messages"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// SendMessage はメッセージ投稿とAI応答の生成を処理する。
// POST /api/chat
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewNoCredentialsError())
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	thread, err := h.service.SendMessage(r.Context(), user.ID, req.ThreadID, req.Message)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// 末尾のメッセージがAI応答
	reply := ""
	if len(thread.Messages) > 0 {
		reply = thread.Messages[len(thread.Messages)-1].Content
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"thread_id": thread.ThreadID,
		"title":     thread.Title,
		"reply":     reply,
	})
}

// ListThreads はスレッド一覧を返す。
// GET /api/threads
func (h *ChatHandler) ListThreads(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewNoCredentialsError())
		return
	}

	threads, err := h.service.ListThreads(r.Context(), user.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]threadSummaryResponse, 0, len(threads))
	for _, t := range threads {
		resp = append(resp, threadSummaryResponse{
			ThreadID:  t.ThreadID,
			Title:     t.Title,
			CreatedAt: t.CreatedAt,
			UpdatedAt: t.UpdatedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GetThread はスレッド詳細をメッセージ込みで返す。
// GET /api/threads/{threadID}
func (h *ChatHandler) GetThread(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewNoCredentialsError())
		return
	}

	threadID := chi.URLParam(r, "threadID")

	thread, err := h.service.GetThread(r.Context(), user.ID, threadID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toThreadResponse(thread))
}

// DeleteThread はスレッドを削除する。
// DELETE /api/threads/{threadID}
func (h *ChatHandler) DeleteThread(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewNoCredentialsError())
		return
	}

	threadID := chi.URLParam(r, "threadID")

	if err := h.service.DeleteThread(r.Context(), user.ID, threadID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- ヘルパー関数 ---

// toThreadResponse はmodel.ThreadからAPIレスポンスに変換する。
func toThreadResponse(thread *model.Thread) threadResponse {
	messages := make([]messageResponse, 0, len(thread.Messages))
	for _, msg := range thread.Messages {
		messages = append(messages, messageResponse{
			Role:      string(msg.Role),
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
		})
	}
	return threadResponse{
		ThreadID:  thread.ThreadID,
		Title:     thread.Title,
		Messages:  messages,
		CreatedAt: thread.CreatedAt,
		UpdatedAt: thread.UpdatedAt,
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation:
		return http.StatusBadRequest
	case model.ErrCodeDuplicateEmail:
		return http.StatusConflict
	case model.ErrCodeInvalidCredentials,
		model.ErrCodeNoCredentials,
		model.ErrCodeSessionInvalid,
		model.ErrCodeTokenInvalid,
		model.ErrCodeUserNotFound:
		return http.StatusUnauthorized
	case model.ErrCodeLinkFailed:
		return http.StatusBadGateway
	case model.ErrCodeThreadNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
