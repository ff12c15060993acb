// Package chat は会話スレッドの管理とAI補完のビジネスロジックを提供する。
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kyohei/chatbridge/internal/ai"
	"github.com/kyohei/chatbridge/internal/metrics"
	"github.com/kyohei/chatbridge/internal/model"
	"github.com/kyohei/chatbridge/internal/repository"
	"github.com/kyohei/chatbridge/internal/security"
)

// fallbackText はAI補完失敗時に代わりに保存・返却する固定文言。
// 補完の失敗はエンドユーザーにエラーとして表面化しない。
const fallbackText = "Sorry, AI is not responding right now."

// titleMaxRunes はスレッドタイトルの最大文字数。
// 最初のメッセージから切り出して生成する。
const titleMaxRunes = 50

// Service は会話スレッドのCRUDとAI補完の呼び出しを提供する。
// 全ての操作は所有者のユーザーIDでスコープされる。
type Service struct {
	threadRepo repository.ThreadRepository
	completion ai.CompletionClient
	sanitizer  security.InputSanitizerService
	collector  metrics.MetricsCollector
	aiTimeout  time.Duration
}

// NewService はServiceを生成する。
func NewService(
	threadRepo repository.ThreadRepository,
	completion ai.CompletionClient,
	sanitizer security.InputSanitizerService,
	collector metrics.MetricsCollector,
	aiTimeout time.Duration,
) *Service {
	return &Service{
		threadRepo: threadRepo,
		completion: completion,
		sanitizer:  sanitizer,
		collector:  collector,
		aiTimeout:  aiTimeout,
	}
}

// ListThreads はユーザーのスレッド一覧を更新日時の降順で返す。
func (s *Service) ListThreads(ctx context.Context, userID string) ([]*model.Thread, error) {
	threads, err := s.threadRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	return threads, nil
}

// GetThread は指定スレッドをメッセージ込みで取得する。
// 他ユーザーのスレッドは存在しないものとして扱う。
func (s *Service) GetThread(ctx context.Context, userID, threadID string) (*model.Thread, error) {
	thread, err := s.threadRepo.FindByThreadID(ctx, userID, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to find thread: %w", err)
	}
	if thread == nil {
		return nil, model.NewThreadNotFoundError(threadID)
	}
	return thread, nil
}

// DeleteThread は指定スレッドを削除する。
// 所有権の確認を兼ねて先に検索し、見つからない場合はThreadNotFoundを返す。
func (s *Service) DeleteThread(ctx context.Context, userID, threadID string) error {
	thread, err := s.threadRepo.FindByThreadID(ctx, userID, threadID)
	if err != nil {
		return fmt.Errorf("failed to find thread: %w", err)
	}
	if thread == nil {
		return model.NewThreadNotFoundError(threadID)
	}

	if err := s.threadRepo.Delete(ctx, thread.ID); err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}

	slog.Info("thread deleted",
		slog.String("user_id", userID),
		slog.String("thread_id", threadID),
	)
	return nil
}

// SendMessage はユーザーメッセージを投稿し、AI応答を生成して永続化する。
// threadIDが空の場合は新規スレッドを作成する。
// AI補完が失敗した場合でもリクエストは成功し、固定のフォールバック文言が
// 応答として保存・返却される。
func (s *Service) SendMessage(ctx context.Context, userID, threadID, content string) (*model.Thread, error) {
	content = s.sanitizer.Sanitize(content)
	if content == "" {
		return nil, model.NewValidationError("メッセージを入力してください。")
	}

	if threadID == "" {
		return s.startThread(ctx, userID, content)
	}

	thread, err := s.threadRepo.FindByThreadID(ctx, userID, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to find thread: %w", err)
	}
	if thread == nil {
		return nil, model.NewThreadNotFoundError(threadID)
	}

	userMsg := newMessage(model.MessageRoleUser, content)
	if err := s.threadRepo.AppendMessage(ctx, thread.ID, userMsg); err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}
	thread.Messages = append(thread.Messages, *userMsg)

	reply := s.complete(ctx, thread.Messages)

	assistantMsg := newMessage(model.MessageRoleAssistant, reply)
	if err := s.threadRepo.AppendMessage(ctx, thread.ID, assistantMsg); err != nil {
		return nil, fmt.Errorf("failed to append reply: %w", err)
	}
	thread.Messages = append(thread.Messages, *assistantMsg)
	thread.UpdatedAt = assistantMsg.CreatedAt

	return thread, nil
}

// startThread は最初のメッセージから新規スレッドを作成する。
// スレッドと初期2メッセージ（ユーザー発話とAI応答）を同一トランザクションで保存する。
func (s *Service) startThread(ctx context.Context, userID, content string) (*model.Thread, error) {
	userMsg := newMessage(model.MessageRoleUser, content)
	reply := s.complete(ctx, []model.Message{*userMsg})
	assistantMsg := newMessage(model.MessageRoleAssistant, reply)

	now := time.Now()
	thread := &model.Thread{
		ID:        uuid.New().String(),
		ThreadID:  uuid.New().String(),
		UserID:    userID,
		Title:     truncateTitle(content),
		Messages:  []model.Message{*userMsg, *assistantMsg},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.threadRepo.Create(ctx, thread); err != nil {
		return nil, fmt.Errorf("failed to create thread: %w", err)
	}

	slog.Info("thread created",
		slog.String("user_id", userID),
		slog.String("thread_id", thread.ThreadID),
	)
	return thread, nil
}

// complete は会話履歴に対するAI応答を生成する。
// タイムアウト付きで補完APIを呼び出し、失敗時はフォールバック文言を返す。
func (s *Service) complete(ctx context.Context, history []model.Message) string {
	aiCtx, cancel := context.WithTimeout(ctx, s.aiTimeout)
	defer cancel()

	turns := make([]ai.Turn, 0, len(history))
	for _, msg := range history {
		role := "user"
		if msg.Role == model.MessageRoleAssistant {
			role = "model"
		}
		turns = append(turns, ai.Turn{Role: role, Content: msg.Content})
	}

	start := time.Now()
	reply, err := s.completion.Complete(aiCtx, turns)
	s.collector.RecordCompletionLatency(time.Since(start))

	if err != nil {
		slog.Error("AI completion failed, using fallback",
			slog.String("error", err.Error()),
		)
		s.collector.RecordCompletionFallback()
		return fallbackText
	}

	s.collector.RecordCompletionSuccess()
	return reply
}

// newMessage はメッセージを生成する。
func newMessage(role model.MessageRole, content string) *model.Message {
	return &model.Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// truncateTitle はメッセージ本文からスレッドタイトルを切り出す。
func truncateTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= titleMaxRunes {
		return content
	}
	return string(runes[:titleMaxRunes])
}
