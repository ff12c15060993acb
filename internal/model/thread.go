package model

import "time"

// MessageRole はスレッド内メッセージの発話者を表す。
type MessageRole string

const (
	// MessageRoleUser はユーザーの発話。
	MessageRoleUser MessageRole = "user"
	// MessageRoleAssistant はAIアシスタントの応答。
	MessageRoleAssistant MessageRole = "assistant"
)

// Message は会話スレッド内の1発話を表す。
type Message struct {
	ID        string
	ThreadID  string
	Role      MessageRole
	Content   string
	CreatedAt time.Time
}

// Thread はユーザーの会話スレッドを表す。
// ThreadIDはAPI経由で参照される不透明な識別子（内部IDとは別）。
// MessagesはFindByThreadIDでのみ読み込まれ、一覧取得時は空。
type Thread struct {
	ID        string
	ThreadID  string
	UserID    string
	Title     string
	Messages  []Message
	CreatedAt time.Time
	UpdatedAt time.Time
}
