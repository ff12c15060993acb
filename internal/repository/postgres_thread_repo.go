package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kyohei/chatbridge/internal/model"
)

// PostgresThreadRepo はPostgreSQLを使用したスレッドリポジトリ。
type PostgresThreadRepo struct {
	db *sql.DB
}

// NewPostgresThreadRepo はPostgresThreadRepoを生成する。
func NewPostgresThreadRepo(db *sql.DB) *PostgresThreadRepo {
	return &PostgresThreadRepo{db: db}
}

// FindByThreadID は不透明なthread_idと所有者でスレッドを検索する。
// メッセージを時系列順に読み込んで返す。見つからない場合はnilを返す。
func (r *PostgresThreadRepo) FindByThreadID(ctx context.Context, userID, threadID string) (*model.Thread, error) {
	thread := &model.Thread{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, thread_id, user_id, title, created_at, updated_at
		 FROM threads
		 WHERE thread_id = $1 AND user_id = $2`,
		threadID, userID,
	).Scan(&thread.ID, &thread.ThreadID, &thread.UserID, &thread.Title, &thread.CreatedAt, &thread.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find thread: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, thread_id, role, content, created_at
		 FROM messages
		 WHERE thread_id = $1
		 ORDER BY created_at ASC`,
		thread.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		msg := model.Message{}
		if err := rows.Scan(&msg.ID, &msg.ThreadID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		thread.Messages = append(thread.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return thread, nil
}

// ListByUserID はユーザーのスレッド一覧をupdated_at降順で返す。
// メッセージは読み込まない。
func (r *PostgresThreadRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Thread, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, thread_id, user_id, title, created_at, updated_at
		 FROM threads
		 WHERE user_id = $1
		 ORDER BY updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	threads := []*model.Thread{}
	for rows.Next() {
		thread := &model.Thread{}
		if err := rows.Scan(&thread.ID, &thread.ThreadID, &thread.UserID, &thread.Title, &thread.CreatedAt, &thread.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		threads = append(threads, thread)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate threads: %w", err)
	}

	return threads, nil
}

// Create はスレッドと初期メッセージを同一トランザクションで作成する。
func (r *PostgresThreadRepo) Create(ctx context.Context, thread *model.Thread) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO threads (id, thread_id, user_id, title, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		thread.ID, thread.ThreadID, thread.UserID, thread.Title, thread.CreatedAt, thread.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert thread: %w", err)
	}

	for _, msg := range thread.Messages {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO messages (id, thread_id, role, content, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			msg.ID, thread.ID, msg.Role, msg.Content, msg.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// AppendMessage はスレッドにメッセージを追加し、updated_atを更新する。
func (r *PostgresThreadRepo) AppendMessage(ctx context.Context, threadInternalID string, message *model.Message) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, thread_id, role, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		message.ID, threadInternalID, message.Role, message.Content, message.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE threads SET updated_at = $2 WHERE id = $1`,
		threadInternalID, message.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update thread timestamp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Delete は内部IDでスレッドを削除する。メッセージはCASCADE削除される。
func (r *PostgresThreadRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM threads WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("thread not found: %s", id)
	}
	return nil
}

// compile-time interface check
var _ ThreadRepository = (*PostgresThreadRepo)(nil)
