package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/kyohei/chatbridge/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const uniqueViolation = "23505"

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, name, email, password_hash, google_id, auth_provider, profile_pic, created_at, last_login_at`

// scanUser は1行をmodel.Userに読み込む。
func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	var passwordHash, googleID sql.NullString
	err := row.Scan(
		&user.ID, &user.Name, &user.Email,
		&passwordHash, &googleID,
		&user.AuthProvider, &user.ProfilePic,
		&user.CreatedAt, &user.LastLoginAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	user.PasswordHash = passwordHash.String
	user.GoogleID = googleID.String
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを検索する（プロバイダー不問）。
// 見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		email,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// FindLocalByEmail はauth_providerがlocalのユーザーをメールアドレスで検索する。
// 見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindLocalByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1 AND auth_provider = 'local'`,
		email,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find local user by email: %w", err)
	}
	return user, nil
}

// FindByGoogleID はGoogleの外部識別子でユーザーを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE google_id = $1`,
		googleID,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by google ID: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。
// メールアドレスの一意制約違反はErrDuplicateEmailを返す。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, google_id, auth_provider, profile_pic, created_at, last_login_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, $9)`,
		user.ID, user.Name, user.Email,
		user.PasswordHash, user.GoogleID,
		user.AuthProvider, user.ProfilePic,
		user.CreatedAt, user.LastLoginAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// LinkGoogleAccount は既存ユーザーにGoogleアカウントをリンクする。
// google_idを設定しauth_providerをgoogleに更新する。パスワードハッシュは保持される。
// profile_picは未設定の場合のみ上書きする。
func (r *PostgresUserRepo) LinkGoogleAccount(ctx context.Context, userID, googleID, profilePic string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET google_id = $2,
		     auth_provider = 'google',
		     profile_pic = CASE WHEN profile_pic = '' THEN $3 ELSE profile_pic END
		 WHERE id = $1`,
		userID, googleID, profilePic,
	)
	if err != nil {
		return fmt.Errorf("failed to link google account: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", userID)
	}
	return nil
}

// UpdateLastLogin は最終ログイン日時を更新する。
func (r *PostgresUserRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = $2 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
