package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sextafeira/sexta/internal/model"
)

// pgUniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const pgUniqueViolation = "23505"

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// FindByEmail は正規化済みメールアドレスでアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	account := &model.Account{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, name, created_at, updated_at FROM accounts WHERE email = $1`,
		email,
	).Scan(&account.ID, &account.Email, &account.Name, &account.CreatedAt, &account.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by email: %w", err)
	}

	return account, nil
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	account := &model.Account{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, name, created_at, updated_at FROM accounts WHERE id = $1`,
		id,
	).Scan(&account.ID, &account.Email, &account.Name, &account.CreatedAt, &account.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by ID: %w", err)
	}

	return account, nil
}

// FindCredentialsByEmail はパスワードハッシュを含めてアカウントを取得する。
func (r *PostgresAccountRepo) FindCredentialsByEmail(ctx context.Context, email string) (*model.Credentials, error) {
	return r.findCredentials(ctx,
		`SELECT id, email, name, password_hash, created_at, updated_at FROM accounts WHERE email = $1`,
		email,
	)
}

// FindCredentialsByID はパスワードハッシュを含めてアカウントを取得する。
func (r *PostgresAccountRepo) FindCredentialsByID(ctx context.Context, id string) (*model.Credentials, error) {
	return r.findCredentials(ctx,
		`SELECT id, email, name, password_hash, created_at, updated_at FROM accounts WHERE id = $1`,
		id,
	)
}

func (r *PostgresAccountRepo) findCredentials(ctx context.Context, query string, arg string) (*model.Credentials, error) {
	creds := &model.Credentials{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&creds.ID, &creds.Email, &creds.Name, &creds.PasswordHash, &creds.CreatedAt, &creds.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account credentials: %w", err)
	}

	return creds, nil
}

// Create はアカウントを作成する。
// ON CONFLICTにより重複確認と挿入を単一の文で行うため、同一メールアドレスの同時登録でも
// 作成されるのは1件のみとなる。
func (r *PostgresAccountRepo) Create(ctx context.Context, account *model.Account, passwordHash string) error {
	var id string
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO accounts (id, email, name, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (email) DO NOTHING
		 RETURNING id`,
		account.ID, account.Email, account.Name, passwordHash, account.CreatedAt, account.UpdatedAt,
	).Scan(&id)

	if err == sql.ErrNoRows {
		return model.NewDuplicateEmailError()
	}
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return model.NewDuplicateEmailError()
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}

	return nil
}

// UpdatePasswordHash はパスワードハッシュを更新する。
func (r *PostgresAccountRepo) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	return r.execOne(ctx, "update password hash", id,
		`UPDATE accounts SET password_hash = $2, updated_at = now() WHERE id = $1`,
		id, passwordHash,
	)
}

// SetResetToken はリセットトークンのハッシュと有効期限を設定する。
func (r *PostgresAccountRepo) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	return r.execOne(ctx, "set reset token", id,
		`UPDATE accounts
		 SET reset_token_hash = $2, reset_token_expiry = $3, updated_at = now()
		 WHERE id = $1`,
		id, tokenHash, expiresAt,
	)
}

// ClearResetToken はリセットトークンのハッシュと有効期限を同時にクリアする。
func (r *PostgresAccountRepo) ClearResetToken(ctx context.Context, id string) error {
	return r.execOne(ctx, "clear reset token", id,
		`UPDATE accounts
		 SET reset_token_hash = NULL, reset_token_expiry = NULL, updated_at = now()
		 WHERE id = $1`,
		id,
	)
}

// ListActiveResetTokens はnow時点で有効なリセットトークンを持つアカウントを返す。
func (r *PostgresAccountRepo) ListActiveResetTokens(ctx context.Context, now time.Time) ([]model.ResetCandidate, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, reset_token_hash, reset_token_expiry
		 FROM accounts
		 WHERE reset_token_hash IS NOT NULL AND reset_token_expiry > $1
		 ORDER BY reset_token_expiry DESC`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list active reset tokens: %w", err)
	}
	defer rows.Close()

	var candidates []model.ResetCandidate
	for rows.Next() {
		var c model.ResetCandidate
		if err := rows.Scan(&c.AccountID, &c.ResetTokenHash, &c.ResetExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan reset candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reset candidates: %w", err)
	}

	return candidates, nil
}

// ConsumeResetToken は条件付きUPDATEでリセットトークンを1回だけ消費する。
func (r *PostgresAccountRepo) ConsumeResetToken(ctx context.Context, id, tokenHash, newPasswordHash string, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts
		 SET password_hash = $3, reset_token_hash = NULL, reset_token_expiry = NULL, updated_at = now()
		 WHERE id = $1 AND reset_token_hash = $2 AND reset_token_expiry > $4`,
		id, tokenHash, newPasswordHash, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to consume reset token: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// DeleteByID は指定IDのアカウントを削除する。
func (r *PostgresAccountRepo) DeleteByID(ctx context.Context, id string) error {
	return r.execOne(ctx, "delete account", id,
		`DELETE FROM accounts WHERE id = $1`,
		id,
	)
}

// execOne は1行の更新を期待する文を実行する。対象がなければUSER_NOT_FOUNDを返す。
func (r *PostgresAccountRepo) execOne(ctx context.Context, op, id, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("account not found: %s: %w", id, model.NewUserNotFoundError())
	}
	return nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
