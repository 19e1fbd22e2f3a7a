// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/sextafeira/sexta/internal/model"
)

// AccountRepository はアカウント（認証情報）の永続化インターフェース。
// パスワードハッシュを返すのはFindCredentials*のみとする。
type AccountRepository interface {
	// FindByEmail は正規化済みメールアドレスでアカウントを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Account, error)

	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// FindCredentialsByEmail はパスワードハッシュを含めてアカウントを取得する。
	// 見つからない場合はnilを返す。
	FindCredentialsByEmail(ctx context.Context, email string) (*model.Credentials, error)

	// FindCredentialsByID はパスワードハッシュを含めてアカウントを取得する。
	// 見つからない場合はnilを返す。
	FindCredentialsByID(ctx context.Context, id string) (*model.Credentials, error)

	// Create はアカウントを作成する。
	// メールアドレスの重複確認と挿入は単一の文で行い、重複時はDUPLICATE_EMAILのAPIErrorを返す。
	Create(ctx context.Context, account *model.Account, passwordHash string) error

	// UpdatePasswordHash はパスワードハッシュを更新する。
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error

	// SetResetToken はリセットトークンのハッシュと有効期限を設定する。
	// 既存のリセットトークンは上書きされ、即座に無効になる。
	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error

	// ClearResetToken はリセットトークンのハッシュと有効期限を同時にクリアする。
	ClearResetToken(ctx context.Context, id string) error

	// ListActiveResetTokens はnow時点で有効なリセットトークンを持つアカウントを返す。
	ListActiveResetTokens(ctx context.Context, now time.Time) ([]model.ResetCandidate, error)

	// ConsumeResetToken は保存済みトークンハッシュがtokenHashのまま有効期限内である場合に限り、
	// パスワードハッシュを更新しリセットトークンをクリアする。
	// 他のリクエストが先に消費・上書きしていた場合はfalseを返す。
	ConsumeResetToken(ctx context.Context, id, tokenHash, newPasswordHash string, now time.Time) (bool, error)

	// DeleteByID は指定IDのアカウントを削除する。
	DeleteByID(ctx context.Context, id string) error
}
