// Package user はアカウント管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sextafeira/sexta/internal/model"
)

// AccountStore は退会処理に必要なアカウント操作のインターフェース。
// repository.AccountRepositoryの部分集合として定義する。
type AccountStore interface {
	FindByID(ctx context.Context, id string) (*model.Account, error)
	DeleteByID(ctx context.Context, id string) error
}

// Service はアカウント管理のサービス層。
// 退会処理のビジネスロジックを提供する。
type Service struct {
	accounts AccountStore
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(accounts AccountStore) *Service {
	return &Service{
		accounts: accounts,
	}
}

// Withdraw はアカウントの退会処理を実行する。
// パスワードハッシュとリセットトークンを含むアカウント行を削除する。
// 発行済みのトークンは有効期限まで署名検証を通るが、
// リフレッシュとアカウント参照はUSER_NOT_FOUNDまたはINVALID_TOKENとなる。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	account, err := s.accounts.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if account == nil {
		return model.NewUserNotFoundError()
	}

	slog.InfoContext(ctx, "退会処理を開始します",
		slog.String("user_id", userID),
	)

	if err := s.accounts.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("アカウントの削除に失敗しました: %w", err)
	}

	slog.InfoContext(ctx, "退会処理が完了しました",
		slog.String("user_id", userID),
	)

	return nil
}
