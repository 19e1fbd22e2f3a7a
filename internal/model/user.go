// Package model はドメインモデルを定義する。
package model

import "time"

// Account はサービス利用ユーザーのアカウントを表す。
// パスワードハッシュは含まない。照合が必要な場合はCredentialsを使う。
type Account struct {
	ID        string
	Email     string // 小文字に正規化済み
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Credentials はパスワード照合用にハッシュを含めて取得したアカウント。
// 認証サービス以外に渡してはならない。
type Credentials struct {
	Account
	PasswordHash string
}

// ResetCandidate は有効期限内のリセットトークンを持つアカウントを表す。
// resetPasswordでのトークン照合に使用する。
type ResetCandidate struct {
	AccountID      string
	ResetTokenHash string
	ResetExpiresAt time.Time
}

// Principal はアクセストークン検証後にリクエストへ付与される認証済みの主体。
// 値型で受け渡し、下流のハンドラーは再検証せずに信頼する。
type Principal struct {
	SubjectID string
	Email     string
}
