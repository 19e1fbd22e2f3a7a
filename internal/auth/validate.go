package auth

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/sextafeira/sexta/internal/model"
)

// 入力値の制約
const (
	minPasswordLength = 8
	maxPasswordBytes  = 72 // bcryptが扱える上限
	minNameLength     = 2
	maxNameLength     = 100
	maxEmailLength    = 254
)

// NormalizeEmail はメールアドレスを前後空白除去・小文字化して正規化する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validateEmail は正規化済みメールアドレスの形式を検証する。
func validateEmail(email string) error {
	if email == "" {
		return model.NewValidationError("メールアドレスは必須です")
	}
	if len(email) > maxEmailLength {
		return model.NewValidationError("メールアドレスが長すぎます")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return model.NewValidationError("メールアドレスの形式が正しくありません")
	}
	return nil
}

// validateNewPassword は新規設定するパスワードを検証する。
func validateNewPassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return model.NewValidationError("パスワードは8文字以上で入力してください")
	}
	if len(password) > maxPasswordBytes {
		return model.NewValidationError("パスワードが長すぎます")
	}
	return nil
}

// validateName はトリム済みの表示名を検証する。
func validateName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < minNameLength {
		return model.NewValidationError("名前は2文字以上で入力してください")
	}
	if n > maxNameLength {
		return model.NewValidationError("名前が長すぎます")
	}
	return nil
}
