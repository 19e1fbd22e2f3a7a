package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Reset token configuration.
const (
	ResetTokenBytes      = 32 // 32 bytes = 64 hex chars
	DefaultResetTokenTTL = time.Hour
)

// GenerateResetToken は暗号論的に安全なランダムトークンを生成する。
// 平文はユーザーに一度だけ渡し、保存するのはハッシュのみとする。
func GenerateResetToken() (string, error) {
	b := make([]byte, ResetTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate reset token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// isWellFormedResetToken はGenerateResetTokenの出力形式かどうかを判定する。
// 形式外の入力はハッシュ照合の前に弾く。
func isWellFormedResetToken(token string) bool {
	if len(token) != ResetTokenBytes*2 {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}
