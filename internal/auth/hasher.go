package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// MinBcryptCost はbcryptのコスト下限。
const MinBcryptCost = 10

// PasswordHasher は平文シークレットの一方向ハッシュ化と照合を提供する。
// パスワードとリセットトークンの双方に使用する。
type PasswordHasher interface {
	// Hash は平文からソルト付きハッシュを生成する。同じ入力でも呼び出しごとに異なる値になる。
	Hash(ctx context.Context, plaintext string) (string, error)
	// Verify は平文がハッシュと一致するかを返す。
	// 不一致は(false, nil)、ハッシュ形式不正などはエラーを返す。
	Verify(ctx context.Context, plaintext, hashed string) (bool, error)
}

// BcryptHasher はbcryptによるPasswordHasherの実装。
// CPU負荷の高い計算の同時実行数をセマフォで制限する。
type BcryptHasher struct {
	cost int
	sem  *semaphore.Weighted
}

// NewBcryptHasher はBcryptHasherを生成する。
// costがMinBcryptCost未満の場合はMinBcryptCostを使う。maxConcurrentは1以上に補正する。
func NewBcryptHasher(cost, maxConcurrent int) *BcryptHasher {
	if cost < MinBcryptCost {
		cost = MinBcryptCost
	}
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &BcryptHasher{
		cost: cost,
		sem:  semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// Cost は使用するbcryptコストを返す。
func (h *BcryptHasher) Cost() int {
	return h.cost
}

// Hash は平文のbcryptハッシュを生成する。
// 乱数生成などプリミティブ自体の失敗は内部エラーとして返す。
func (h *BcryptHasher) Hash(ctx context.Context, plaintext string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("failed to acquire hashing slot: %w", err)
	}
	defer h.sem.Release(1)

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(hashed), nil
}

// Verify は平文とbcryptハッシュを照合する。
func (h *BcryptHasher) Verify(ctx context.Context, plaintext, hashed string) (bool, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("failed to acquire hashing slot: %w", err)
	}
	defer h.sem.Release(1)

	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plaintext))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("failed to verify secret: %w", err)
}

// compile-time interface check
var _ PasswordHasher = (*BcryptHasher)(nil)
