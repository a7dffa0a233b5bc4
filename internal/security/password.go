package security

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost は本番で使用するbcryptのコスト。
const DefaultBcryptCost = 12

// PasswordHasher はbcryptによるパスワードのハッシュ化と照合を行う。
type PasswordHasher struct {
	cost int

	// dummyHash はアカウントが存在しない場合の照合に使う。
	// 存在しないアカウントでも同じコストの計算時間を消費させる。
	dummyOnce sync.Once
	dummyHash []byte
}

// NewPasswordHasher はPasswordHasherを生成する。
// costがbcryptの許容範囲外の場合はDefaultBcryptCostを使用する。
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash はパスワードをbcryptでハッシュ化する。
func (h *PasswordHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password is required")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(b), nil
}

// Verify はパスワードがハッシュと一致するかを返す。
// 不一致は(false, nil)、ハッシュが壊れている場合はエラーを返す。
// hashが空の場合もダミーハッシュで照合を行い、常にfalseを返す。
func (h *PasswordHasher) Verify(hash, password string) (bool, error) {
	if hash == "" {
		_ = bcrypt.CompareHashAndPassword(h.dummy(), []byte(password))
		return false, nil
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("failed to verify password: %w", err)
}

// dummy は初回呼び出し時にダミーハッシュを生成して返す。
func (h *PasswordHasher) dummy() []byte {
	h.dummyOnce.Do(func() {
		b, err := bcrypt.GenerateFromPassword([]byte("lamms-dummy-password"), h.cost)
		if err == nil {
			h.dummyHash = b
		}
	})
	return h.dummyHash
}
