// Package password はbcryptによるパスワードハッシュを提供する。
package password

import (
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Hasher はパスワードのハッシュ化と照合のインターフェース。
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
	// VerifyDummy は固定のダミーハッシュと照合する。
	// 未登録ユーザーでも照合1回分の時間を消費させるために使う。
	VerifyDummy(plain string)
}

// BcryptHasher はbcryptを使ったHasher実装。
type BcryptHasher struct {
	cost int

	dummyOnce sync.Once
	dummyHash []byte
}

// NewBcryptHasher はBcryptHasherを生成する。costが範囲外の場合はbcrypt.DefaultCostを使う。
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash はパスワードをハッシュ化する。
func (h *BcryptHasher) Hash(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Verify はパスワードがハッシュと一致するかを返す。
func (h *BcryptHasher) Verify(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// VerifyDummy はダミーハッシュと照合し、結果は捨てる。
func (h *BcryptHasher) VerifyDummy(plain string) {
	h.dummyOnce.Do(func() {
		// 生成に失敗した場合はnilのままとなり、照合は即時に失敗する
		h.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("todoman-dummy-password"), h.cost)
	})
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(plain))
}

var _ Hasher = (*BcryptHasher)(nil)
