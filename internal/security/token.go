package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// tokenBytes はBearerトークンのランダム部のバイト数。
const tokenBytes = 32

// TokenGenerator は不透明なBearerトークンを発行する。
type TokenGenerator struct{}

// NewTokenGenerator はTokenGeneratorを生成する。
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{}
}

// Generate は暗号的に安全なトークンと、その保存用ハッシュを返す。
// 平文トークンはクライアントに一度だけ返し、永続化してはならない。
func (g *TokenGenerator) Generate() (plain string, hash string, err error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("failed to generate token: %w", err)
	}
	plain = hex.EncodeToString(b)
	return plain, HashToken(plain), nil
}

// HashToken はトークンのSHA-256ハッシュ（hex）を返す。
// セッション検索はこのハッシュで行う。
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
