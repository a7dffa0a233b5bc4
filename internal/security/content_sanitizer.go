// Package security はパスワード照合、トークン発行、
// リクエストメタデータの無害化などのセキュリティ機能を提供する。
package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// maxUserAgentLength は保存するUser-Agentの最大文字数。
const maxUserAgentLength = 512

// maxSanitizePasses はタグ除去を繰り返す最大回数。
const maxSanitizePasses = 4

// MetadataSanitizer はクライアントが自由に送れる文字列（User-Agent等）を
// セッションや監査ログに保存する前に無害化する。
// 管理画面で表示されることを想定し、HTMLタグはすべて除去する。
type MetadataSanitizer struct {
	policy *bluemonday.Policy
}

// NewMetadataSanitizer はタグを一切許可しないポリシーでMetadataSanitizerを生成する。
func NewMetadataSanitizer() *MetadataSanitizer {
	return &MetadataSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// UserAgent はUser-Agentを無害化し、最大長に切り詰める。
// bluemondayはテキスト中の&や'を実体参照にエスケープするため、タグ除去後に元の文字へ戻す。
// 実体参照で書かれたタグが復元されないよう、結果が変化しなくなるまで除去を繰り返す。
func (s *MetadataSanitizer) UserAgent(raw string) string {
	cleaned := s.stripMarkup(raw)
	if utf8.RuneCountInString(cleaned) <= maxUserAgentLength {
		return cleaned
	}
	runes := []rune(cleaned)
	return string(runes[:maxUserAgentLength])
}

// stripMarkup はタグを除去したプレーンテキストを返す。
func (s *MetadataSanitizer) stripMarkup(raw string) string {
	current := strings.TrimSpace(raw)
	for i := 0; i < maxSanitizePasses; i++ {
		sanitized := s.policy.Sanitize(current)
		plain := strings.TrimSpace(html.UnescapeString(sanitized))
		if plain == current {
			return plain
		}
		current = plain
	}
	// 収束しない入力はエスケープ済みの形で保存する
	return strings.TrimSpace(s.policy.Sanitize(current))
}
