// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService は管理者が登録する制度説明や生成モデルの応答を
// サニタイズし、XSS攻撃などのセキュリティリスクから利用者を保護する。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// 安全なタグと属性のみを通過させる。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はテキストのサニタイズ機能のインターフェースを定義する。
type ContentSanitizerService interface {
	// Sanitize は入力をサニタイズして安全な文字列を返す。
	// 空文字列の入力には空文字列を返す。
	Sanitize(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy    *bluemonday.Policy
	plainText bool
}

// NewContentSanitizer は制度説明などのリッチテキスト用サニタイザーを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, a, ul, ol, li, strong, em
//   - 禁止タグ: script, iframe, style, img および全てのon*イベント属性
//   - aのhref属性: http/httpsの絶対URLのみ許可
//   - aタグ: target="_blank" と rel="noopener noreferrer" を自動付与
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"strong", "em",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &contentSanitizer{
		policy: p,
	}
}

// NewPlainTextSanitizer は全てのタグを除去するプレーンテキスト用サニタイザーを生成する。
// 生成モデルの応答や利用者の入力した名前など、HTMLを含むべきでない値に使用する。
// 出力はテキストとして表示される前提で、HTMLエンティティは元の文字に戻す。
func NewPlainTextSanitizer() *contentSanitizer {
	return &contentSanitizer{
		policy:    bluemonday.StrictPolicy(),
		plainText: true,
	}
}

// Sanitize は入力をサニタイズして安全な文字列を返す。
func (s *contentSanitizer) Sanitize(raw string) string {
	out := s.policy.Sanitize(raw)
	if s.plainText {
		out = strings.TrimSpace(html.UnescapeString(out))
	}
	return out
}
