// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はユーザー入力のプレーンテキスト項目からHTMLを取り除き、
// 保存値がそのまま表示されてもマークアップとして解釈されないようにする。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はプレーンテキスト項目のサニタイズ機能のインターフェースを定義する。
// TODOのtitleとdescriptionの保存前に使用される。
type TextSanitizer interface {
	// Sanitize は全てのタグを除去したテキストを返す。
	// script, styleは中身ごと除去され、その他のタグは中のテキストだけが残る。
	// 前後の空白は除去する。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はタグを除去したテキストを返す。
// bluemondayは出力をHTMLエスケープするため、保存用にエスケープを戻す。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}
