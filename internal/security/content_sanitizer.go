// Package security はアプリケーションのセキュリティ機能を提供する。
//
// InputSanitizerService はユーザー入力（表示名、チャットメッセージ、
// スレッドタイトル）をサニタイズし、XSS攻撃などのセキュリティリスクから
// ユーザーを保護する。bluemondayライブラリの厳格ポリシーを使用し、
// HTMLタグを全て除去してプレーンテキストのみを通過させる。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// InputSanitizerService はユーザー入力のサニタイズ機能のインターフェースを定義する。
// 表示名・メッセージ・タイトルの保存前に使用される。
type InputSanitizerService interface {
	// Sanitize は入力からHTMLタグを全て除去し、前後の空白を取り除いて返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(input string) string
}

// inputSanitizer はInputSanitizerServiceの実装。
// bluemondayの厳格ポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type inputSanitizer struct {
	policy *bluemonday.Policy
}

// NewInputSanitizer はInputSanitizerServiceの新しいインスタンスを生成する。
// チャット入力はマークアップとして解釈されないため、許可タグは一切なし。
// script, img, aを含む全てのタグとon*イベント属性が除去される。
func NewInputSanitizer() *inputSanitizer {
	return &inputSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力からHTMLタグを全て除去し、前後の空白を取り除いて返す。
func (s *inputSanitizer) Sanitize(input string) string {
	return strings.TrimSpace(s.policy.Sanitize(input))
}
