// Package fallback はメニューで解釈できない自由入力への応答を提供する。
//
// 応答器が使えない場合や失敗した場合は「応答なし」を返し、
// 呼び出し元は定型の案内文を返す。
package fallback

import (
	"context"
	"unicode/utf8"
)

// Responder は自由入力に対する応答を生成するインターフェース。
type Responder interface {
	// Respond は応答テキストを返す。応答できない場合はokがfalseになる。
	// エラーは呼び出し元に返さず、内部でログに記録する。
	Respond(ctx context.Context, text string) (reply string, ok bool)
}

// OutcomeRecorder は応答結果を記録するインターフェース。
type OutcomeRecorder interface {
	RecordFallbackResponse(outcome string)
}

// NopResponder は常に応答なしを返すResponder実装。
// 生成モデルのAPIキーが未設定の場合に使用する。
type NopResponder struct{}

// Respond は常に応答なしを返す。
func (NopResponder) Respond(context.Context, string) (string, bool) {
	return "", false
}

// truncateRunes は文字列をn文字までに切り詰める。
func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

var _ Responder = NopResponder{}
