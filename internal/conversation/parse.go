package conversation

import (
	"strconv"
	"strings"
)

const (
	minAge = 10
	maxAge = 120
)

// parseNumber は入力から整数を取り出す。
// 全体が数字ならそのまま、そうでなければ数字だけを抜き出して解釈する。
// "25 years" は25、"1,50,000" は150000になる。数字がない場合やオーバーフロー時はfalseを返す。
func parseNumber(text string) (int64, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, false
	}
	if !isAllDigits(s) {
		var b strings.Builder
		for _, r := range s {
			if r >= '0' && r <= '9' {
				b.WriteRune(r)
			}
		}
		s = b.String()
		if s == "" {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// parseAge は年齢を解釈し、[minAge, maxAge]の範囲外は不正とする。
func parseAge(text string) (int, bool) {
	n, ok := parseNumber(text)
	if !ok || n < minAge || n > maxAge {
		return 0, false
	}
	return int(n), true
}

// parseIncome は年収を解釈し、0以下は不正とする。
func parseIncome(text string) (int64, bool) {
	n, ok := parseNumber(text)
	if !ok || n <= 0 {
		return 0, false
	}
	return n, true
}
