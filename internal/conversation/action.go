package conversation

import (
	"strings"

	"github.com/hitoshi/schemebot/internal/catalog"
)

// ActionKind はメニュー入力の種別を表す。
type ActionKind int

const (
	ActionUnknown ActionKind = iota
	ActionGreeting
	ActionEligibility
	ActionBrowse
	ActionMore
	ActionDetails
	ActionCheckAgain
)

// クイックリプライのペイロード接頭辞。
const (
	payloadBrowsePrefix  = "browse_"
	payloadMorePrefix    = "more_"
	payloadDetailsPrefix = "details_"
	payloadCheckAgain    = "check_again"
	payloadEligibility   = "eligibility"
	payloadMenu          = "menu"
	payloadHelp          = "help"
	payloadStartOver     = "start over"
)

// Action はメニュー入力を1回だけ解釈した結果。
// Filterは閲覧系、Schemeは詳細表示、Textは解釈できなかった入力で使用する。
type Action struct {
	Kind   ActionKind
	Filter catalog.Filter
	Scheme string
	Text   string
}

var eligibilityWords = map[string]bool{
	"eligibility":       true,
	"check eligibility": true,
	"check_eligibility": true,
	"eligible":          true,
	"am i eligible":     true,
	"am i eligible?":    true,
	"yes":               true,
	"y":                 true,
	"1":                 true,
}

var browseWords = map[string]catalog.Filter{
	"browse":           catalog.FilterAll,
	"browse schemes":   catalog.FilterAll,
	"browse all":       catalog.FilterAll,
	"all schemes":      catalog.FilterAll,
	"schemes":          catalog.FilterAll,
	"list":             catalog.FilterAll,
	"2":                catalog.FilterAll,
	"central":          catalog.FilterCentral,
	"central schemes":  catalog.FilterCentral,
	"regional":         catalog.FilterRegion,
	"region":           catalog.FilterRegion,
	"state schemes":    catalog.FilterRegion,
	"regional schemes": catalog.FilterRegion,
}

var greetingWords = map[string]bool{
	"hi":        true,
	"hello":     true,
	"hey":       true,
	"namaste":   true,
	"menu":      true,
	"main menu": true,
	"start":     true,
	"options":   true,
}

// DecodeAction はメニュー状態での入力をActionに変換する。
func DecodeAction(text string) Action {
	raw := strings.TrimSpace(text)
	norm := normalize(raw)

	switch {
	case norm == payloadCheckAgain || norm == "check again":
		return Action{Kind: ActionCheckAgain}
	case strings.HasPrefix(norm, payloadMorePrefix):
		if f, err := catalog.ParseFilter(strings.TrimPrefix(norm, payloadMorePrefix)); err == nil {
			return Action{Kind: ActionMore, Filter: f}
		}
	case strings.HasPrefix(norm, payloadBrowsePrefix):
		if f, err := catalog.ParseFilter(strings.TrimPrefix(norm, payloadBrowsePrefix)); err == nil {
			return Action{Kind: ActionBrowse, Filter: f}
		}
	case strings.HasPrefix(norm, payloadDetailsPrefix):
		if name := strings.TrimSpace(raw[len(payloadDetailsPrefix):]); name != "" {
			return Action{Kind: ActionDetails, Scheme: name}
		}
	case eligibilityWords[norm]:
		return Action{Kind: ActionEligibility}
	case greetingWords[norm]:
		return Action{Kind: ActionGreeting}
	}

	if f, ok := browseWords[norm]; ok {
		return Action{Kind: ActionBrowse, Filter: f}
	}
	if strings.Contains(norm, "eligib") {
		return Action{Kind: ActionEligibility}
	}
	return Action{Kind: ActionUnknown, Text: raw}
}

// normalize は前後の空白を除去し、連続する空白を1つにまとめて小文字化する。
func normalize(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}
