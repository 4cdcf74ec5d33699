// Package conversation は制度案内チャットの会話ステートマシンを提供する。
//
// Engineは1ターン分の入力とセッション状態から応答を組み立てる。
// 状態の読み書きと排他制御はServiceが担い、Engine自体は共有状態を持たない。
package conversation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hitoshi/schemebot/internal/catalog"
	"github.com/hitoshi/schemebot/internal/eligibility"
	"github.com/hitoshi/schemebot/internal/fallback"
	"github.com/hitoshi/schemebot/internal/model"
)

const (
	resetKeyword = "start over"
	helpKeyword  = "help"
)

// MatchRecorder は適格性判定で一致した制度数を記録するインターフェース。
type MatchRecorder interface {
	RecordEligibilityMatches(count int)
}

// Engine は会話ステートマシン。
type Engine struct {
	catalog   *catalog.Catalog
	responder fallback.Responder
	region    string
	recorder  MatchRecorder
	states    []string
}

// NewEngine はEngineを生成する。
// regionは地域スキーム一覧で使う州名。responderがnilの場合は常に応答なしとして扱う。
// recorderはnilでもよい。
func NewEngine(cat *catalog.Catalog, responder fallback.Responder, region string, recorder MatchRecorder) *Engine {
	if responder == nil {
		responder = fallback.NopResponder{}
	}
	return &Engine{
		catalog:   cat,
		responder: responder,
		region:    strings.TrimSpace(region),
		recorder:  recorder,
		states:    regionalStates(cat),
	}
}

// Step は1ターン分の入力を処理し、stateを更新して応答を返す。
// リセットとヘルプは現在の状態に関係なく先に判定する。
// 未定義の状態の場合のみエラーを返す。
func (e *Engine) Step(ctx context.Context, state *model.SessionState, text string) (model.ConversationReply, error) {
	norm := normalize(text)

	if strings.Contains(norm, resetKeyword) {
		state.Reset()
		return e.welcome(state), nil
	}
	if norm == helpKeyword {
		// 質問の途中ではメニューの選択肢を出さない
		if state.Step == model.StepWelcome || state.Step == model.StepMenu || state.Step == model.StepResults {
			return withQuickReplies(msgHelp, menuQuickReplies()...), nil
		}
		return model.NewReply(msgHelp), nil
	}

	switch state.Step {
	case model.StepWelcome:
		return e.welcome(state), nil
	case model.StepMenu:
		return e.menu(ctx, state, DecodeAction(text)), nil
	case model.StepAskAge:
		return e.askAge(state, text), nil
	case model.StepAskIncome:
		return e.askIncome(state, text), nil
	case model.StepAskOccupation:
		return e.askOccupation(state, norm), nil
	case model.StepAskState:
		return e.askState(state, norm), nil
	case model.StepResults:
		return e.results(ctx, state, DecodeAction(text)), nil
	default:
		return model.ConversationReply{}, fmt.Errorf("unknown conversation step %q", state.Step)
	}
}

func (e *Engine) welcome(state *model.SessionState) model.ConversationReply {
	state.Step = model.StepMenu
	return withQuickReplies(msgWelcome, menuQuickReplies()...)
}

func (e *Engine) menu(ctx context.Context, state *model.SessionState, action Action) model.ConversationReply {
	state.Step = model.StepMenu

	switch action.Kind {
	case ActionEligibility, ActionCheckAgain:
		return e.startEligibility(state)
	case ActionBrowse:
		state.Browse = &model.BrowseCursor{Filter: string(action.Filter), Offset: 0}
		return e.browsePage(state)
	case ActionMore:
		if state.Browse == nil || state.Browse.Filter != string(action.Filter) {
			state.Browse = &model.BrowseCursor{Filter: string(action.Filter), Offset: 0}
		}
		return e.browsePage(state)
	case ActionDetails:
		return e.details(action.Scheme)
	case ActionGreeting:
		return withQuickReplies(msgWelcome, menuQuickReplies()...)
	}

	if answer, ok := e.responder.Respond(ctx, action.Text); ok {
		return withQuickReplies(answer, menuQuickReplies()...)
	}
	return withQuickReplies(msgNotUnderstood, menuQuickReplies()...)
}

func (e *Engine) startEligibility(state *model.SessionState) model.ConversationReply {
	state.Profile = model.UserProfile{}
	state.Browse = nil
	state.Step = model.StepAskAge
	return model.NewReply(msgAskAge)
}

// browsePage はカーソル位置から1ページ分を表示し、カーソルを進める。
func (e *Engine) browsePage(state *model.SessionState) model.ConversationReply {
	filter := catalog.Filter(state.Browse.Filter)
	schemes := e.catalog.List(filter, e.region)
	title := filterTitle(filter, e.region)

	if len(schemes) == 0 {
		state.Browse = nil
		return withQuickReplies(fmt.Sprintf("%s: no schemes found.", title), menuQuickReplies()...)
	}

	start := state.Browse.Offset
	if start >= len(schemes) {
		state.Browse = nil
		return withQuickReplies(msgNoMore, menuQuickReplies()...)
	}
	end := min(start+pageSize, len(schemes))

	lines := make([]string, 0, end-start+1)
	lines = append(lines, fmt.Sprintf("%s (%d-%d of %d):", title, start+1, end, len(schemes)))
	reply := model.NewReply("")
	for i, s := range schemes[start:end] {
		lines = append(lines, formatSummary(start+i+1, s))
		reply.QuickReplies = append(reply.QuickReplies, model.QuickReply{
			Label:   s.Name,
			Payload: payloadDetailsPrefix + s.Name,
		})
	}
	reply.Text = strings.Join(lines, "\n")

	state.Browse.Offset = end
	if end < len(schemes) {
		reply.QuickReplies = append(reply.QuickReplies, model.QuickReply{
			Label:   "More",
			Payload: payloadMorePrefix + string(filter),
		})
	} else {
		state.Browse = nil
	}
	reply.QuickReplies = append(reply.QuickReplies, model.QuickReply{Label: "Main menu", Payload: payloadMenu})
	return reply
}

func (e *Engine) details(name string) model.ConversationReply {
	s, ok := e.catalog.Find(name)
	if !ok {
		return withQuickReplies(fmt.Sprintf("I couldn't find a scheme called %q.", name), menuQuickReplies()...)
	}
	reply := withQuickReplies(formatDetails(s),
		model.QuickReply{Label: "Check eligibility", Payload: payloadEligibility},
		model.QuickReply{Label: "Main menu", Payload: payloadMenu},
	)
	if s.Link != "" {
		reply.Buttons = append(reply.Buttons, model.Button{Label: "Apply", URL: s.Link})
	}
	return reply
}

func (e *Engine) askAge(state *model.SessionState, text string) model.ConversationReply {
	age, ok := parseAge(text)
	if !ok {
		return model.NewReply(msgInvalidAge)
	}
	state.Profile.Age = &age
	state.Step = model.StepAskIncome
	return model.NewReply(msgAskIncome)
}

func (e *Engine) askIncome(state *model.SessionState, text string) model.ConversationReply {
	income, ok := parseIncome(text)
	if !ok {
		return model.NewReply(msgInvalidIncome)
	}
	state.Profile.Income = &income
	state.Step = model.StepAskOccupation
	return withQuickReplies(msgAskOccupation,
		model.QuickReply{Label: "Farmer", Payload: "farmer"},
		model.QuickReply{Label: "Student", Payload: "student"},
		model.QuickReply{Label: "Artisan", Payload: "artisan"},
		model.QuickReply{Label: "Business", Payload: "business"},
		model.QuickReply{Label: "Other", Payload: "other"},
	)
}

func (e *Engine) askOccupation(state *model.SessionState, occupation string) model.ConversationReply {
	if occupation == "" {
		return model.NewReply(msgEmptyAnswer)
	}
	state.Profile.Occupation = occupation
	state.Step = model.StepAskState

	reply := model.NewReply(msgAskState)
	for _, s := range e.states {
		reply.QuickReplies = append(reply.QuickReplies, model.QuickReply{Label: s, Payload: strings.ToLower(s)})
	}
	return reply
}

func (e *Engine) askState(state *model.SessionState, region string) model.ConversationReply {
	if region == "" {
		return model.NewReply(msgEmptyAnswer)
	}
	state.Profile.State = region
	state.Step = model.StepResults

	all := e.catalog.All()
	matches := eligibility.Match(state.Profile, all)
	if e.recorder != nil {
		e.recorder.RecordEligibilityMatches(len(matches))
	}

	resultReplies := []model.QuickReply{
		{Label: "Check again", Payload: payloadCheckAgain},
		{Label: "Browse schemes", Payload: payloadBrowsePrefix + string(catalog.FilterAll)},
		{Label: "Start over", Payload: payloadStartOver},
	}

	if len(matches) == 0 {
		text := msgNoMatches
		if misses := actionableMisses(state.Profile, eligibility.NearMisses(state.Profile, all)); len(misses) > 0 {
			text += "\n\n" + formatSuggestions(misses)
		}
		return withQuickReplies(text, resultReplies...)
	}

	shown := matches
	if len(shown) > maxResults {
		shown = shown[:maxResults]
	}
	lines := make([]string, 0, len(shown)+2)
	lines = append(lines, fmt.Sprintf("You may be eligible for %d scheme(s):", len(matches)))
	reply := withQuickReplies("", resultReplies...)
	for i, s := range shown {
		lines = append(lines, formatResult(i+1, s))
		if s.Link != "" {
			reply.Buttons = append(reply.Buttons, model.Button{Label: "Apply: " + s.Name, URL: s.Link})
		}
	}
	if len(matches) > len(shown) {
		lines = append(lines, fmt.Sprintf("...and %d more. Browse schemes to see the full list.", len(matches)-len(shown)))
	}
	reply.Text = strings.Join(lines, "\n")
	return reply
}

func (e *Engine) results(ctx context.Context, state *model.SessionState, action Action) model.ConversationReply {
	if action.Kind == ActionCheckAgain {
		return e.startEligibility(state)
	}
	return e.menu(ctx, state, action)
}

// regionalStates はカタログに含まれる州名を重複なく昇順で返す。
func regionalStates(cat *catalog.Catalog) []string {
	seen := make(map[string]bool)
	var states []string
	for _, s := range cat.All() {
		st := s.Eligibility.State
		if st == "" || seen[strings.ToLower(st)] {
			continue
		}
		seen[strings.ToLower(st)] = true
		states = append(states, st)
	}
	sort.Strings(states)
	return states
}

// actionableMisses は対話で入力できない項目（社会区分・性別）が未入力のまま
// 不一致となった候補を除外する。
func actionableMisses(profile model.UserProfile, misses []eligibility.NearMiss) []eligibility.NearMiss {
	out := misses[:0:0]
	for _, m := range misses {
		switch {
		case m.Failed == eligibility.ConstraintCategory && profile.Category == "":
			continue
		case m.Failed == eligibility.ConstraintGender && profile.Gender == "":
			continue
		}
		out = append(out, m)
	}
	return out
}
