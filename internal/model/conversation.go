package model

import "time"

// Step は会話ステートマシンの状態を表す。
type Step string

const (
	StepWelcome       Step = "WELCOME"
	StepMenu          Step = "MENU"
	StepAskAge        Step = "ASK_AGE"
	StepAskIncome     Step = "ASK_INCOME"
	StepAskOccupation Step = "ASK_OCCUPATION"
	StepAskState      Step = "ASK_STATE"
	StepResults       Step = "RESULTS"
)

// Valid は定義済みの状態かどうかを返す。
func (s Step) Valid() bool {
	switch s {
	case StepWelcome, StepMenu, StepAskAge, StepAskIncome,
		StepAskOccupation, StepAskState, StepResults:
		return true
	}
	return false
}

// UserProfile は会話を通じて収集する利用者の属性を表す。
// 会話開始時は空で、再スタート時にクリアされる。
type UserProfile struct {
	Age        *int   `json:"age,omitempty"`
	Income     *int64 `json:"income,omitempty"`
	Occupation string `json:"occupation,omitempty"`
	State      string `json:"state,omitempty"`
	Category   string `json:"category,omitempty"`
	Gender     string `json:"gender,omitempty"`
}

// BrowseCursor はカタログ閲覧のページング位置を表す。
type BrowseCursor struct {
	Filter string `json:"filter"`
	Offset int    `json:"offset"`
}

// SessionState は1つの会話セッションの状態を表す。
// JSONで保存され、未知のキーを含むデータは破損として扱う。
type SessionState struct {
	SessionID    string        `json:"session_id"`
	Step         Step          `json:"step"`
	Profile      UserProfile   `json:"profile"`
	Browse       *BrowseCursor `json:"browse,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	LastActiveAt time.Time     `json:"last_active_at"`
}

// NewSessionState はWELCOME状態の新しいセッションを生成する。
func NewSessionState(sessionID string, now time.Time) *SessionState {
	return &SessionState{
		SessionID:    sessionID,
		Step:         StepWelcome,
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

// Reset はプロフィールと閲覧位置をクリアしてWELCOME状態に戻す。
func (s *SessionState) Reset() {
	s.Step = StepWelcome
	s.Profile = UserProfile{}
	s.Browse = nil
}

// QuickReply はタップで送信できる定型返信を表す。
type QuickReply struct {
	Label   string `json:"label"`
	Payload string `json:"payload"`
}

// Button は外部URLへのリンクボタンを表す。
type Button struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// ConversationReply は1ターン分のボットの応答を表す。
// QuickRepliesとButtonsは空でもnilにせず空配列としてシリアライズする。
type ConversationReply struct {
	Text         string       `json:"text"`
	QuickReplies []QuickReply `json:"quick_replies"`
	Buttons      []Button     `json:"buttons"`
}

// NewReply はテキストのみの応答を生成する。
func NewReply(text string) ConversationReply {
	return ConversationReply{
		Text:         text,
		QuickReplies: []QuickReply{},
		Buttons:      []Button{},
	}
}
