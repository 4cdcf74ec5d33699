package model

import (
	"strings"
	"time"
)

// ValueSet は小文字に正規化された許容値の集合を表す。
// カタログ読み込み時にスカラー値・リスト値のどちらも同じ形に揃える。
type ValueSet []string

// NewValueSet は値を小文字化・トリムし、空要素と重複を除いたValueSetを生成する。
func NewValueSet(values ...string) ValueSet {
	var set ValueSet
	for _, v := range values {
		n := strings.ToLower(strings.TrimSpace(v))
		if n == "" || set.Contains(n) {
			continue
		}
		set = append(set, n)
	}
	return set
}

// Contains は値が集合に含まれるかを大文字小文字を区別せずに判定する。
func (s ValueSet) Contains(value string) bool {
	n := strings.ToLower(strings.TrimSpace(value))
	if n == "" {
		return false
	}
	for _, v := range s {
		if v == n {
			return true
		}
	}
	return false
}

// EligibilityPredicate はスキームの受給資格条件を表す。
// 設定されたフィールドはすべてAND条件として評価され、未設定は制約なしを意味する。
type EligibilityPredicate struct {
	MinAge     *int     `json:"min_age,omitempty"`
	MaxAge     *int     `json:"max_age,omitempty"`
	MaxIncome  *int64   `json:"max_income,omitempty"`
	Occupation ValueSet `json:"occupation,omitempty"`
	Gender     ValueSet `json:"gender,omitempty"`
	State      string   `json:"state,omitempty"`
	Category   ValueSet `json:"category,omitempty"`
}

// IsRegional は州・地域の条件を持つスキームかどうかを返す。
func (p EligibilityPredicate) IsRegional() bool {
	return p.State != ""
}

// SchemeRecord はカタログに登録された福祉スキームを表す。
// Nameはカタログ内で一意なキーとして扱う。
type SchemeRecord struct {
	Name             string               `json:"name"`
	Category         string               `json:"category"`
	ApplicationSteps []string             `json:"application_steps"`
	Benefits         string               `json:"benefits"`
	Deadline         string               `json:"deadline"`
	Link             string               `json:"link"`
	Eligibility      EligibilityPredicate `json:"eligibility"`
}

// Scheme はポータルで管理者が登録・編集するスキームを表す。
// チャットボットが参照する静的カタログとは別に永続化される。
type Scheme struct {
	ID                string
	Name              string
	Description       string
	Eligibility       string
	Benefits          string
	DocumentsRequired []string
	Link              string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
