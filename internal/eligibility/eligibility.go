// Package eligibility はプロフィールとスキームの受給条件を照合する。
// すべての関数は純粋関数で、I/Oや共有状態を持たない。
package eligibility

import (
	"math"
	"sort"
	"strings"

	"github.com/hitoshi/schemebot/internal/model"
)

// Constraint は受給条件の各項目を表す。
type Constraint string

const (
	ConstraintMinAge     Constraint = "min_age"
	ConstraintMaxAge     Constraint = "max_age"
	ConstraintMaxIncome  Constraint = "max_income"
	ConstraintOccupation Constraint = "occupation"
	ConstraintState      Constraint = "state"
	ConstraintCategory   Constraint = "category"
	ConstraintGender     Constraint = "gender"
)

// Check は条件項目ごとの判定結果。
type Check struct {
	Constraint Constraint
	Passed     bool
}

// Evaluate は条件に設定された項目ごとに判定結果を返す。
// 未設定の項目は結果に含めない。
// 年齢が未入力の場合は0歳、所得が未入力の場合は無限大として扱う。
func Evaluate(profile model.UserProfile, pred model.EligibilityPredicate) []Check {
	age := 0
	if profile.Age != nil {
		age = *profile.Age
	}
	income := int64(math.MaxInt64)
	if profile.Income != nil {
		income = *profile.Income
	}

	var checks []Check
	add := func(c Constraint, passed bool) {
		checks = append(checks, Check{Constraint: c, Passed: passed})
	}

	if pred.MinAge != nil {
		add(ConstraintMinAge, age >= *pred.MinAge)
	}
	if pred.MaxAge != nil {
		add(ConstraintMaxAge, age <= *pred.MaxAge)
	}
	if pred.MaxIncome != nil {
		add(ConstraintMaxIncome, income <= *pred.MaxIncome)
	}
	if len(pred.Occupation) > 0 {
		add(ConstraintOccupation, pred.Occupation.Contains(profile.Occupation))
	}
	if pred.State != "" {
		add(ConstraintState, strings.EqualFold(strings.TrimSpace(profile.State), pred.State))
	}
	if len(pred.Category) > 0 {
		add(ConstraintCategory, pred.Category.Contains(profile.Category))
	}
	if len(pred.Gender) > 0 {
		add(ConstraintGender, pred.Gender.Contains(profile.Gender))
	}
	return checks
}

// IsEligible はプロフィールがすべての条件を満たすかを返す。
// 条件が空の場合は常にtrueとなる。
func IsEligible(profile model.UserProfile, pred model.EligibilityPredicate) bool {
	for _, c := range Evaluate(profile, pred) {
		if !c.Passed {
			return false
		}
	}
	return true
}

// Match は条件を満たすスキームをカテゴリ名、スキーム名の昇順で返す。
func Match(profile model.UserProfile, schemes []model.SchemeRecord) []model.SchemeRecord {
	var matched []model.SchemeRecord
	for _, s := range schemes {
		if IsEligible(profile, s.Eligibility) {
			matched = append(matched, s)
		}
	}
	SortSchemes(matched)
	return matched
}

// SortSchemes はスキームをカテゴリ名、スキーム名の昇順に並べ替える。
// 比較は大文字小文字を区別せず、同値の場合は元の文字列で比較する。
func SortSchemes(schemes []model.SchemeRecord) {
	sort.SliceStable(schemes, func(i, j int) bool {
		a, b := schemes[i], schemes[j]
		if c := compareFold(a.Category, b.Category); c != 0 {
			return c < 0
		}
		return compareFold(a.Name, b.Name) < 0
	})
}

func compareFold(a, b string) int {
	if c := strings.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

// NearMiss は1項目だけ条件を満たさなかったスキームを表す。
type NearMiss struct {
	Scheme model.SchemeRecord
	Failed Constraint
}

// NearMisses はちょうど1項目だけ不一致だったスキームを返す。
// 該当なしの場合に条件緩和の候補として提示する。
func NearMisses(profile model.UserProfile, schemes []model.SchemeRecord) []NearMiss {
	var misses []NearMiss
	for _, s := range schemes {
		var failed []Constraint
		for _, c := range Evaluate(profile, s.Eligibility) {
			if !c.Passed {
				failed = append(failed, c.Constraint)
			}
		}
		if len(failed) == 1 {
			misses = append(misses, NearMiss{Scheme: s, Failed: failed[0]})
		}
	}
	sort.SliceStable(misses, func(i, j int) bool {
		return compareFold(misses[i].Scheme.Name, misses[j].Scheme.Name) < 0
	})
	return misses
}
