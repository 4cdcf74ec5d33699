package conversation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hitoshi/schemebot/internal/catalog"
	"github.com/hitoshi/schemebot/internal/eligibility"
	"github.com/hitoshi/schemebot/internal/model"
)

const (
	msgWelcome = "Namaste! I can help you find government schemes you may be eligible for.\n" +
		"What would you like to do?"
	msgMenu = "What would you like to do next?"
	msgHelp = "Here is what I can do:\n" +
		"- Type \"check eligibility\" and answer four short questions to see schemes you may qualify for.\n" +
		"- Type \"browse\", \"central\" or \"regional\" to list schemes.\n" +
		"- Type \"start over\" at any time to begin again."
	msgNotUnderstood = "Sorry, I didn't understand that. You can check your eligibility or browse schemes."
	msgAskAge        = "How old are you? Please enter your age in years."
	msgInvalidAge    = "Please enter a valid age between 10 and 120."
	msgAskIncome     = "What is your annual family income in rupees?"
	msgInvalidIncome = "Please enter your annual income as a number greater than zero, for example 150000."
	msgAskOccupation = "What is your occupation? For example farmer, student or artisan."
	msgEmptyAnswer   = "Please type an answer so I can continue."
	msgAskState      = "Which state do you live in?"
	msgNoMatches     = "I couldn't find any schemes that match your details right now. " +
		"Try adjusting your answers or browse all schemes."
	msgNoMore       = "There are no more schemes in this list."
	msgInternalFail = "Something went wrong, let's start over."
)

// 一度に表示する件数。
const (
	pageSize       = 5
	maxResults     = 10
	maxSuggestions = 3
)

func menuQuickReplies() []model.QuickReply {
	return []model.QuickReply{
		{Label: "Check eligibility", Payload: payloadEligibility},
		{Label: "Browse schemes", Payload: payloadBrowsePrefix + string(catalog.FilterAll)},
		{Label: "Help", Payload: payloadHelp},
	}
}

func withQuickReplies(text string, replies ...model.QuickReply) model.ConversationReply {
	r := model.NewReply(text)
	r.QuickReplies = append(r.QuickReplies, replies...)
	return r
}

func filterTitle(filter catalog.Filter, region string) string {
	switch filter {
	case catalog.FilterCentral:
		return "Central government schemes"
	case catalog.FilterRegion:
		if region == "" {
			return "Regional schemes"
		}
		return "Schemes for " + region
	default:
		return "All schemes"
	}
}

// formatRupees は金額を "Rs 1,50,000" のようなインド式の桁区切りで表す。
func formatRupees(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return "Rs " + s
	}
	head, tail := s[:len(s)-3], s[len(s)-3:]
	var parts []string
	for len(head) > 2 {
		parts = append([]string{head[len(head)-2:]}, parts...)
		head = head[:len(head)-2]
	}
	if head != "" {
		parts = append([]string{head}, parts...)
	}
	return "Rs " + strings.Join(parts, ",") + "," + tail
}

// describeEligibility は受給条件を1行の説明にする。
func describeEligibility(p model.EligibilityPredicate) string {
	var parts []string
	switch {
	case p.MinAge != nil && p.MaxAge != nil:
		parts = append(parts, fmt.Sprintf("age %d-%d", *p.MinAge, *p.MaxAge))
	case p.MinAge != nil:
		parts = append(parts, fmt.Sprintf("age %d or above", *p.MinAge))
	case p.MaxAge != nil:
		parts = append(parts, fmt.Sprintf("age up to %d", *p.MaxAge))
	}
	if p.MaxIncome != nil {
		parts = append(parts, "income up to "+formatRupees(*p.MaxIncome))
	}
	if len(p.Occupation) > 0 {
		parts = append(parts, "occupation: "+strings.Join(p.Occupation, ", "))
	}
	if p.State != "" {
		parts = append(parts, "resident of "+p.State)
	}
	if len(p.Category) > 0 {
		parts = append(parts, "category: "+strings.Join(p.Category, ", "))
	}
	if len(p.Gender) > 0 {
		parts = append(parts, "gender: "+strings.Join(p.Gender, ", "))
	}
	if len(parts) == 0 {
		return "open to all"
	}
	return strings.Join(parts, "; ")
}

// formatSummary は一覧表示用の1件分の説明を返す。
func formatSummary(i int, s model.SchemeRecord) string {
	return fmt.Sprintf("%d. %s (%s)\n   %s", i, s.Name, s.Category, s.Benefits)
}

// formatResult は判定結果の1件分の説明を返す。
func formatResult(i int, s model.SchemeRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d. %s\n   Benefits: %s", i, s.Name, s.Benefits)
	if s.Deadline != "" {
		fmt.Fprintf(&b, "\n   Deadline: %s", s.Deadline)
	}
	if s.Link != "" {
		fmt.Fprintf(&b, "\n   Link: %s", s.Link)
	}
	return b.String()
}

// formatDetails は1件の制度の詳細を返す。
func formatDetails(s model.SchemeRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nCategory: %s\nBenefits: %s\nWho can apply: %s",
		s.Name, s.Category, s.Benefits, describeEligibility(s.Eligibility))
	if len(s.ApplicationSteps) > 0 {
		b.WriteString("\nHow to apply:")
		for i, step := range s.ApplicationSteps {
			fmt.Fprintf(&b, "\n%d. %s", i+1, step)
		}
	}
	if s.Deadline != "" {
		fmt.Fprintf(&b, "\nDeadline: %s", s.Deadline)
	}
	return b.String()
}

var constraintHints = map[eligibility.Constraint]string{
	eligibility.ConstraintMinAge:     "you are below the minimum age",
	eligibility.ConstraintMaxAge:     "you are above the maximum age",
	eligibility.ConstraintMaxIncome:  "your income is above the limit",
	eligibility.ConstraintOccupation: "it is meant for another occupation",
	eligibility.ConstraintState:      "it is for residents of another state",
	eligibility.ConstraintCategory:   "it is for a specific social category",
	eligibility.ConstraintGender:     "it is for a specific gender",
}

// formatSuggestions は1項目だけ条件を満たさなかった制度を緩和候補として並べる。
func formatSuggestions(misses []eligibility.NearMiss) string {
	if len(misses) > maxSuggestions {
		misses = misses[:maxSuggestions]
	}
	lines := make([]string, 0, len(misses)+1)
	lines = append(lines, "These schemes were a close match:")
	for _, m := range misses {
		lines = append(lines, fmt.Sprintf("- %s: %s (%s)",
			m.Scheme.Name, constraintHints[m.Failed], describeEligibility(m.Scheme.Eligibility)))
	}
	return strings.Join(lines, "\n")
}
