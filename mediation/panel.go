package mediation

import (
	"strings"

	"resolveit/validation"
)

// MinPanelSize is the smallest panel accepted, matching the registration form.
const MinPanelSize = 3

const panelCompositionMessage = "panel must include at least one lawyer, one religious scholar, and one community member"

// CheckPanel enforces panel composition: some member's expertise must mention
// "lawyer", some "religious" or "scholar", and some "community", compared
// case-insensitively. One member may cover several categories.
func CheckPanel(members []PanelMember) error {
	var hasLawyer, hasScholar, hasCommunity bool
	for _, m := range members {
		exp := strings.ToLower(m.Expertise)
		if strings.Contains(exp, "lawyer") {
			hasLawyer = true
		}
		if strings.Contains(exp, "religious") || strings.Contains(exp, "scholar") {
			hasScholar = true
		}
		if strings.Contains(exp, "community") {
			hasCommunity = true
		}
	}

	var problems []validation.Problem
	if !hasLawyer || !hasScholar || !hasCommunity {
		problems = append(problems, validation.Problem{Field: "panel", Message: panelCompositionMessage})
	}
	if len(members) < MinPanelSize {
		problems = append(problems, validation.Problem{Field: "panel", Message: "panel must have at least 3 members"})
	}
	if len(problems) > 0 {
		return &validation.Error{Problems: problems}
	}
	return nil
}
