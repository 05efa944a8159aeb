package validation

import (
	"fmt"
	"strings"
	"time"
)

// CaseTypes lists the accepted case types.
var CaseTypes = []string{"Family", "Business", "Criminal"}

// NominatedBy values accepted on witnesses.
var NominatedBy = []string{"party", "oppositeParty"}

// OppositePartyInput identifies the counterpart named in a case.
type OppositePartyInput struct {
	Name    string
	Contact string
	Address string
}

// CourtPendingInput records whether the dispute is already before a court or the police.
type CourtPendingInput struct {
	IsPending         bool
	CaseNumber        string
	FIRNumber         string
	CourtOrPoliceName string
}

// CaseInput is a validated case registration.
type CaseInput struct {
	CaseType         string
	IssueDescription string
	PartyID          string
	OppositeParty    OppositePartyInput
	Proof            []string
	CourtPending     *CourtPendingInput
}

// ValidateCase checks a raw case registration payload.
func ValidateCase(raw Raw) (CaseInput, error) {
	var c collector
	if raw == nil {
		return CaseInput{}, Fail("body", "request body is required")
	}

	for _, key := range []string{"caseType", "issueDescription", "partyId", "oppositeParty"} {
		if !present(raw, key) {
			c.add(key, key+" is required")
		}
	}

	in := CaseInput{
		CaseType: trimmed(raw, "caseType"),
		PartyID:  trimmed(raw, "partyId"),
	}

	if present(raw, "caseType") && !contains(CaseTypes, in.CaseType) {
		c.add("caseType", "invalid case type")
	}

	if present(raw, "issueDescription") {
		desc, ok := stringField(raw, "issueDescription")
		if !ok || strings.TrimSpace(desc) == "" {
			c.add("issueDescription", "issue description is required")
		} else {
			in.IssueDescription = desc
		}
	}

	if present(raw, "partyId") {
		if _, ok := stringField(raw, "partyId"); !ok || in.PartyID == "" {
			c.add("partyId", "partyId must be a string")
		}
	}

	if present(raw, "oppositeParty") {
		op, ok := objectField(raw, "oppositeParty")
		if !ok {
			c.add("oppositeParty", "complete opposite party details are required")
		} else {
			in.OppositeParty = OppositePartyInput{
				Name:    trimmed(op, "name"),
				Contact: trimmed(op, "contact"),
				Address: trimmed(op, "address"),
			}
			if in.OppositeParty.Name == "" || in.OppositeParty.Contact == "" || in.OppositeParty.Address == "" {
				c.add("oppositeParty", "complete opposite party details are required")
			}
		}
	}

	if v, ok := raw["proof"]; ok && v != nil {
		proof, ok := stringSlice(v)
		if !ok {
			c.add("proof", "proof must be an array of file references")
		} else {
			in.Proof = proof
		}
	}

	if v, ok := raw["courtPending"]; ok && v != nil {
		cp, ok := v.(map[string]any)
		if !ok {
			c.add("courtPending", "court/police info is incomplete")
		} else {
			pending, ok := cp["isPending"].(bool)
			if !ok {
				c.add("courtPending.isPending", "courtPending.isPending must be a boolean")
			} else {
				in.CourtPending = &CourtPendingInput{
					IsPending:         pending,
					CaseNumber:        trimmed(cp, "caseNumber"),
					FIRNumber:         trimmed(cp, "firNumber"),
					CourtOrPoliceName: trimmed(cp, "courtOrPoliceName"),
				}
				if pending && (in.CourtPending.CaseNumber == "" || in.CourtPending.CourtOrPoliceName == "") {
					c.add("courtPending", "court/police info is incomplete")
				}
			}
		}
	}

	if err := c.err(); err != nil {
		return CaseInput{}, err
	}
	if in.Proof == nil {
		in.Proof = []string{}
	}
	return in, nil
}

// WitnessInput is a witness nominated for a case.
type WitnessInput struct {
	Name        string
	Contact     string
	Role        string
	NominatedBy string
}

// ValidateWitnesses checks a non-empty array of witness objects.
func ValidateWitnesses(v any) ([]WitnessInput, error) {
	items, ok := v.([]any)
	if !ok || len(items) == 0 {
		return nil, Fail("witnesses", "witnesses must be a non-empty array")
	}

	var c collector
	out := make([]WitnessInput, 0, len(items))
	for i, item := range items {
		field := fmt.Sprintf("witnesses[%d]", i)
		w, ok := item.(map[string]any)
		if !ok {
			c.add(field, field+" must be an object")
			continue
		}
		in := WitnessInput{
			Name:        trimmed(w, "name"),
			Contact:     trimmed(w, "contact"),
			Role:        trimmed(w, "role"),
			NominatedBy: trimmed(w, "nominatedBy"),
		}
		if in.Name == "" || in.Contact == "" {
			c.add(field, field+" requires name and contact")
		}
		if in.NominatedBy != "" && !contains(NominatedBy, in.NominatedBy) {
			c.add(field+".nominatedBy", "nominatedBy must be party or oppositeParty")
		}
		out = append(out, in)
	}

	if err := c.err(); err != nil {
		return nil, err
	}
	return out, nil
}

// PanelMemberInput is a proposed mediator.
type PanelMemberInput struct {
	Name      string
	Expertise string
	Contact   string
}

// ValidatePanelMembers checks the shape of a panel proposal. Composition is
// checked separately by the lifecycle engine.
func ValidatePanelMembers(v any) ([]PanelMemberInput, error) {
	items, ok := v.([]any)
	if !ok || len(items) == 0 {
		return nil, Fail("panel", "panel must be a non-empty array")
	}

	var c collector
	out := make([]PanelMemberInput, 0, len(items))
	for i, item := range items {
		field := fmt.Sprintf("panel[%d]", i)
		m, ok := item.(map[string]any)
		if !ok {
			c.add(field, field+" must be an object")
			continue
		}
		in := PanelMemberInput{
			Name:      trimmed(m, "name"),
			Expertise: trimmed(m, "expertise"),
			Contact:   trimmed(m, "contact"),
		}
		if in.Name == "" || in.Expertise == "" {
			c.add(field, field+" requires name and expertise")
		}
		out = append(out, in)
	}

	if err := c.err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SessionInput is a mediation session to schedule.
type SessionInput struct {
	ScheduledAt time.Time
	Notes       string
	Attendees   []string
}

// ValidateSession checks a schedule-mediation payload.
func ValidateSession(raw Raw) (SessionInput, error) {
	var c collector
	if raw == nil {
		return SessionInput{}, Fail("body", "request body is required")
	}

	var in SessionInput
	at, ok := stringField(raw, "scheduledAt")
	if !ok || strings.TrimSpace(at) == "" {
		c.add("scheduledAt", "scheduledAt is required")
	} else {
		ts, err := time.Parse(time.RFC3339, strings.TrimSpace(at))
		if err != nil {
			c.add("scheduledAt", "scheduledAt must be an RFC3339 timestamp")
		} else {
			in.ScheduledAt = ts.UTC()
		}
	}

	in.Notes = trimmed(raw, "notes")
	in.Attendees = []string{}
	if v, ok := raw["attendees"]; ok && v != nil {
		attendees, ok := stringSlice(v)
		if !ok {
			c.add("attendees", "attendees must be an array of names")
		} else {
			in.Attendees = attendees
		}
	}

	if err := c.err(); err != nil {
		return SessionInput{}, err
	}
	return in, nil
}

// ResolutionInput closes a case with an agreement.
type ResolutionInput struct {
	Agreement         string
	SatisfactionLevel int
}

// ValidateResolution checks a resolve payload. satisfactionLevel is optional.
func ValidateResolution(raw Raw) (ResolutionInput, error) {
	var c collector
	if raw == nil {
		return ResolutionInput{}, Fail("body", "request body is required")
	}

	in := ResolutionInput{Agreement: trimmed(raw, "agreement")}
	if in.Agreement == "" {
		c.add("agreement", "agreement is required")
	}
	if v, ok := raw["satisfactionLevel"]; ok && v != nil {
		level, ok := integerField(raw, "satisfactionLevel")
		if !ok || level < 1 || level > 5 {
			c.add("satisfactionLevel", "satisfactionLevel must be between 1 and 5")
		} else {
			in.SatisfactionLevel = level
		}
	}

	if err := c.err(); err != nil {
		return ResolutionInput{}, err
	}
	return in, nil
}

// ValidateResponse checks an opposite-party response payload.
func ValidateResponse(raw Raw) (accepted bool, reason string, err error) {
	if raw == nil {
		return false, "", Fail("body", "request body is required")
	}
	accepted, ok := raw["accepted"].(bool)
	if !ok {
		return false, "", Fail("accepted", "accepted must be a boolean")
	}
	return accepted, trimmed(raw, "reason"), nil
}
