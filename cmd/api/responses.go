package main

import (
	"time"

	"resolveit/faq"
	"resolveit/mediation"
	"resolveit/user"
)

type addressResponse struct {
	Street string `json:"street"`
	City   string `json:"city"`
	Zip    string `json:"zip"`
}

type userResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Age       int             `json:"age"`
	Gender    string          `json:"gender"`
	Address   addressResponse `json:"address"`
	Email     string          `json:"email"`
	Phone     string          `json:"phone"`
	Photo     string          `json:"photo,omitempty"`
	CreatedAt string          `json:"createdAt"`
}

func newUserResponse(u user.User) userResponse {
	return userResponse{
		ID:     u.ID,
		Name:   u.Name,
		Age:    u.Age,
		Gender: string(u.Gender),
		Address: addressResponse{
			Street: u.Address.Street,
			City:   u.Address.City,
			Zip:    u.Address.Zip,
		},
		Email:     u.Email,
		Phone:     u.Phone,
		Photo:     u.Photo,
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
}

type userSummaryResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type partyResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type caseResponse struct {
	ID                string                       `json:"id"`
	CaseType          string                       `json:"caseType"`
	IssueDescription  string                       `json:"issueDescription"`
	Party             partyResponse                `json:"party"`
	OppositeParty     mediation.OppositeParty      `json:"oppositeParty"`
	Proof             []string                     `json:"proof"`
	CourtPending      *mediation.CourtPending      `json:"courtPending,omitempty"`
	Status            string                       `json:"status"`
	Witnesses         []mediation.Witness          `json:"witnesses"`
	Panel             []mediation.PanelMember      `json:"panel"`
	MediationSessions []mediation.MediationSession `json:"mediationSessions"`
	Resolution        mediation.Resolution         `json:"resolution"`
	CreatedAt         string                       `json:"createdAt"`
	UpdatedAt         string                       `json:"updatedAt"`
}

func newCaseResponse(c mediation.Case) caseResponse {
	return caseResponse{
		ID:               c.ID,
		CaseType:         string(c.CaseType),
		IssueDescription: c.IssueDescription,
		Party: partyResponse{
			ID:    c.Party.ID,
			Name:  c.Party.Name,
			Email: c.Party.Email,
			Phone: c.Party.Phone,
		},
		OppositeParty:     c.OppositeParty,
		Proof:             nonNil(c.Proof),
		CourtPending:      c.CourtPending,
		Status:            string(c.Status),
		Witnesses:         nonNil(c.Witnesses),
		Panel:             nonNil(c.Panel),
		MediationSessions: nonNil(c.MediationSessions),
		Resolution:        c.Resolution,
		CreatedAt:         c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         c.UpdatedAt.Format(time.RFC3339),
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// caseMessageResponse is the envelope returned by every case mutation.
type caseMessageResponse struct {
	Message string       `json:"message"`
	Case    caseResponse `json:"case"`
}

type registrationResponse struct {
	Message            string       `json:"message"`
	Case               caseResponse `json:"case"`
	VerificationStatus string       `json:"verificationStatus"`
	Notification       string       `json:"notification"`
}

type statusDistribution struct {
	Queued           int `json:"queued"`
	AwaitingResponse int `json:"awaitingResponse"`
	Accepted         int `json:"accepted"`
	Rejected         int `json:"rejected"`
	PanelCreated     int `json:"panelCreated"`
	InProgress       int `json:"inProgress"`
	Resolved         int `json:"resolved"`
	Unresolved       int `json:"unresolved"`
}

type statsResponse struct {
	TotalCases         int                `json:"totalCases"`
	StatusDistribution statusDistribution `json:"statusDistribution"`
	CasesByType        map[string]int     `json:"casesByType"`
	OverdueResponses   int                `json:"overdueResponses"`
}

// newStatsResponse reports resolved cases by resolution flag rather than by
// status, so a resolved case later overridden still counts.
func newStatsResponse(st mediation.Stats) statsResponse {
	byType := make(map[string]int, len(st.ByType))
	for t, n := range st.ByType {
		byType[string(t)] = n
	}
	return statsResponse{
		TotalCases: st.TotalCases,
		StatusDistribution: statusDistribution{
			Queued:           st.ByStatus[mediation.StatusQueued],
			AwaitingResponse: st.ByStatus[mediation.StatusAwaitingResponse],
			Accepted:         st.ByStatus[mediation.StatusAccepted],
			Rejected:         st.ByStatus[mediation.StatusRejected],
			PanelCreated:     st.ByStatus[mediation.StatusPanelCreated],
			InProgress:       st.ByStatus[mediation.StatusMediationInProgress],
			Resolved:         st.Resolved,
			Unresolved:       st.ByStatus[mediation.StatusUnresolved],
		},
		CasesByType:      byType,
		OverdueResponses: st.OverdueResponses,
	}
}

type answerResponse struct {
	ID        string `json:"id"`
	Query     string `json:"query"`
	Answer    string `json:"answer"`
	UpdatedAt string `json:"updatedAt"`
}

func newAnswerResponse(e faq.Entry) answerResponse {
	return answerResponse{
		ID:        e.ID,
		Query:     e.Query,
		Answer:    e.Answer,
		UpdatedAt: e.UpdatedAt.Format(time.RFC3339),
	}
}
