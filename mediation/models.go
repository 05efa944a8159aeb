package mediation

import "time"

type CaseType string

const (
	CaseTypeFamily   CaseType = "Family"
	CaseTypeBusiness CaseType = "Business"
	CaseTypeCriminal CaseType = "Criminal"
)

// OppositeParty is the unregistered counterpart asked to accept mediation.
type OppositeParty struct {
	Name             string    `json:"name"`
	Contact          string    `json:"contact"`
	Address          string    `json:"address"`
	HasAccepted      bool      `json:"hasAccepted"`
	NotifiedAt       time.Time `json:"notifiedAt"`
	ResponseDeadline time.Time `json:"responseDeadline"`
}

// CourtPending records proceedings already open elsewhere.
type CourtPending struct {
	IsPending         bool   `json:"isPending"`
	CaseNumber        string `json:"caseNumber,omitempty"`
	FIRNumber         string `json:"firNumber,omitempty"`
	CourtOrPoliceName string `json:"courtOrPoliceName,omitempty"`
}

type Witness struct {
	Name        string `json:"name"`
	Contact     string `json:"contact"`
	Role        string `json:"role,omitempty"`
	NominatedBy string `json:"nominatedBy,omitempty"`
}

type PanelMember struct {
	Name       string    `json:"name"`
	Expertise  string    `json:"expertise"`
	Contact    string    `json:"contact,omitempty"`
	AssignedAt time.Time `json:"assignedAt"`
}

// SessionScheduled is the status given to newly scheduled sessions.
const SessionScheduled = "scheduled"

type MediationSession struct {
	ScheduledAt time.Time `json:"scheduledAt"`
	Status      string    `json:"status"`
	Notes       string    `json:"notes,omitempty"`
	Attendees   []string  `json:"attendees"`
}

type Resolution struct {
	IsResolved        bool       `json:"isResolved"`
	Agreement         string     `json:"agreement,omitempty"`
	ResolvedAt        *time.Time `json:"resolvedAt,omitempty"`
	SatisfactionLevel int        `json:"satisfactionLevel,omitempty"`
}

// PartyRef is the registered user who filed the case, as joined on read.
type PartyRef struct {
	ID    string
	Name  string
	Email string
	Phone string
}

// Case is a dispute under mediation. Witnesses, panel and sessions are owned
// by the case and stored with it.
type Case struct {
	ID                string
	CaseType          CaseType
	IssueDescription  string
	Party             PartyRef
	OppositeParty     OppositeParty
	Proof             []string
	CourtPending      *CourtPending
	Status            Status
	Witnesses         []Witness
	Panel             []PanelMember
	MediationSessions []MediationSession
	Resolution        Resolution
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ListFilter narrows case listings. Empty fields match everything.
type ListFilter struct {
	Status   Status
	CaseType CaseType
}

// Update is a partial change applied to a single case. Zero fields are left
// untouched; witnesses and sessions are appended in order.
type Update struct {
	Status          Status
	HasAccepted     *bool
	Panel           []PanelMember
	AppendWitnesses []Witness
	AppendSession   *MediationSession
	Resolution      *Resolution
	UpdatedAt       time.Time
}

// Stats summarises the case load for the dashboard.
type Stats struct {
	TotalCases       int
	ByStatus         map[Status]int
	Resolved         int
	OverdueResponses int
	ByType           map[CaseType]int
}
