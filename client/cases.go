package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"resolveit/mediation"
)

// Party is the registered user who filed a case.
type Party struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Case is a case as returned by the API.
type Case struct {
	ID                string                       `json:"id"`
	CaseType          string                       `json:"caseType"`
	IssueDescription  string                       `json:"issueDescription"`
	Party             Party                        `json:"party"`
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

// Registration is the response to a case registration.
type Registration struct {
	Message            string `json:"message"`
	Case               Case   `json:"case"`
	VerificationStatus string `json:"verificationStatus"`
	Notification       string `json:"notification"`
}

// Stats is the dashboard summary.
type Stats struct {
	TotalCases         int `json:"totalCases"`
	StatusDistribution struct {
		Queued           int `json:"queued"`
		AwaitingResponse int `json:"awaitingResponse"`
		Accepted         int `json:"accepted"`
		Rejected         int `json:"rejected"`
		PanelCreated     int `json:"panelCreated"`
		InProgress       int `json:"inProgress"`
		Resolved         int `json:"resolved"`
		Unresolved       int `json:"unresolved"`
	} `json:"statusDistribution"`
	CasesByType      map[string]int `json:"casesByType"`
	OverdueResponses int            `json:"overdueResponses"`
}

// User is a registered disputant.
type User struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Age     int    `json:"age"`
	Gender  string `json:"gender"`
	Address struct {
		Street string `json:"street"`
		City   string `json:"city"`
		Zip    string `json:"zip"`
	} `json:"address"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Photo     string `json:"photo,omitempty"`
	CreatedAt string `json:"createdAt"`
}

// UserSummary is an entry of the user pick list.
type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Answer is an administrator's answer to a frequently asked query.
type Answer struct {
	ID        string `json:"id"`
	Query     string `json:"query"`
	Answer    string `json:"answer"`
	UpdatedAt string `json:"updatedAt"`
}

type caseEnvelope struct {
	Message string `json:"message"`
	Case    Case   `json:"case"`
}

// RegisterUser registers a disputant. The payload uses the API field names.
func (c *Client) RegisterUser(ctx context.Context, payload map[string]any) (User, error) {
	var resp struct {
		User User `json:"user"`
	}
	err := c.do(ctx, http.MethodPost, "/api/register-user", "", payload, &resp)
	return resp.User, err
}

func (c *Client) Users(ctx context.Context) ([]UserSummary, error) {
	var out []UserSummary
	err := c.do(ctx, http.MethodGet, "/api/users", "", nil, &out)
	return out, err
}

// RegisterCase files a case. The payload uses the API field names.
func (c *Client) RegisterCase(ctx context.Context, payload map[string]any) (Registration, error) {
	var out Registration
	err := c.do(ctx, http.MethodPost, "/api/register-case", "", payload, &out)
	return out, err
}

func (c *Client) Case(ctx context.Context, id string) (Case, error) {
	var out Case
	err := c.do(ctx, http.MethodGet, casePath(id, ""), "", nil, &out)
	return out, err
}

// Respond records the opposite party's answer to the mediation request.
func (c *Client) Respond(ctx context.Context, id string, accepted bool, reason string) (Case, error) {
	body := map[string]any{"accepted": accepted}
	if reason != "" {
		body["reason"] = reason
	}
	var out caseEnvelope
	err := c.do(ctx, http.MethodPost, casePath(id, "/opposite-party-response"), "", body, &out)
	return out.Case, err
}

func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	err := c.do(ctx, http.MethodGet, "/api/dashboard/stats", "", nil, &out)
	return out, err
}

// Answers looks up answers matching q.
func (c *Client) Answers(ctx context.Context, q string) ([]Answer, error) {
	var out []Answer
	err := c.do(ctx, http.MethodGet, "/api/answers?q="+url.QueryEscape(q), "", nil, &out)
	return out, err
}

// UploadFile is one proof document to upload.
type UploadFile struct {
	Name string
	Body io.Reader
}

// UploadProof uploads up to five files and returns their references.
func (c *Client) UploadProof(ctx context.Context, files ...UploadFile) ([]string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := mw.CreateFormFile("proof", f.Name)
		if err != nil {
			return nil, fmt.Errorf("client: create form file: %w", err)
		}
		if _, err := io.Copy(part, f.Body); err != nil {
			return nil, fmt.Errorf("client: read %s: %w", f.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("client: close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload-proof", &buf)
	if err != nil {
		return nil, fmt.Errorf("client: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	var out struct {
		Files []string `json:"files"`
	}
	if err := c.send(req, "", &out); err != nil {
		return nil, err
	}
	return out.Files, nil
}

// Cases lists cases, optionally filtered by status and case type.
func (s *Session) Cases(ctx context.Context, status, caseType string) ([]Case, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if caseType != "" {
		q.Set("caseType", caseType)
	}
	path := "/api/cases"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []Case
	err := s.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (s *Session) NominateWitnesses(ctx context.Context, id string, witnesses []mediation.Witness) (Case, error) {
	return s.mutate(ctx, http.MethodPatch, casePath(id, "/witnesses"), map[string]any{"witnesses": witnesses})
}

// CreatePanel replaces the case panel. The server assigns AssignedAt.
func (s *Session) CreatePanel(ctx context.Context, id string, members []mediation.PanelMember) (Case, error) {
	panel := make([]map[string]string, 0, len(members))
	for _, m := range members {
		entry := map[string]string{"name": m.Name, "expertise": m.Expertise}
		if m.Contact != "" {
			entry["contact"] = m.Contact
		}
		panel = append(panel, entry)
	}
	return s.mutate(ctx, http.MethodPatch, casePath(id, "/panel"), map[string]any{"panel": panel})
}

// SetStatus overrides the case status.
func (s *Session) SetStatus(ctx context.Context, id, status string) (Case, error) {
	return s.mutate(ctx, http.MethodPatch, casePath(id, "/workflow-status"), map[string]any{"status": status})
}

func (s *Session) ScheduleMediation(ctx context.Context, id string, at time.Time, attendees []string, notes string) (Case, error) {
	body := map[string]any{
		"scheduledAt": at.UTC().Format(time.RFC3339),
		"attendees":   attendees,
	}
	if notes != "" {
		body["notes"] = notes
	}
	return s.mutate(ctx, http.MethodPost, casePath(id, "/schedule-mediation"), body)
}

// Resolve closes the case with an agreement. A satisfaction of zero is omitted.
func (s *Session) Resolve(ctx context.Context, id, agreement string, satisfaction int) (Case, error) {
	body := map[string]any{"agreement": agreement}
	if satisfaction != 0 {
		body["satisfactionLevel"] = satisfaction
	}
	return s.mutate(ctx, http.MethodPost, casePath(id, "/resolve"), body)
}

// SetAnswer creates or replaces the answer for query.
func (s *Session) SetAnswer(ctx context.Context, query, answer string) (Answer, error) {
	var out struct {
		Answer Answer `json:"answer"`
	}
	err := s.do(ctx, http.MethodPost, "/api/admin-answer", map[string]string{"query": query, "answer": answer}, &out)
	return out.Answer, err
}

func (s *Session) mutate(ctx context.Context, method, path string, body any) (Case, error) {
	var out caseEnvelope
	err := s.do(ctx, method, path, body, &out)
	return out.Case, err
}

func (s *Session) do(ctx context.Context, method, path string, in, out any) error {
	if s == nil || s.token == "" {
		return ErrNoToken
	}
	return s.client.do(ctx, method, path, s.token, in, out)
}
