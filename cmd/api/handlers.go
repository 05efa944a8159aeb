package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"resolveit/auth"
	"resolveit/mediation"
	"resolveit/validation"
)

func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	raw, ok := decodeObject(w, r)
	if !ok {
		return
	}

	u, err := s.userService.Register(r.Context(), raw)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, struct {
		Message string       `json:"message"`
		User    userResponse `json:"user"`
	}{"User registered successfully!", newUserResponse(u)})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	users, err := s.userService.List(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := make([]userSummaryResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, userSummaryResponse{ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone})
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRegisterCase(w http.ResponseWriter, r *http.Request) {
	raw, ok := decodeObject(w, r)
	if !ok {
		return
	}

	reg, err := s.caseService.Register(r.Context(), raw)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, registrationResponse{
		Message:            "Case registered successfully!",
		Case:               newCaseResponse(reg.Case),
		VerificationStatus: reg.VerificationStatus,
		Notification:       reg.Notice,
	})
}

type loginResponse struct {
	Success   bool   `json:"success"`
	Token     string `json:"token,omitempty"`
	ExpiresAt string `json:"expiresAt,omitempty"`
	Message   string `json:"message"`
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	raw, ok := decodeObject(w, r)
	if !ok {
		return
	}
	req.Username, _ = raw["username"].(string)
	req.Password, _ = raw["password"].(string)

	res, err := s.authService.Login(r.Context(), req)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		respondJSON(w, http.StatusUnauthorized, loginResponse{Message: "Invalid credentials"})
		return
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, loginResponse{
		Success:   true,
		Token:     res.Token,
		ExpiresAt: res.Session.ExpiresAt.Format(time.RFC3339),
		Message:   "Login successful",
	})
}

func (s *Server) handleListCases(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cases, err := s.caseService.List(r.Context(), q.Get("status"), q.Get("caseType"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := make([]caseResponse, 0, len(cases))
	for _, c := range cases {
		resp = append(resp, newCaseResponse(c))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	c, err := s.caseService.Get(r.Context(), caseID(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newCaseResponse(c))
}

func (s *Server) handleWitnesses(w http.ResponseWriter, r *http.Request) {
	raw, ok := decodeObject(w, r)
	if !ok {
		return
	}
	c, err := s.caseService.NominateWitnesses(r.Context(), caseID(r), raw["witnesses"])
	s.respondCase(w, r, c, err, "Witnesses nominated!")
}

func (s *Server) handlePanel(w http.ResponseWriter, r *http.Request) {
	raw, ok := decodeObject(w, r)
	if !ok {
		return
	}
	c, err := s.caseService.CreatePanel(r.Context(), caseID(r), raw["panel"])
	s.respondCase(w, r, c, err, "Panel created!")
}

func (s *Server) handleWorkflowStatus(w http.ResponseWriter, r *http.Request) {
	raw, ok := decodeObject(w, r)
	if !ok {
		return
	}
	status, _ := raw["status"].(string)
	c, err := s.caseService.OverrideStatus(r.Context(), caseID(r), status)
	s.respondCase(w, r, c, err, "Case status updated!")
}

func (s *Server) handleOppositePartyResponse(w http.ResponseWriter, r *http.Request) {
	raw, ok := decodeObject(w, r)
	if !ok {
		return
	}
	c, err := s.caseService.RespondOppositeParty(r.Context(), caseID(r), raw)
	verb := "rejected"
	if c.OppositeParty.HasAccepted {
		verb = "accepted"
	}
	s.respondCase(w, r, c, err, "Opposite party has "+verb+" mediation")
}

func (s *Server) handleScheduleMediation(w http.ResponseWriter, r *http.Request) {
	raw, ok := decodeObject(w, r)
	if !ok {
		return
	}
	c, err := s.caseService.ScheduleMediation(r.Context(), caseID(r), raw)
	s.respondCase(w, r, c, err, "Mediation session scheduled successfully")
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	raw, ok := decodeObject(w, r)
	if !ok {
		return
	}
	c, err := s.caseService.Resolve(r.Context(), caseID(r), raw)
	s.respondCase(w, r, c, err, "Case resolved successfully")
}

func (s *Server) respondCase(w http.ResponseWriter, r *http.Request, c mediation.Case, err error, message string) {
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, caseMessageResponse{Message: message, Case: newCaseResponse(c)})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.caseService.Stats(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newStatsResponse(st))
}

func (s *Server) handleAdminAnswer(w http.ResponseWriter, r *http.Request) {
	raw, ok := decodeObject(w, r)
	if !ok {
		return
	}

	entry, created, err := s.answerService.Answer(r.Context(), raw)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, status, struct {
		Message string         `json:"message"`
		Answer  answerResponse `json:"answer"`
	}{"Answer saved successfully!", newAnswerResponse(entry)})
}

func (s *Server) handleAnswers(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := s.answerService.Lookup(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := make([]answerResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, newAnswerResponse(e))
	}
	respondJSON(w, http.StatusOK, resp)
}

func parseLimit(r *http.Request) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get("limit"))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, validation.Fail("limit", "limit must be a non-negative integer")
	}
	return n, nil
}
