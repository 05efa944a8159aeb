package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"resolveit/auth"
	"resolveit/broadcast"
	"resolveit/evidence"
	"resolveit/faq"
	"resolveit/mediation"
	"resolveit/metrics"
	"resolveit/user"
	"resolveit/validation"
)

const maxJSONBody = 1 << 20

type userService interface {
	Register(ctx context.Context, raw validation.Raw) (user.User, error)
	List(ctx context.Context, limit int) ([]user.Summary, error)
}

type caseService interface {
	Register(ctx context.Context, raw validation.Raw) (mediation.Registration, error)
	Get(ctx context.Context, caseID string) (mediation.Case, error)
	List(ctx context.Context, status, caseType string) ([]mediation.Case, error)
	RespondOppositeParty(ctx context.Context, caseID string, raw validation.Raw) (mediation.Case, error)
	CreatePanel(ctx context.Context, caseID string, members any) (mediation.Case, error)
	NominateWitnesses(ctx context.Context, caseID string, witnesses any) (mediation.Case, error)
	ScheduleMediation(ctx context.Context, caseID string, raw validation.Raw) (mediation.Case, error)
	Resolve(ctx context.Context, caseID string, raw validation.Raw) (mediation.Case, error)
	OverrideStatus(ctx context.Context, caseID, status string) (mediation.Case, error)
	Stats(ctx context.Context) (mediation.Stats, error)
}

type authService interface {
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	RequireAdmin(token string) (auth.Session, error)
}

type proofUploader interface {
	Upload(ctx context.Context, files []evidence.File) ([]string, error)
}

type answerService interface {
	Answer(ctx context.Context, raw validation.Raw) (faq.Entry, bool, error)
	Lookup(ctx context.Context, q string, limit int) ([]faq.Entry, error)
}

type eventSource interface {
	Subscribe(topic string) (<-chan broadcast.Event, func())
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the HTTP handlers and the services they call.
type Server struct {
	userService   userService
	caseService   caseService
	authService   authService
	uploader      proofUploader
	answerService answerService
	events        eventSource
	db            pinger

	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	logger   *slog.Logger

	uploadDir string
	cors      func(http.Handler) http.Handler
	limiter   *rateLimiter

	trustedProxies []netip.Prefix
}

func (s *Server) log() *slog.Logger {
	if s.logger == nil {
		return slog.Default()
	}
	return s.logger
}

// Handler returns the full HTTP surface. Recovery and CORS wrap the router so
// they also cover preflight requests and unmatched paths.
func (s *Server) Handler() http.Handler {
	h := securityHeaders(s.routes())
	if s.cors != nil {
		h = s.cors(h)
	}
	return s.recoveryMiddleware(h)
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.loggingMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	if s.gatherer != nil {
		r.Handle("/metrics", metrics.Handler(s.gatherer)).Methods(http.MethodGet)
	}
	if s.uploadDir != "" {
		r.PathPrefix("/uploads/").Handler(http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.uploadDir))))
	}

	api := r.PathPrefix("/api").Subrouter()
	if s.limiter != nil {
		api.Use(s.limiter.middleware(s.clientIP))
	}

	api.HandleFunc("/register-user", s.handleRegisterUser).Methods(http.MethodPost)
	api.HandleFunc("/users", s.handleListUsers).Methods(http.MethodGet)
	api.HandleFunc("/register-case", s.handleRegisterCase).Methods(http.MethodPost)
	api.HandleFunc("/admin-login", s.handleAdminLogin).Methods(http.MethodPost)
	api.HandleFunc("/upload-proof", s.handleUploadProof).Methods(http.MethodPost)
	api.HandleFunc("/dashboard/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/dashboard/events", s.handleEvents).Methods(http.MethodGet)
	api.HandleFunc("/answers", s.handleAnswers).Methods(http.MethodGet)
	api.HandleFunc("/case/{id}", s.handleGetCase).Methods(http.MethodGet)
	api.HandleFunc("/case/{id}/opposite-party-response", s.handleOppositePartyResponse).Methods(http.MethodPost)

	api.Handle("/cases", s.requireAdmin(s.handleListCases)).Methods(http.MethodGet)
	api.Handle("/case/{id}/witnesses", s.requireAdmin(s.handleWitnesses)).Methods(http.MethodPatch)
	api.Handle("/case/{id}/panel", s.requireAdmin(s.handlePanel)).Methods(http.MethodPatch)
	api.Handle("/case/{id}/workflow-status", s.requireAdmin(s.handleWorkflowStatus)).Methods(http.MethodPatch)
	api.Handle("/case/{id}/status", s.requireAdmin(s.handleWorkflowStatus)).Methods(http.MethodPatch)
	api.Handle("/case/{id}/schedule-mediation", s.requireAdmin(s.handleScheduleMediation)).Methods(http.MethodPost)
	api.Handle("/case/{id}/resolve", s.requireAdmin(s.handleResolve)).Methods(http.MethodPost)
	api.Handle("/admin-answer", s.requireAdmin(s.handleAdminAnswer)).Methods(http.MethodPost)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			s.log().Warn("readiness check failed", "error", err)
			respondError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

type errorResponse struct {
	Error    string               `json:"error"`
	Problems []validation.Problem `json:"problems,omitempty"`
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

var errorStatuses = []struct {
	err     error
	status  int
	message string
}{
	{mediation.ErrCaseNotFound, http.StatusNotFound, "Case not found"},
	{mediation.ErrPartyNotFound, http.StatusNotFound, "Party (user) not found."},
	{user.ErrNotFound, http.StatusNotFound, "User not found"},
	{faq.ErrNotFound, http.StatusNotFound, "Answer not found"},
	{user.ErrDuplicateEmail, http.StatusConflict, "Email already registered."},
	{mediation.ErrInvalidTransition, http.StatusConflict, "Case status does not allow this action"},
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid credentials"},
	{auth.ErrUnauthorized, http.StatusUnauthorized, "Invalid token"},
	{auth.ErrForbidden, http.StatusForbidden, "Admin access required"},
	{evidence.ErrNoFiles, http.StatusBadRequest, "No files uploaded"},
	{evidence.ErrTooManyFiles, http.StatusBadRequest, "At most 5 files may be uploaded at once"},
}

// writeServiceError maps service errors onto HTTP responses. Anything it does
// not recognise is logged and reported as a generic 500.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.Error
	if errors.As(err, &verr) {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Error(), Problems: verr.Problems})
		return
	}
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			respondError(w, e.status, e.message)
			return
		}
	}
	s.log().Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	respondError(w, http.StatusInternalServerError, "internal server error")
}

// decodeObject reads a JSON object body. An empty body decodes to an empty
// object so validation can report the missing fields.
func decodeObject(w http.ResponseWriter, r *http.Request) (validation.Raw, bool) {
	raw := validation.Raw{}
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(body)
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	if raw == nil {
		raw = validation.Raw{}
	}
	return raw, true
}

func caseID(r *http.Request) string {
	return strings.TrimSpace(mux.Vars(r)["id"])
}
