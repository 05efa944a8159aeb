package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resolveit/broadcast"
	"resolveit/mediation"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(server.URL + "/")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestLoginAndSessionCalls(t *testing.T) {
	expires := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/admin-login":
			var body map[string]string
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["username"] != "admin" {
				t.Errorf("unexpected login body %v (%v)", body, err)
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"success": true, "token": "tok-1", "expiresAt": expires.Format(time.RFC3339), "message": "Login successful",
			})
		case "/api/cases":
			if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
				t.Errorf("unexpected authorization %q", got)
			}
			if r.URL.Query().Get("status") != "Queued" || r.URL.Query().Get("caseType") != "Family" {
				t.Errorf("unexpected query %q", r.URL.RawQuery)
			}
			writeJSON(w, http.StatusOK, []map[string]any{{"id": "case-1", "status": "Queued", "caseType": "Family"}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	session, err := c.Login(context.Background(), "admin", "password123")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", session.Token())
	assert.True(t, expires.Equal(session.ExpiresAt))

	cases, err := session.Cases(context.Background(), "Queued", "Family")
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, "case-1", cases[0].ID)
}

func TestLoginFailure(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Invalid credentials"})
	})

	_, err := c.Login(context.Background(), "admin", "wrong")
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Invalid credentials", apiErr.Message)
}

func TestAPIErrorCarriesProblems(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":    "caseType is required",
			"problems": []map[string]string{{"field": "caseType", "message": "caseType is required"}},
		})
	})

	_, err := c.RegisterCase(context.Background(), map[string]any{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.Len(t, apiErr.Problems, 1)
	assert.Equal(t, "caseType", apiErr.Problems[0].Field)
}

func TestSessionWithoutToken(t *testing.T) {
	c := New("http://127.0.0.1:1")
	_, err := c.Resume("  ").SetStatus(context.Background(), "case-1", "Resolved")
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestSessionMutationsSendExpectedBodies(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies = map[string]map[string]any{}
	)
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		mu.Lock()
		bodies[r.Method+" "+r.URL.Path] = body
		mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"message": "ok", "case": map[string]any{"id": "case 1", "status": "Panel Created"}})
	})
	s := c.Resume("tok")
	ctx := context.Background()

	got, err := s.CreatePanel(ctx, "case 1", []mediation.PanelMember{
		{Name: "A", Expertise: "Lawyer"},
		{Name: "B", Expertise: "Religious Scholar", Contact: "b@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Panel Created", got.Status)

	at := time.Date(2025, 3, 10, 10, 0, 0, 0, time.FixedZone("IST", 19800))
	_, err = s.ScheduleMediation(ctx, "case 1", at, []string{"Asha", "Ravi"}, "")
	require.NoError(t, err)

	_, err = s.Resolve(ctx, "case 1", "Shared wall", 0)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	panel := bodies["PATCH /api/case/case 1/panel"]["panel"].([]any)
	require.Len(t, panel, 2)
	assert.NotContains(t, panel[0].(map[string]any), "contact")
	assert.NotContains(t, panel[0].(map[string]any), "assignedAt")

	schedule := bodies["POST /api/case/case 1/schedule-mediation"]
	assert.Equal(t, "2025-03-10T04:30:00Z", schedule["scheduledAt"])
	assert.NotContains(t, schedule, "notes")

	assert.NotContains(t, bodies["POST /api/case/case 1/resolve"], "satisfactionLevel")
}

func TestUploadProof(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
			return
		}
		headers := r.MultipartForm.File["proof"]
		refs := make([]string, 0, len(headers))
		for _, h := range headers {
			f, err := h.Open()
			if err != nil {
				t.Errorf("open part: %v", err)
				return
			}
			data, _ := io.ReadAll(f)
			f.Close()
			refs = append(refs, fmt.Sprintf("/uploads/%s-%d", h.Filename, len(data)))
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Files uploaded!", "files": refs})
	})

	refs, err := c.UploadProof(context.Background(),
		UploadFile{Name: "a.pdf", Body: strings.NewReader("12345")},
		UploadFile{Name: "b.png", Body: strings.NewReader("12")},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"/uploads/a.pdf-5", "/uploads/b.png-2"}, refs)
}

func TestEvents(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("case") != "case-1" {
			t.Errorf("expected case filter, got %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": connected\n\n")
		fmt.Fprint(w, "event: caseStatusUpdate\ndata: {\"caseId\":\"case-1\",\"status\":\"Accepted\"}\n\n")
		fmt.Fprint(w, ": ping\n\n")
		fmt.Fprint(w, "event: caseStatusUpdate\ndata: {\"caseId\":\"case-1\",\"status\":\"Panel Created\"}\n\n")
	})

	var got []string
	err := c.Events(context.Background(), "case-1", func(ev broadcast.Event) error {
		got = append(got, ev.Status)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Accepted", "Panel Created"}, got)
}

func TestEventsStopsOnCallbackError(t *testing.T) {
	stop := errors.New("stop")
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for i := 0; i < 3; i++ {
			fmt.Fprintf(w, "data: {\"caseId\":\"c%d\",\"status\":\"Queued\"}\n\n", i)
		}
	})

	calls := 0
	err := c.Events(context.Background(), "", func(broadcast.Event) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}
