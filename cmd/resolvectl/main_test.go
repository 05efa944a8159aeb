package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	path   string
	auth   string
	body   map[string]any
}

func newAPI(t *testing.T) (*httptest.Server, func() []recorded) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []recorded
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path, auth: r.Header.Get("Authorization")}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.body)
		}
		mu.Lock()
		reqs = append(reqs, rec)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/admin-login":
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "token": "tok-9", "message": "Login successful"})
		case "/api/dashboard/stats":
			_ = json.NewEncoder(w).Encode(map[string]any{"totalCases": 3, "casesByType": map[string]int{"Family": 3}})
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{"message": "ok", "case": map[string]any{"id": "case-1", "status": "Panel Created"}})
		}
	}))
	t.Cleanup(server.Close)
	return server, func() []recorded {
		mu.Lock()
		defer mu.Unlock()
		return append([]recorded(nil), reqs...)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	globalFlags.token = ""
	cmd := rootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLoginPrintsToken(t *testing.T) {
	server, _ := newAPI(t)

	out, err := run(t, "--server", server.URL, "login", "--password", "pw")
	require.NoError(t, err)
	assert.Equal(t, "tok-9\n", out)
}

func TestStats(t *testing.T) {
	server, _ := newAPI(t)

	out, err := run(t, "--server", server.URL, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, `"totalCases": 3`)
}

func TestPanelCommand(t *testing.T) {
	server, requests := newAPI(t)

	_, err := run(t, "--server", server.URL, "--token", "tok-9", "case", "panel", "case-1",
		"--member", "Meera:Lawyer",
		"--member", "Imam Ali:Religious Scholar:ali@example.com",
		"--member", "Joseph:Community Member",
	)
	require.NoError(t, err)

	reqs := requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPatch, reqs[0].method)
	assert.Equal(t, "/api/case/case-1/panel", reqs[0].path)
	assert.Equal(t, "Bearer tok-9", reqs[0].auth)

	panel := reqs[0].body["panel"].([]any)
	require.Len(t, panel, 3)
	second := panel[1].(map[string]any)
	assert.Equal(t, "Religious Scholar", second["expertise"])
	assert.Equal(t, "ali@example.com", second["contact"])
}

func TestAdminCommandsNeedToken(t *testing.T) {
	server, requests := newAPI(t)

	_, err := run(t, "--server", server.URL, "case", "status", "case-1", "Resolved")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "token"))
	assert.Empty(t, requests())
}

func TestInvalidMemberSpec(t *testing.T) {
	server, requests := newAPI(t)

	_, err := run(t, "--server", server.URL, "--token", "tok", "case", "panel", "case-1", "--member", "only-a-name")
	require.Error(t, err)
	assert.Empty(t, requests())
}

func TestScheduleRejectsBadTime(t *testing.T) {
	server, requests := newAPI(t)

	_, err := run(t, "--server", server.URL, "--token", "tok", "case", "schedule", "case-1", "--at", "tomorrow")
	require.Error(t, err)
	assert.Empty(t, requests())
}
