package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"resolveit/broadcast"
)

const streamHeartbeat = 25 * time.Second

// handleEvents streams dashboard events as server-sent events. The optional
// case query parameter limits the stream to one case.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok || s.events == nil {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	only := r.URL.Query().Get("case")

	events, unsubscribe := s.events.Subscribe(broadcast.TopicDashboard)
	defer unsubscribe()
	if s.metrics != nil {
		defer s.metrics.StreamClientConnected()()
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			if only != "" && ev.CaseID != only {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.log().Warn("encode stream event", "case_id", ev.CaseID, "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: caseStatusUpdate\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
