package transport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/arclane/conduit/pkg/chunk"
	"github.com/arclane/conduit/pkg/controller"
)

// streamRequest is the §6 request body for POST /v1/stream.
type streamRequest struct {
	SessionID      string   `json:"session_id"`
	Messages       []string `json:"messages"`
	Mode           string   `json:"agent_mode"`
	MaxLoopCount   int      `json:"max_loop_count,omitempty"`
	ForceSummary   bool     `json:"force_summary,omitempty"`
	WorkspaceRoot  string   `json:"workspace_root,omitempty"`
	ContextBudget  int      `json:"context_budget,omitempty"`
	AvailableTools []string `json:"available_tools,omitempty"`
	MoreSuggest    bool     `json:"more_suggest,omitempty"`
}

// traceInfoRecord is the optional record §6 allows preceding the
// MessageChunk stream, carrying the OpenTelemetry trace id for the
// request.
type traceInfoRecord struct {
	Type    string `json:"type"`
	TraceID string `json:"trace_id"`
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var req streamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx, span := s.obs.StartAgentSpan(r.Context(), "http_stream", req.SessionID, 0)
	defer span.End()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)

	if span.SpanContext().HasTraceID() {
		_ = enc.Encode(traceInfoRecord{Type: "trace_info", TraceID: span.SpanContext().TraceID().String()})
		flusher.Flush()
	}

	opts := controller.Options{
		Mode:           req.Mode,
		MaxLoopCount:   req.MaxLoopCount,
		ForceSummary:   req.ForceSummary,
		WorkspaceRoot:  req.WorkspaceRoot,
		ContextBudget:  req.ContextBudget,
		AvailableTools: req.AvailableTools,
		MoreSuggest:    req.MoreSuggest,
	}

	for c, err := range s.controller.RunStream(ctx, req.Messages, req.SessionID, opts) {
		if err != nil {
			errChunk := chunk.NewError(req.SessionID, uuid.NewString(), chunk.ErrLLMTransport, err.Error(), false)
			if encErr := enc.Encode(errChunk); encErr != nil {
				s.log.Warn("failed to encode error chunk", "session_id", req.SessionID, "error", encErr)
				return
			}
			flusher.Flush()
			continue
		}
		if encErr := enc.Encode(c); encErr != nil {
			s.log.Warn("failed to encode chunk", "session_id", req.SessionID, "error", encErr)
			return
		}
		flusher.Flush()
	}
}

// interruptRequest is the §6 request body for POST
// /v1/interrupt/{session_id}.
type interruptRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	var req interruptRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Reason == "" {
		req.Reason = "interrupted via API"
	}

	if err := s.controller.Cancel(sessionID, req.Reason); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.obs.MetricsHandler().ServeHTTP(w, r)
}
