package gateway

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/toolpipe/internal/classify"
	"github.com/flemzord/toolpipe/internal/provider"
	"github.com/flemzord/toolpipe/internal/session"
	"github.com/flemzord/toolpipe/internal/toolcall"
)

type classifyRequest struct {
	Input string `json:"input"`
}

type classifyBatchRequest struct {
	Inputs []string `json:"inputs"`
}

type classifyBatchResponse struct {
	Results []classify.Timed `json:"results"`
}

type messageRequest struct {
	Text string `json:"text"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type sessionsResponse struct {
	Sessions []string `json:"sessions"`
}

type callsResponse struct {
	SessionID string              `json:"session_id"`
	Calls     []toolcall.Snapshot `json:"calls"`
}

type historyResponse struct {
	SessionID string                 `json:"session_id"`
	ThreadID  string                 `json:"thread_id"`
	Messages  []provider.WireMessage `json:"messages"`
}

func (g *Gateway) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, g.classifier.ClassifyTimed(r.Context(), req.Input))
}

func (g *Gateway) handleClassifyBatch(w http.ResponseWriter, r *http.Request) {
	var req classifyBatchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if len(req.Inputs) > g.cfg.MaxBatch {
		writeError(w, http.StatusRequestEntityTooLarge,
			"batch exceeds "+strconv.Itoa(g.cfg.MaxBatch)+" inputs")
		return
	}
	results := g.classifier.ClassifyBatch(r.Context(), req.Inputs)
	if results == nil {
		results = []classify.Timed{}
	}
	writeJSON(w, http.StatusOK, classifyBatchResponse{Results: results})
}

func (g *Gateway) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	ids := g.sessions.Sessions()
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: ids})
}

func (g *Gateway) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	turn, err := g.sessions.Handle(r.Context(), session.Input{
		SessionID: chi.URLParam(r, "session"),
		Text:      req.Text,
	})
	if err != nil {
		g.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

func (g *Gateway) handleResume(w http.ResponseWriter, r *http.Request) {
	turn, err := g.sessions.Resume(r.Context(), chi.URLParam(r, "session"), nil)
	if err != nil {
		g.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

// handleCalls lists a session's calls. ?status=pending narrows the list to
// calls awaiting a decision.
func (g *Gateway) handleCalls(w http.ResponseWriter, r *http.Request) {
	s, err := g.sessions.Lookup(r.Context(), chi.URLParam(r, "session"))
	if err != nil {
		g.fail(w, r, err)
		return
	}
	calls := s.Calls()
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := make([]toolcall.Snapshot, 0, len(calls))
		for _, c := range calls {
			if strings.EqualFold(string(c.Status), status) {
				filtered = append(filtered, c)
			}
		}
		calls = filtered
	}
	if calls == nil {
		calls = []toolcall.Snapshot{}
	}
	writeJSON(w, http.StatusOK, callsResponse{SessionID: s.ID(), Calls: calls})
}

func (g *Gateway) handleApprove(w http.ResponseWriter, r *http.Request) {
	snap, err := g.sessions.Approve(r.Context(), chi.URLParam(r, "session"), chi.URLParam(r, "call"))
	if err != nil {
		g.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (g *Gateway) handleReject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	snap, err := g.sessions.Reject(r.Context(), chi.URLParam(r, "session"), chi.URLParam(r, "call"), req.Reason)
	if err != nil {
		g.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (g *Gateway) handleHistory(w http.ResponseWriter, r *http.Request) {
	s, err := g.sessions.Lookup(r.Context(), chi.URLParam(r, "session"))
	if err != nil {
		g.fail(w, r, err)
		return
	}
	msgs, err := s.History()
	if err != nil {
		g.fail(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []provider.WireMessage{}
	}
	writeJSON(w, http.StatusOK, historyResponse{SessionID: s.ID(), ThreadID: s.ThreadID(), Messages: msgs})
}

func (g *Gateway) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		g.logger.Error("api request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err.Error())
}
