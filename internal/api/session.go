package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/161043261/ai-agent-go/internal/auth"
	"github.com/161043261/ai-agent-go/internal/chat"
	"github.com/161043261/ai-agent-go/internal/model"
)

// SessionHandler serves the chat endpoints: session listing, synchronous and
// streamed sends, and history reads.
type SessionHandler struct {
	svc *chat.Service
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(svc *chat.Service) *SessionHandler {
	return &SessionHandler{svc: svc}
}

// RegisterRoutes mounts the chat routes. The router is expected to carry the
// auth middleware.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/chat/sessions", h.listSessions)
	r.Post("/api/chat/send-new-session", h.sendNewSession)
	r.Post("/api/chat/send", h.send)
	r.Post("/api/chat/send-stream-new-session", h.streamNewSession)
	r.Post("/api/chat/send-stream", h.stream)
	r.Post("/api/chat/history", h.history)
}

type sendRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	ModelType string `json:"modelType"`
}

func (req *sendRequest) normalize() {
	if req.ModelType == "" {
		req.ModelType = model.TypeCompletion
	}
}

func failureCode(err error) Code {
	switch {
	case errors.Is(err, chat.ErrSessionNotFound):
		return CodeInvalidParams
	case errors.Is(err, chat.ErrModelFailure):
		return CodeModelFailure
	default:
		return CodeServerBusy
	}
}

func (h *SessionHandler) listSessions(w http.ResponseWriter, r *http.Request) {
	userName := auth.UserNameFromContext(r.Context())

	sessions, err := h.svc.ListSessions(r.Context(), userName)
	if err != nil {
		slog.Error("session listing failed", "username", userName, "error", err)
		Fail(w, CodeServerBusy)
		return
	}

	Envelope(w, CodeSuccess, map[string]any{"sessions": sessions})
}

func (h *SessionHandler) sendNewSession(w http.ResponseWriter, r *http.Request) {
	userName := auth.UserNameFromContext(r.Context())

	var req sendRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Message == "" {
		Fail(w, CodeInvalidParams)
		return
	}
	req.normalize()

	sessionID, reply, err := h.svc.CreateSessionAndSend(r.Context(), userName, req.Message, req.ModelType)
	if err != nil {
		slog.Error("new-session send failed", "username", userName, "error", err)
		// The session may already exist with the user's message stored;
		// surface its id so the client can retry against it.
		extra := map[string]any{}
		if sessionID != "" {
			extra["sessionId"] = sessionID
		}
		Envelope(w, failureCode(err), extra)
		return
	}

	Envelope(w, CodeSuccess, map[string]any{
		"sessionId": sessionID,
		"response":  reply,
	})
}

func (h *SessionHandler) send(w http.ResponseWriter, r *http.Request) {
	userName := auth.UserNameFromContext(r.Context())

	var req sendRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SessionID == "" || req.Message == "" {
		Fail(w, CodeInvalidParams)
		return
	}
	req.normalize()

	reply, err := h.svc.SendMessage(r.Context(), userName, req.SessionID, req.Message, req.ModelType)
	if err != nil {
		slog.Error("send failed", "username", userName, "session_id", req.SessionID, "error", err)
		Fail(w, failureCode(err))
		return
	}

	Envelope(w, CodeSuccess, map[string]any{"response": reply})
}

// sseWriter frames chat stream events. Each event is one `data:` line with a
// JSON payload; a stream ends with exactly one terminal or error event.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support streaming")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	return &sseWriter{w: w, flusher: flusher}, nil
}

func (s *sseWriter) event(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("sse payload encoding failed", "error", err)
		return
	}
	fmt.Fprintf(s.w, "data: %s\n\n", data)
	s.flusher.Flush()
}

func (s *sseWriter) chunk(content string) {
	s.event(struct {
		Content string `json:"content"`
	}{content})
}

func (s *sseWriter) done(sessionID string) {
	s.event(struct {
		SessionID string `json:"sessionId,omitempty"`
		Done      bool   `json:"done"`
	}{sessionID, true})
}

func (s *sseWriter) fail(message string) {
	s.event(struct {
		Error string `json:"error"`
	}{message})
}

func (h *SessionHandler) streamNewSession(w http.ResponseWriter, r *http.Request) {
	userName := auth.UserNameFromContext(r.Context())

	var req sendRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Message == "" {
		Fail(w, CodeInvalidParams)
		return
	}
	req.normalize()

	sse, err := newSSEWriter(w)
	if err != nil {
		Fail(w, CodeServerBusy)
		return
	}

	sessionID, _, err := h.svc.CreateSessionAndStream(r.Context(), userName, req.Message, req.ModelType, sse.chunk)
	if err != nil {
		slog.Error("new-session stream failed", "username", userName, "error", err)
		sse.fail("failed to generate response")
		return
	}

	sse.done(sessionID)
}

func (h *SessionHandler) stream(w http.ResponseWriter, r *http.Request) {
	userName := auth.UserNameFromContext(r.Context())

	var req sendRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SessionID == "" || req.Message == "" {
		Fail(w, CodeInvalidParams)
		return
	}
	req.normalize()

	sse, err := newSSEWriter(w)
	if err != nil {
		Fail(w, CodeServerBusy)
		return
	}

	_, err = h.svc.StreamMessage(r.Context(), userName, req.SessionID, req.Message, req.ModelType, sse.chunk)
	if err != nil {
		slog.Error("stream failed", "username", userName, "session_id", req.SessionID, "error", err)
		if errors.Is(err, chat.ErrSessionNotFound) {
			sse.fail("session not found or access denied")
		} else {
			sse.fail("failed to generate response")
		}
		return
	}

	sse.done("")
}

type historyRequest struct {
	SessionID string `json:"sessionId"`
}

func (h *SessionHandler) history(w http.ResponseWriter, r *http.Request) {
	userName := auth.UserNameFromContext(r.Context())

	var req historyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		Fail(w, CodeInvalidParams)
		return
	}

	messages, err := h.svc.History(r.Context(), userName, req.SessionID)
	if err != nil {
		slog.Error("history read failed", "username", userName, "session_id", req.SessionID, "error", err)
		Fail(w, failureCode(err))
		return
	}

	Envelope(w, CodeSuccess, map[string]any{"messages": messages})
}
