// Package api provides HTTP handlers for the chat service API.
package api

import (
	"encoding/json"
	"net/http"
)

// Code is an application status code carried in every response envelope.
type Code int

// Application status codes, stable across clients.
const (
	CodeSuccess         Code = 1000
	CodeInvalidParams   Code = 2001
	CodeUserExists      Code = 2002
	CodeUserNotFound    Code = 2003
	CodeInvalidPassword Code = 2004
	CodeInvalidToken    Code = 2006
	CodeServerBusy      Code = 4001
	CodeModelFailure    Code = 5003
	CodeFileUploadFail  Code = 5004
)

var codeMessages = map[Code]string{
	CodeSuccess:         "success",
	CodeInvalidParams:   "invalid request parameters",
	CodeUserExists:      "username already exists",
	CodeUserNotFound:    "user does not exist",
	CodeInvalidPassword: "wrong password",
	CodeInvalidToken:    "invalid token",
	CodeServerBusy:      "server busy, try again later",
	CodeModelFailure:    "model run failed",
	CodeFileUploadFail:  "file upload failed",
}

// Message returns the human-readable text for a code.
func (c Code) Message() string {
	if msg, ok := codeMessages[c]; ok {
		return msg
	}
	return "unknown error"
}

// JSON writes a JSON response with the given HTTP status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Envelope writes the application response envelope. extra fields are merged
// next to status_code and status_msg. All envelopes go out as HTTP 200; the
// application code carries the outcome.
func Envelope(w http.ResponseWriter, code Code, extra map[string]any) {
	body := map[string]any{
		"status_code": code,
		"status_msg":  code.Message(),
	}
	for k, v := range extra {
		body[k] = v
	}
	JSON(w, http.StatusOK, body)
}

// Fail writes an envelope with no extra fields.
func Fail(w http.ResponseWriter, code Code) {
	Envelope(w, code, nil)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Fail(w, CodeInvalidParams)
		return false
	}
	return true
}
