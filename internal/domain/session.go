// Package domain contains core domain types for the chat service.
package domain

import (
	"time"
)

// Session is a durable record of one conversation between a user and a model
// backend. The in-memory conversation state referencing it lives in the chat
// registry; this type is what the store persists and lists.
type Session struct {
	ID        string    `json:"id"`
	UserName  string    `json:"username"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionInfo is the client-facing summary of a session.
type SessionInfo struct {
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
}
