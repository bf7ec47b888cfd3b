package domain

import (
	"time"
)

// Message is one chat turn half, either the user's input or the model's reply.
// Messages are immutable once created; ordering within a session is creation
// order. ID is assigned by durable storage and is zero for messages that have
// not been persisted yet.
type Message struct {
	ID        int64     `json:"id,omitempty"`
	SessionID string    `json:"session_id"`
	UserName  string    `json:"username"`
	Content   string    `json:"content"`
	IsUser    bool      `json:"is_user"`
	CreatedAt time.Time `json:"created_at"`
}

// QueueMessage is the wire projection of Message published to the cache/queue
// backend for asynchronous persistence.
type QueueMessage struct {
	SessionID string    `json:"session_id"`
	UserName  string    `json:"username"`
	Content   string    `json:"content"`
	IsUser    bool      `json:"is_user"`
	CreatedAt time.Time `json:"created_at"`
}

// QueueMessageFrom projects a Message onto its queue representation.
func QueueMessageFrom(m Message) QueueMessage {
	return QueueMessage{
		SessionID: m.SessionID,
		UserName:  m.UserName,
		Content:   m.Content,
		IsUser:    m.IsUser,
		CreatedAt: m.CreatedAt,
	}
}

// History is the client-facing view of a message in a history listing.
type History struct {
	IsUser  bool   `json:"is_user"`
	Content string `json:"content"`
}
