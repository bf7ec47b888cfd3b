package chat

import "errors"

var (
	// ErrModelFailure indicates the model backend rejected or errored on a
	// turn. The user's message stays appended to the conversation.
	ErrModelFailure = errors.New("chat: model failure")

	// ErrSessionNotFound indicates the session does not exist or does not
	// belong to the requesting user.
	ErrSessionNotFound = errors.New("chat: session not found")
)
