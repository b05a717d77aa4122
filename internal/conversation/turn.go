// Package conversation keeps per-user chat history in memory.
package conversation

import "encoding/json"

// Role identifies the author of a Turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation. Turns are values and are never modified
// after creation; Payload must not be mutated by holders.
type Turn struct {
	Role Role
	Text string
	// Payload is the provider's raw message, replayed verbatim when present.
	Payload json.RawMessage
}

// SystemTurn returns a system Turn.
func SystemTurn(text string) Turn {
	return Turn{Role: RoleSystem, Text: text}
}

// UserTurn returns a user Turn.
func UserTurn(text string) Turn {
	return Turn{Role: RoleUser, Text: text}
}

// AssistantTurn returns an assistant Turn carrying the provider payload.
func AssistantTurn(text string, payload json.RawMessage) Turn {
	return Turn{Role: RoleAssistant, Text: text, Payload: payload}
}
