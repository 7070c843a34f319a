package domain

// Role identifies who produced a conversation turn. Only the two values
// below are valid; anything else found in storage is coerced by
// NormalizeRole because completion providers reject unknown roles.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// NormalizeRole coerces unknown role values to RoleUser. Applied at the
// storage boundary when a transcript is reconstructed.
func NormalizeRole(r Role) Role {
	if r == RoleAssistant {
		return RoleAssistant
	}
	return RoleUser
}

// Turn is one message in a session transcript. Position is implicit: the
// index within the session's turn sequence.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatMessage is the provider-agnostic chat message shape sent to the
// completion service.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
