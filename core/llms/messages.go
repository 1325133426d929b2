package llms

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a conversation history. Histories alternate
// strictly: a user message precedes each assistant message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
