package chat

import "time"

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation thread. Entries are never edited
// after they are appended; a failed exchange is retried by appending anew.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	IsVoice   bool      `json:"isVoice"`
	Failed    bool      `json:"failed,omitempty"`
}
