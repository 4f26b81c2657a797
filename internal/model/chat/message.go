package chat

import "time"

// Message is a single turn in a session's conversation log.
type Message struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	OwnerID     string    `json:"ownerId"`
	Content     string    `json:"content"`
	IsAssistant bool      `json:"isAssistant"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Role maps the author flag to the transcript label used in prompts.
func (m Message) Role() string {
	if m.IsAssistant {
		return "assistant"
	}
	return "user"
}
