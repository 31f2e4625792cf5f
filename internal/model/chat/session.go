package chat

import "time"

// Session holds the continuation token issued by the assistant endpoint.
type Session struct {
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"createdAt"`
}
