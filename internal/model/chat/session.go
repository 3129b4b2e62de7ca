package chat

import "time"

// Session captures one conversation and the persona driving its system prompt.
type Session struct {
	ID        string    `json:"id"`
	PersonaID string    `json:"personaId"`
	CreatedAt time.Time `json:"createdAt"`
}
