package models

import (
	"time"

	"github.com/google/uuid"
)

// Room represents a chat room. Rows live in the durable store; the append log
// and the registry key their state off the string form of ID.
type Room struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
