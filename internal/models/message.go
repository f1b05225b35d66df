package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is a durably stored chat message. ID is the store-assigned row id;
// Timestamp is the moment the message entered the append log, in Unix ms, and
// is what every read path orders by.
type Message struct {
	ID        int64     `json:"id"`
	RoomID    uuid.UUID `json:"room_id"`
	SenderID  string    `json:"sender"`
	Body      string    `json:"body"`
	Timestamp int64     `json:"ts"` // Unix ms
	CreatedAt time.Time `json:"-"`
}

// ChatMessage is the uniform history item returned to clients. Both read
// paths produce it: log reads carry the stream token in ID, store reads
// leave ID empty.
type ChatMessage struct {
	ID        string `json:"id,omitempty"`
	Sender    string `json:"sender"`
	Body      string `json:"body"`
	Timestamp int64  `json:"ts"` // Unix ms
}
