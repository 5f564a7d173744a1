package p2p

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Envelope is the generic wrapper for any message sent over the network.
// SessionID groups messages into one FIFO conversation between two nodes;
// there is no ordering guarantee across sessions.
type Envelope struct {
	SessionID uuid.UUID       `json:"sessionId"`
	SenderID  string          `json:"senderId"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}
