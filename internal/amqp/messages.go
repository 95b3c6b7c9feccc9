package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Message types carried on the koin queue.
const (
	TypeChange = "change"
	TypeRepair = "repair"
)

var ErrUnknownMessage = errors.New("unknown message type")

// Message is a lightweight notification. It carries only the user scope and
// what changed; consumers reload the collections from the store.
type Message struct {
	Type        string    `json:"type"`
	UserID      string    `json:"user_id"`
	Collections []string  `json:"collections,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewChangeMessage announces a committed batch touching collections.
func NewChangeMessage(userID string, collections []string) *Message {
	return &Message{
		Type:        TypeChange,
		UserID:      userID,
		Collections: collections,
		Timestamp:   time.Now(),
	}
}

// NewRepairMessage queues a category repair for userID.
func NewRepairMessage(userID string) *Message {
	return &Message{
		Type:      TypeRepair,
		UserID:    userID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MessageFromJSON decodes and checks a message body.
func MessageFromJSON(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Type {
	case TypeChange, TypeRepair:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
	if msg.UserID == "" {
		return nil, errors.New("message without user scope")
	}
	return &msg, nil
}
