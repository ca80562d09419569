package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// LedgerEventMessage announces one ledger mutation. It carries no record
// data; consumers re-read the persisted snapshot.
type LedgerEventMessage struct {
	Op        string    `json:"op"`
	ID        string    `json:"id"`
	Index     int       `json:"index"`
	Len       int       `json:"len"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerEventMessage(op, id string, index, length int) *LedgerEventMessage {
	return &LedgerEventMessage{
		Op:        op,
		ID:        id,
		Index:     index,
		Len:       length,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventMessageFromJSON decodes a message and checks it names an op.
func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Op == "" {
		return nil, fmt.Errorf("ledger event without op")
	}
	return &msg, nil
}
