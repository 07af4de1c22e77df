package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"settleflow/internal/ports"
)

// SettlementIngestedMessage announces a committed settlement file. Consumers
// read the data itself from the store.
type SettlementIngestedMessage struct {
	BatchID      string    `json:"batch_id"`
	SettlementID int64     `json:"settlement_id"`
	File         string    `json:"file"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Transactions int       `json:"transactions"`
	Timestamp    time.Time `json:"timestamp"`
}

func NewSettlementIngestedMessage(ev ports.SettlementIngested) *SettlementIngestedMessage {
	return &SettlementIngestedMessage{
		BatchID:      ev.BatchID,
		SettlementID: ev.SettlementID,
		File:         ev.File,
		Start:        ev.Start,
		End:          ev.End,
		Transactions: ev.Transactions,
		Timestamp:    time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *SettlementIngestedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SettlementIngestedMessageFromJSON decodes and checks a message body.
func SettlementIngestedMessageFromJSON(data []byte) (*SettlementIngestedMessage, error) {
	var msg SettlementIngestedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.SettlementID <= 0 {
		return nil, errors.New("message without settlement id")
	}
	return &msg, nil
}
