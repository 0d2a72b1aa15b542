package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// ReceiptJobMessage asks a worker to run extraction for one pending receipt.
// The worker loads the image and receipt state from storage.
type ReceiptJobMessage struct {
	ReceiptID int64     `json:"receipt_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewReceiptJobMessage(receiptID int64) *ReceiptJobMessage {
	return &ReceiptJobMessage{
		ReceiptID: receiptID,
		Timestamp: time.Now().UTC(),
	}
}

func (m *ReceiptJobMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ReceiptJobMessageFromJSON(data []byte) (*ReceiptJobMessage, error) {
	var msg ReceiptJobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ReceiptID <= 0 {
		return nil, errors.New("message has no receipt id")
	}
	return &msg, nil
}
