package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event subjects
const (
	SubjectContractorAdded      = "contractor.added"
	SubjectContractorTerminated = "contractor.terminated"
	SubjectContractorChanged    = "contractor.changed"

	SubjectCycleAdvanced = "cycle.advanced"

	SubjectCreditAdded = "credit.added"
	SubjectDebitAdded  = "debit.added"
	SubjectCreditPaid  = "credit.paid"
	SubjectPaymentSent = "payment.sent"

	SubjectConfigChanged = "config.changed"
)

// Event is the base event envelope
type Event struct {
	ID        uuid.UUID       `json:"id"`
	Subject   string          `json:"subject"`
	Timestamp time.Time       `json:"timestamp"`
	Nonce     uint64          `json:"nonce"`
	Data      json.RawMessage `json:"data"`
}

// ContractorEvent carries contractor lifecycle data
type ContractorEvent struct {
	ContractorID uint64 `json:"contractor_id"`
	Name         string `json:"name"`
	Wallet       string `json:"wallet"`
	PerCycle     string `json:"per_cycle"`
	StartCycle   uint64 `json:"start_cycle"`
	Field        string `json:"field,omitempty"` // for contractor.changed: which field mutated
}

// CycleEvent carries the cycle advance tuple. Cycle is the index before the
// increment. The shape is fixed; observers rely on it staying stable.
type CycleEvent struct {
	Cycle        uint64 `json:"cycle"`
	TotalPayroll string `json:"total_payroll"`
	TotalPaid    string `json:"total_paid"`
	Increment    uint64 `json:"increment"`
}

// LedgerEvent carries credit/debit/payment data
type LedgerEvent struct {
	ContractorID uint64 `json:"contractor_id"`
	Amount       string `json:"amount"`
	To           string `json:"to,omitempty"`
	Pending      string `json:"pending,omitempty"` // pending credits or debits after the change
}

// ConfigEvent carries global configuration changes
type ConfigEvent struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// NewEvent wraps a payload in the base envelope
func NewEvent(subject string, nonce uint64, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:        uuid.New(),
		Subject:   subject,
		Timestamp: time.Now(),
		Nonce:     nonce,
		Data:      dataBytes,
	}, nil
}

// ParseEventData parses event data into the specified type
func ParseEventData[T any](event *Event) (*T, error) {
	var data T
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return nil, err
	}
	return &data, nil
}
