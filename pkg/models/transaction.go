package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction represents a single account-to-account transfer in the ledger.
// Records are immutable once parsed. SenderID == ReceiverID is legal input.
type Transaction struct {
	ID         string          `json:"transaction_id"`
	SenderID   string          `json:"sender_id"`   // Trimmed, case-sensitive
	ReceiverID string          `json:"receiver_id"` // Trimmed, case-sensitive
	Amount     decimal.Decimal `json:"amount"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Counterparty returns the other party of the transaction relative to account.
// For a self-transfer the account itself is returned.
func (t Transaction) Counterparty(account string) string {
	if t.SenderID == account {
		return t.ReceiverID
	}
	return t.SenderID
}
