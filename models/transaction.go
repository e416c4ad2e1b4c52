package models

import "time"

const (
	TxKindDeposit    = "deposit"
	TxKindWithdrawal = "withdrawal"
	TxKindDeduction  = "deduction"
	TxKindRefund     = "refund"
	TxKindPrize      = "prize"
)

const (
	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"
	TxStatusRefunded  = "refunded"
)

const (
	WithdrawMethodBank = "bank"
	WithdrawMethodUPI  = "upi"
)

// Transaction is one immutable ledger entry. Amount is signed: credits are
// positive, debits negative. Rows are only ever updated to transition Status
// (e.g. pending → completed when the gateway confirms).
type Transaction struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"index;not null" json:"user_id"`

	Kind   string  `gorm:"type:varchar(16);not null" json:"kind"`
	Amount float64 `gorm:"not null" json:"amount"`
	Status string  `gorm:"type:varchar(16);default:'pending'" json:"status"`

	// Balance after this transaction applied (audit trail)
	BalanceAfter float64 `json:"balance_after"`

	// Gateway references — order id for deposits, payout id for withdrawals
	ExternalOrderID   string `gorm:"index" json:"external_order_id,omitempty"`
	ExternalPaymentID string `json:"external_payment_id,omitempty"`
	ExternalPayoutID  string `gorm:"index" json:"external_payout_id,omitempty"`

	// bank | upi for withdrawals
	Method string `gorm:"type:varchar(8)" json:"method,omitempty"`

	Description  string  `json:"description"`
	TournamentID *string `gorm:"index" json:"tournament_id,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
