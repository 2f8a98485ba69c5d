package event

import (
	"time"

	"github.com/google/uuid"
)

// CollateralDeposit funds a participant's wallet from outside the auction.
type CollateralDeposit struct {
	DepositID uuid.UUID `json:"deposit_id"`
	UserID    uuid.UUID `json:"user_id"`
	Asset     string    `json:"asset"`
	Amount    int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

func (d *CollateralDeposit) IdempotencyKey() string {
	return d.DepositID.String()
}

func (d *CollateralDeposit) EventType() EventType {
	return EventTypeCollateralDeposited
}

// CollateralWithdrawal moves funds from a participant's wallet back out.
type CollateralWithdrawal struct {
	WithdrawalID uuid.UUID `json:"withdrawal_id"`
	UserID       uuid.UUID `json:"user_id"`
	Asset        string    `json:"asset"`
	Amount       int64     `json:"amount"`
	Timestamp    time.Time `json:"timestamp"`
}

func (w *CollateralWithdrawal) IdempotencyKey() string {
	return w.WithdrawalID.String()
}

func (w *CollateralWithdrawal) EventType() EventType {
	return EventTypeCollateralWithdrawn
}
