package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypeDeposit JournalType = iota
	JournalTypeWithdrawal
	JournalTypeOrderEscrow
	JournalTypeCancelRefund
	JournalTypeTradeBase
	JournalTypeTradeQuote
	JournalTypeFillRefund
	JournalTypeUnmatchedRefund
)

func (t JournalType) String() string {
	switch t {
	case JournalTypeDeposit:
		return "deposit"
	case JournalTypeWithdrawal:
		return "withdrawal"
	case JournalTypeOrderEscrow:
		return "order_escrow"
	case JournalTypeCancelRefund:
		return "cancel_refund"
	case JournalTypeTradeBase:
		return "trade_base"
	case JournalTypeTradeQuote:
		return "trade_quote"
	case JournalTypeFillRefund:
		return "fill_refund"
	case JournalTypeUnmatchedRefund:
		return "unmatched_refund"
	default:
		return "unknown"
	}
}

// Journal represents a single double-entry journal entry
type Journal struct {
	JournalID     uuid.UUID   // Unique identifier
	BatchID       uuid.UUID   // Groups balanced entries
	EventRef      string      // Idempotency key of source operation
	Sequence      int64       // Engine sequence
	DebitAccount  AccountKey  // Account receiving debit (balance increases)
	CreditAccount AccountKey  // Account receiving credit (balance decreases)
	AssetID       AssetID     // Asset being transferred
	Amount        int64       // Fixed-point amount (ALWAYS positive)
	JournalType   JournalType // Entry type
	OrderID       int64       // Order the entry belongs to, 0 for wallet funding
	Timestamp     int64       // Epoch microseconds
}

// Batch represents a balanced set of journal entries
type Batch struct {
	BatchID   uuid.UUID
	EventRef  string
	Sequence  int64
	Timestamp int64
	Journals  []Journal
}

// Validate ensures the batch is well-formed.
// Each journal moves a single positive amount from the credit account to the
// debit account, so every entry balances on its own and so does the batch.
func (b *Batch) Validate() error {
	if len(b.Journals) == 0 {
		return fmt.Errorf("batch %s is empty", b.BatchID)
	}

	for _, j := range b.Journals {
		if j.Amount <= 0 {
			return fmt.Errorf("journal %s has non-positive amount: %d", j.JournalID, j.Amount)
		}

		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}

		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}

		if j.DebitAccount.AssetID != j.AssetID || j.CreditAccount.AssetID != j.AssetID {
			return fmt.Errorf("journal %s moves asset %d across mismatched accounts", j.JournalID, j.AssetID)
		}
	}

	return nil
}

// ReleasedFromCustody sums, per asset, the amounts the batch moves out of custody.
func (b *Batch) ReleasedFromCustody() map[AssetID]int64 {
	totals := make(map[AssetID]int64)
	for _, j := range b.Journals {
		if j.CreditAccount == NewCustodyAccountKey(j.AssetID) {
			totals[j.AssetID] += j.Amount
		}
	}
	return totals
}
