package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JournalGenerator creates balanced journal batches for collateral movements
type JournalGenerator struct {
	sequence       int64
	balanceTracker *BalanceTracker
}

func NewJournalGenerator(startSequence int64, tracker *BalanceTracker) *JournalGenerator {
	return &JournalGenerator{
		sequence:       startSequence,
		balanceTracker: tracker,
	}
}

// Sequence returns the sequence the next batch will carry.
func (jg *JournalGenerator) Sequence() int64 {
	return jg.sequence
}

// BeginBatch opens an empty batch stamped with the next sequence.
func (jg *JournalGenerator) BeginBatch(ref string, ts time.Time) *Batch {
	b := &Batch{
		BatchID:   uuid.New(),
		EventRef:  ref,
		Sequence:  jg.sequence,
		Timestamp: ts.UnixMicro(),
	}
	jg.sequence++
	return b
}

func (b *Batch) add(debit, credit AccountKey, assetID AssetID, amount int64, jt JournalType, orderID int64) {
	b.Journals = append(b.Journals, Journal{
		JournalID:     uuid.New(),
		BatchID:       b.BatchID,
		EventRef:      b.EventRef,
		Sequence:      b.Sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		AssetID:       assetID,
		Amount:        amount,
		JournalType:   jt,
		OrderID:       orderID,
		Timestamp:     b.Timestamp,
	})
}

// AddRelease moves amount from custody to the participant's available
// balance. Zero amounts are skipped.
func (b *Batch) AddRelease(userID uuid.UUID, assetID AssetID, amount int64, jt JournalType, orderID int64) {
	if amount <= 0 {
		return
	}
	b.add(NewUserAccountKey(userID, assetID), NewCustodyAccountKey(assetID), assetID, amount, jt, orderID)
}

// GenerateDeposit credits a participant's wallet from the external boundary.
// Moves funds: external:deposits → user:available
func (jg *JournalGenerator) GenerateDeposit(userID uuid.UUID, assetID AssetID, amount int64, ref string, ts time.Time) (*Batch, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("deposit amount must be positive: %d", amount)
	}
	b := jg.BeginBatch(ref, ts)
	b.add(NewUserAccountKey(userID, assetID), NewExternalAccountKey(SubTypeExternalDeposits, assetID),
		assetID, amount, JournalTypeDeposit, 0)
	return b, nil
}

// GenerateWithdrawal debits a participant's wallet to the external boundary.
// Moves funds: user:available → external:withdrawals
func (jg *JournalGenerator) GenerateWithdrawal(userID uuid.UUID, assetID AssetID, amount int64, ref string, ts time.Time) (*Batch, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("withdrawal amount must be positive: %d", amount)
	}
	if err := jg.balanceTracker.ValidateSufficientAvailable(userID, assetID, amount); err != nil {
		return nil, err
	}
	b := jg.BeginBatch(ref, ts)
	b.add(NewExternalAccountKey(SubTypeExternalWithdrawals, assetID), NewUserAccountKey(userID, assetID),
		assetID, amount, JournalTypeWithdrawal, 0)
	return b, nil
}

// GenerateEscrow locks an order deposit in custody.
// Moves funds: user:available → system:custody
func (jg *JournalGenerator) GenerateEscrow(userID uuid.UUID, assetID AssetID, amount int64, orderID int64, ts time.Time) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientAvailable(userID, assetID, amount); err != nil {
		return nil, err
	}
	b := jg.BeginBatch(fmt.Sprintf("order:%d:escrow", orderID), ts)
	b.add(NewCustodyAccountKey(assetID), NewUserAccountKey(userID, assetID),
		assetID, amount, JournalTypeOrderEscrow, orderID)
	return b, nil
}

// GenerateCancelRefund returns a cancelled order's deposit.
// Moves funds: system:custody → user:available
func (jg *JournalGenerator) GenerateCancelRefund(userID uuid.UUID, assetID AssetID, amount int64, orderID int64, ts time.Time) *Batch {
	b := jg.BeginBatch(fmt.Sprintf("order:%d:cancel", orderID), ts)
	b.AddRelease(userID, assetID, amount, JournalTypeCancelRefund, orderID)
	return b
}
