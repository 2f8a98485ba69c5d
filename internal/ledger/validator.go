package ledger

import (
	"fmt"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateGlobalBalance verifies system is zero-sum
func (v *InvariantValidator) ValidateGlobalBalance() error {
	totals := v.tracker.ComputeGlobalBalance()

	for assetID, total := range totals {
		if total != 0 {
			assetName, _ := GetAssetName(assetID)
			return fmt.Errorf("global balance for %s is non-zero: %d", assetName, total)
		}
	}

	return nil
}

// ValidateCustody verifies custody holds exactly the deposits of the orders
// that are still pending.
func (v *InvariantValidator) ValidateCustody(expected map[AssetID]int64) error {
	for _, assetID := range []AssetID{AssetBase, AssetQuote} {
		held := v.tracker.GetCustodyBalance(assetID)
		if held != expected[assetID] {
			assetName, _ := GetAssetName(assetID)
			return fmt.Errorf("custody for %s holds %d, pending deposits total %d", assetName, held, expected[assetID])
		}
	}
	return nil
}

// ValidateRelease verifies a settlement batch releases from custody exactly
// the deposits swept into the round, asset by asset.
func (v *InvariantValidator) ValidateRelease(batch *Batch, swept map[AssetID]int64) error {
	released := batch.ReleasedFromCustody()
	for _, assetID := range []AssetID{AssetBase, AssetQuote} {
		if released[assetID] != swept[assetID] {
			assetName, _ := GetAssetName(assetID)
			return fmt.Errorf("settlement releases %d %s, round deposits total %d",
				released[assetID], assetName, swept[assetID])
		}
	}
	for _, j := range batch.Journals {
		if j.DebitAccount.Scope != AccountScopeUser {
			return fmt.Errorf("journal %s releases custody to non-user account %s",
				j.JournalID, j.DebitAccount.AccountPath())
		}
	}
	return nil
}
