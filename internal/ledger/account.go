package ledger

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopeSystem
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// User sub-types
	SubTypeAvailable AccountSubType = iota

	// System sub-types
	SubTypeSystemCustody

	// External sub-types
	SubTypeExternalDeposits
	SubTypeExternalWithdrawals
)

// AssetID identifies one side of the traded pair.
type AssetID uint16

const (
	AssetBase  AssetID = 1
	AssetQuote AssetID = 2
)

var (
	assetMu   sync.RWMutex
	idToAsset = map[AssetID]string{
		AssetBase:  "BASE",
		AssetQuote: "QUOTE",
	}
)

// RegisterPair names the base and quote assets used in account paths.
// Called once at startup before the engine begins processing.
func RegisterPair(base, quote string) {
	assetMu.Lock()
	defer assetMu.Unlock()
	idToAsset[AssetBase] = base
	idToAsset[AssetQuote] = quote
}

func GetAssetID(asset string) (AssetID, bool) {
	assetMu.RLock()
	defer assetMu.RUnlock()
	for id, name := range idToAsset {
		if name == asset {
			return id, true
		}
	}
	return 0, false
}

func GetAssetName(id AssetID) (string, bool) {
	assetMu.RLock()
	defer assetMu.RUnlock()
	name, ok := idToAsset[id]
	return name, ok
}

// AccountKey is the in-memory key for balance tracking
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // owner UUID for user accounts
	SubType  AccountSubType
	AssetID  AssetID
}

// NewUserAccountKey returns the spendable wallet account of a participant.
func NewUserAccountKey(userID uuid.UUID, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeUser,
		EntityID: userID,
		SubType:  SubTypeAvailable,
		AssetID:  assetID,
	}
}

// NewCustodyAccountKey returns the auction custody account holding order deposits.
func NewCustodyAccountKey(assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeSystem,
		SubType: SubTypeSystemCustody,
		AssetID: assetID,
	}
}

// NewExternalAccountKey creates a key for external boundary accounts
func NewExternalAccountKey(subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: subType,
		AssetID: assetID,
	}
}

// AllowsNegative reports whether the account may carry a negative balance.
// Only external boundary accounts mirror value that lives outside the ledger.
func (k AccountKey) AllowsNegative() bool {
	return k.Scope == AccountScopeExternal
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	assetName, _ := GetAssetName(k.AssetID)

	switch k.Scope {
	case AccountScopeUser:
		uid := uuid.UUID(k.EntityID)
		return fmt.Sprintf("user:%s:%s:%s", uid.String(), k.subTypeName(), assetName)
	case AccountScopeSystem:
		return fmt.Sprintf("system:%s:%s", k.subTypeName(), assetName)
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s:%s", k.subTypeName(), assetName)
	}
	return "unknown"
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeAvailable:
		return "available"
	case SubTypeSystemCustody:
		return "custody"
	case SubTypeExternalDeposits:
		return "deposits"
	case SubTypeExternalWithdrawals:
		return "withdrawals"
	default:
		return "unknown"
	}
}
