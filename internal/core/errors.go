package core

import "errors"

// Validation errors: caller mistakes, nothing changes.
var (
	ErrInvalidPayload = errors.New("invalid payload: must be non-empty")
	ErrInvalidDeposit = errors.New("invalid deposit: must be positive")
	ErrInvalidSide    = errors.New("invalid side")
	ErrInvalidAmount  = errors.New("invalid amount: must be positive")
	ErrUnknownAsset   = errors.New("unknown asset")
)

// Authorization errors.
var (
	ErrNotOwner = errors.New("caller does not own order")
)

// State-conflict errors: retry later or adjust the request.
var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderNotPending    = errors.New("order not pending")
	ErrOrderInRound       = errors.New("order is committed to a round in flight")
	ErrAlreadyMatching    = errors.New("a matching round is already in flight")
	ErrNoPendingOrders    = errors.New("both sides need at least one pending order")
	ErrTooManyOrders      = errors.New("pending orders exceed round capacity")
	ErrInsufficientFunds  = errors.New("insufficient available balance")
	ErrSettlementNotFound = errors.New("settlement record not found")
)

// Callback errors. None of them mutate state.
var (
	ErrUnknownRound        = errors.New("no round in flight with this id")
	ErrRoundAlreadySettled = errors.New("round already settled")
	ErrBatchMismatch       = errors.New("decrypted batch does not match round snapshot")
	ErrSettlementAborted   = errors.New("settlement aborted")
)
